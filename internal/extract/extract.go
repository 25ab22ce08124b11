// Package extract turns raw card image bytes into a validated attribute
// record. The actual character recognition is an external collaborator
// behind the TextRecognizer interface; this package owns the stat parsing
// heuristics and the documented fallback behavior. Extraction never fails
// past this boundary: any internal error yields the default record.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"card-battle-system/pkg/models"

	"github.com/rs/zerolog"
)

// TextRecognizer extracts printed text from a card image.
// Implementations wrap an OCR engine or an image-understanding model call.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Extractor derives card attributes from image bytes.
type Extractor struct {
	recognizer TextRecognizer
	log        zerolog.Logger
}

// New creates an extractor over the given recognizer.
func New(recognizer TextRecognizer, log zerolog.Logger) *Extractor {
	return &Extractor{recognizer: recognizer, log: log}
}

// Extract runs recognition and parsing on the image. The returned bool is
// false when recognition failed and the default record was substituted, so
// the caller can tell the owner their stats need a manual /confirm.
func (e *Extractor) Extract(ctx context.Context, image []byte) (models.CardAttributes, bool) {
	text, err := e.recognizer.Recognize(ctx, image)
	if err != nil {
		e.log.Error().Err(err).Msg("Text recognition failed, using default attributes")
		return models.DefaultCardAttributes(), false
	}

	return ParseStats(text), true
}

// Stat patterns. Numbers are limited to the widths the attribute bounds
// allow, which also keeps serial-looking numbers out of the stat fields.
var (
	powerPattern   = regexp.MustCompile(`power[:\s]*([0-9]{1,3})`)
	attackPattern  = regexp.MustCompile(`(?:attack|atk)[:\s]*([0-9]{1,3})`)
	defensePattern = regexp.MustCompile(`defen(?:se|c)e?[:\s]*([0-9]{1,3})`)
	defAbbrPattern = regexp.MustCompile(`\bdef[:\s]*([0-9]{1,3})\b`)
	serialPattern  = regexp.MustCompile(`serial[:\s#]*([0-9]{1,4})`)
	hashPattern    = regexp.MustCompile(`#\s*([0-9]{1,4})`)
	snPattern      = regexp.MustCompile(`s/n[:\s]*([0-9]{1,4})`)
	numberPattern  = regexp.MustCompile(`\b([0-9]{1,3})\b`)
	wideNumPattern = regexp.MustCompile(`\b([0-9]{1,4})\b`)
)

// rarityKeywords in match order: longer spellings first so "ultra-rare"
// never matches as plain "rare".
var rarityKeywords = []struct {
	keyword string
	rarity  models.Rarity
}{
	{"legendary", models.RarityLegendary},
	{"ultra-rare", models.RarityUltraRare},
	{"ultra rare", models.RarityUltraRare},
	{"ultrarare", models.RarityUltraRare},
	{"rare", models.RarityRare},
	{"common", models.RarityCommon},
}

// ParseStats extracts power, defense, rarity, and serial from recognized
// card text. Every field has a fallback chain ending in the documented
// default, and the result is clamped at construction, so any input text
// yields a usable record.
func ParseStats(text string) models.CardAttributes {
	lower := strings.ToLower(text)

	rarity := models.RarityCommon
	for _, rk := range rarityKeywords {
		if strings.Contains(lower, rk.keyword) {
			rarity = rk.rarity
			break
		}
	}

	power := parseLabeled(lower, powerPattern, attackPattern)
	if power == 0 {
		if nums := numberPattern.FindAllStringSubmatch(lower, -1); len(nums) > 0 {
			power = atoi(nums[0][1])
		} else {
			power = models.DefaultPower
		}
	}

	defense := parseLabeled(lower, defensePattern, defAbbrPattern)
	if defense == 0 {
		if nums := numberPattern.FindAllStringSubmatch(lower, -1); len(nums) >= 2 {
			defense = atoi(nums[1][1])
		} else {
			defense = models.DefaultDefense
		}
	}

	serial := parseLabeled(lower, serialPattern, snPattern)
	if serial == 0 {
		// "#123" is matched against the original text since the hash mark
		// survives recognition more reliably in context.
		if m := hashPattern.FindStringSubmatch(text); m != nil {
			serial = atoi(m[1])
		}
	}
	if serial == 0 {
		// Prefer the smallest number on the card: lower serials are rarer,
		// so this errs in the card owner's favor.
		min := 0
		for _, m := range wideNumPattern.FindAllStringSubmatch(lower, -1) {
			if n := atoi(m[1]); n > 0 && (min == 0 || n < min) {
				min = n
			}
		}
		if min > 0 {
			serial = min
		} else {
			serial = models.DefaultSerial
		}
	}

	return models.NewCardAttributes(power, defense, rarity, serial)
}

// parseLabeled tries each pattern in order and returns the first captured
// number, or 0 if none match.
func parseLabeled(text string, patterns ...*regexp.Regexp) int {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return atoi(m[1])
		}
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
