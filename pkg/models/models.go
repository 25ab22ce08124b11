// Package models defines data structures for the Card Battle System.
// This package contains the card and battle value objects, participant
// identity, API request/response models, and database row types used
// throughout the bot and render services.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Attribute bounds. Values parsed from card images are clamped into these
// ranges at construction time; the battle engine never re-validates.
const (
	MinStat   = 1
	MaxStat   = 999
	MinSerial = 1
	MaxSerial = 1999
)

// Default attribute values substituted when extraction fails.
const (
	DefaultPower   = 50
	DefaultDefense = 50
	DefaultSerial  = 1000
)

// Domain errors surfaced by the session tracker.
var (
	// ErrSelfChallenge is returned when a participant challenges themselves.
	ErrSelfChallenge = errors.New("cannot challenge yourself")

	// ErrStalePairing is returned when an operation targets a pairing that
	// no longer exists (already resolved, cancelled, or expired). Callers
	// treat it as a benign no-op.
	ErrStalePairing = errors.New("pairing no longer exists")
)

// Rarity is the ordinal classification of a card.
// Common < Rare < Ultra-Rare < Legendary.
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityUltraRare Rarity = "Ultra-Rare"
	RarityLegendary Rarity = "Legendary"
)

// ParseRarity normalizes a free-form rarity string into a Rarity value.
// Accepts the spellings seen on real cards ("ultra rare", "ultrarare", etc.).
// Returns an error for unknown tiers so callers can fall back explicitly.
func ParseRarity(s string) (Rarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "common":
		return RarityCommon, nil
	case "rare":
		return RarityRare, nil
	case "ultra-rare", "ultra rare", "ultrarare":
		return RarityUltraRare, nil
	case "legendary":
		return RarityLegendary, nil
	default:
		return "", fmt.Errorf("unknown rarity: %q", s)
	}
}

// CardAttributes is the four-field record derived from a card image.
// Immutable once produced; all fields are always in range because
// construction clamps them.
type CardAttributes struct {
	Power   int    `json:"power"`
	Defense int    `json:"defense"`
	Rarity  Rarity `json:"rarity"`
	Serial  int    `json:"serial"`
}

// NewCardAttributes builds a validated attribute record. Out-of-range values
// are clamped rather than rejected so that extraction noise never produces an
// unusable card. An empty rarity falls back to Common.
func NewCardAttributes(power, defense int, rarity Rarity, serial int) CardAttributes {
	if rarity == "" {
		rarity = RarityCommon
	}
	return CardAttributes{
		Power:   clamp(power, MinStat, MaxStat),
		Defense: clamp(defense, MinStat, MaxStat),
		Rarity:  rarity,
		Serial:  clamp(serial, MinSerial, MaxSerial),
	}
}

// DefaultCardAttributes returns the documented fallback record used when
// extraction fails: power 50, defense 50, Common, serial 1000.
func DefaultCardAttributes() CardAttributes {
	return CardAttributes{
		Power:   DefaultPower,
		Defense: DefaultDefense,
		Rarity:  RarityCommon,
		Serial:  DefaultSerial,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Participant identifies one side of a pairing: a stable chat-platform user
// id plus the display name other participants refer to them by.
type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Side identifies one side of a battle result.
type Side int

const (
	SideNone Side = iota // tie marker
	SideA
	SideB
)

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return "none"
	}
}

// Exchange records one attack within a simulated battle, with a running
// vitality snapshot for both sides after the damage is applied.
type Exchange struct {
	Turn      int  `json:"turn"`
	Attacker  Side `json:"attacker"`
	Damage    int  `json:"damage"`
	VitalityA int  `json:"vitality_a"`
	VitalityB int  `json:"vitality_b"`
	Critical  bool `json:"critical"`
}

// BattleResult is the immutable outcome of one simulated battle.
// Winner is SideNone when both sides end with equal vitality.
type BattleResult struct {
	ID        string     `json:"id"`
	StartingA int        `json:"starting_a"`
	StartingB int        `json:"starting_b"`
	FinalA    int        `json:"final_a"`
	FinalB    int        `json:"final_b"`
	Exchanges []Exchange `json:"exchanges"`
	Winner    Side       `json:"winner"`
}

// StoredCard is the database row for an uploaded card, keyed by
// (user_id, chat_id). Confirmed marks whether the owner has accepted the
// parsed stats; only confirmed cards participate in battles.
type StoredCard struct {
	UserID    int64
	Username  string
	ChatID    int64
	FilePath  string
	Attrs     CardAttributes
	Confirmed bool
	CreatedAt time.Time
}

// StoredChallenge is the database row for a pending challenge, keyed by
// (challenger_id, chat_id). The opponent is known only by display name until
// they act.
type StoredChallenge struct {
	ChallengerID   int64
	ChallengerName string
	OpponentName   string
	ChatID         int64
	CreatedAt      time.Time
}

// API Requests and Responses (render service)

// RenderRequest asks the render service to produce a replay page for a
// completed battle.
type RenderRequest struct {
	BattleID     string       `json:"battle_id"`
	Result       BattleResult `json:"result"`
	ParticipantA Participant  `json:"participant_a"`
	ParticipantB Participant  `json:"participant_b"`
}

// RenderResponse carries the opaque handle of the rendered replay.
// The bot forwards the handle to the chat without inspecting it.
type RenderResponse struct {
	Handle    string `json:"handle"`
	Duplicate bool   `json:"duplicate"`
}

// ErrorResponse is the standard JSON error envelope for HTTP endpoints.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails contains structured error information with a request ID
// for tracing.
type ErrorDetails struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}
