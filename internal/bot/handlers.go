package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"card-battle-system/internal/session"
	"card-battle-system/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Card Battle commands:
/challenge @user - challenge another player
/cancel - withdraw your open challenge
/confirm - review and accept your card's parsed stats
/confirm ok - accept the stats as parsed
/confirm <power> <defense> <rarity> <serial> - correct the stats
/stats - show your card and battle count

To fight, both players upload a photo of their card after a challenge is
issued. Challenges expire after 10 minutes.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "battle", "start", "help":
		b.reply(msg, helpText)
	case "challenge":
		b.handleChallenge(msg)
	case "cancel":
		b.handleCancel(msg)
	case "confirm":
		b.handleConfirm(ctx, msg)
	case "stats":
		b.handleStats(msg)
	}
}

// displayName prefers the Telegram username and falls back to the first
// name, which is always present.
func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	return user.FirstName
}

func participantFrom(user *tgbotapi.User) models.Participant {
	return models.Participant{ID: user.ID, Name: displayName(user)}
}

func participantFromCard(card *models.StoredCard) models.Participant {
	return models.Participant{ID: card.UserID, Name: card.Username}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to send reply")
	}
}

func (b *Bot) handleChallenge(msg *tgbotapi.Message) {
	opponent := strings.TrimSpace(msg.CommandArguments())
	opponent = strings.TrimPrefix(opponent, "@")
	if opponent == "" {
		b.reply(msg, "Usage: /challenge @username")
		return
	}
	if strings.EqualFold(opponent, b.Username()) {
		b.reply(msg, "The bot does not accept challenges.")
		return
	}

	challenger := participantFrom(msg.From)
	pairing, err := b.tracker.CreateChallenge(msg.Chat.ID, challenger, opponent)
	if err == models.ErrSelfChallenge {
		b.reply(msg, "You cannot challenge yourself.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to create challenge")
		b.reply(msg, "Could not create the challenge. Try again.")
		return
	}

	if err := b.db.SaveChallenge(&models.StoredChallenge{
		ChallengerID:   challenger.ID,
		ChallengerName: challenger.Name,
		OpponentName:   opponent,
		ChatID:         msg.Chat.ID,
		CreatedAt:      pairing.CreatedAt,
	}); err != nil {
		b.log.Error().Err(err).Msg("Failed to persist challenge")
	}

	b.reply(msg, fmt.Sprintf(
		"@%s challenges @%s! Both players: upload a photo of your card within 10 minutes, then /confirm the parsed stats.",
		challenger.Name, opponent))
}

func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	cancelErr := b.tracker.Cancel(msg.Chat.ID, msg.From.ID)
	if err := b.db.DeleteChallenge(msg.From.ID, msg.Chat.ID); err != nil {
		b.log.Error().Err(err).Msg("Failed to delete persisted challenge")
	}

	if cancelErr == models.ErrStalePairing {
		b.reply(msg, "You have no open challenge.")
	} else {
		b.reply(msg, "Your challenge has been withdrawn.")
	}
}

// handleCardUpload downloads the card image, extracts attributes, and
// stores the card unconfirmed. The owner reviews the parsed stats with
// /confirm before the card can battle.
func (b *Bot) handleCardUpload(ctx context.Context, msg *tgbotapi.Message) {
	fileID := ""
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID // largest size last
	} else if msg.Document != nil {
		fileID = msg.Document.FileID
	}
	if fileID == "" {
		return
	}

	image, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error().Err(err).Str("file_id", fileID).Msg("Failed to download card image")
		b.reply(msg, "Could not download your card image. Try again.")
		return
	}

	filePath := ""
	if b.config.CardsDir != "" {
		filePath = filepath.Join(b.config.CardsDir, fmt.Sprintf("%d_%d.jpg", msg.Chat.ID, msg.From.ID))
		if err := os.MkdirAll(b.config.CardsDir, 0755); err == nil {
			if err := os.WriteFile(filePath, image, 0644); err != nil {
				b.log.Error().Err(err).Str("path", filePath).Msg("Failed to store card image")
			}
		}
	}

	attrs, parsed := b.extractor.Extract(ctx, image)

	card := &models.StoredCard{
		UserID:    msg.From.ID,
		Username:  displayName(msg.From),
		ChatID:    msg.Chat.ID,
		FilePath:  filePath,
		Attrs:     attrs,
		Confirmed: false,
		CreatedAt: time.Now(),
	}
	if err := b.db.SaveCard(card); err != nil {
		b.log.Error().Err(err).Msg("Failed to save card")
		b.reply(msg, "Could not save your card. Try again.")
		return
	}

	text := fmt.Sprintf("Card received!\n%s\n\nReply /confirm ok to accept, or /confirm <power> <defense> <rarity> <serial> to correct.",
		formatAttrs(attrs))
	if !parsed {
		text = "I could not read your card, so default stats were assigned.\n" +
			formatAttrs(attrs) +
			"\n\nReply /confirm ok to accept, or /confirm <power> <defense> <rarity> <serial> to correct."
	}
	b.reply(msg, text)
}

func formatAttrs(attrs models.CardAttributes) string {
	return fmt.Sprintf("Power: %d\nDefense: %d\nRarity: %s\nSerial: #%d",
		attrs.Power, attrs.Defense, attrs.Rarity, attrs.Serial)
}

// handleConfirm reviews or corrects the caller's pending card. Accepting
// marks it confirmed and feeds it into any open pairing.
func (b *Bot) handleConfirm(ctx context.Context, msg *tgbotapi.Message) {
	card, err := b.db.GetCard(msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load card")
		b.reply(msg, "Could not load your card. Try again.")
		return
	}
	if card == nil {
		b.reply(msg, "You have no card on file. Upload a card photo first.")
		return
	}

	args := strings.Fields(msg.CommandArguments())
	switch {
	case len(args) == 0:
		state := "pending confirmation"
		if card.Confirmed {
			state = "confirmed"
		}
		b.reply(msg, fmt.Sprintf("Your card (%s):\n%s", state, formatAttrs(card.Attrs)))
		return

	case len(args) == 1 && strings.EqualFold(args[0], "ok"):
		if err := b.db.ConfirmCard(msg.From.ID, msg.Chat.ID); err != nil {
			b.log.Error().Err(err).Msg("Failed to confirm card")
			b.reply(msg, "Could not confirm your card. Try again.")
			return
		}
		card.Confirmed = true
		b.reply(msg, "Card confirmed. Ready to battle!")
		b.submitCard(ctx, msg.Chat.ID, participantFrom(msg.From), card)
		return

	case len(args) == 4:
		attrs, err := parseManualStats(args)
		if err != nil {
			b.reply(msg, err.Error())
			return
		}
		if err := b.db.UpdateCardStats(msg.From.ID, msg.Chat.ID, attrs); err != nil {
			b.log.Error().Err(err).Msg("Failed to update card stats")
			b.reply(msg, "Could not update your card. Try again.")
			return
		}
		card.Attrs = attrs
		card.Confirmed = true
		b.reply(msg, "Card updated and confirmed:\n"+formatAttrs(attrs))
		b.submitCard(ctx, msg.Chat.ID, participantFrom(msg.From), card)
		return

	default:
		b.reply(msg, "Usage: /confirm, /confirm ok, or /confirm <power> <defense> <rarity> <serial>")
	}
}

func parseManualStats(args []string) (models.CardAttributes, error) {
	power, err := strconv.Atoi(args[0])
	if err != nil {
		return models.CardAttributes{}, fmt.Errorf("power must be a number")
	}
	defense, err := strconv.Atoi(args[1])
	if err != nil {
		return models.CardAttributes{}, fmt.Errorf("defense must be a number")
	}
	rarity, err := models.ParseRarity(args[2])
	if err != nil {
		return models.CardAttributes{}, fmt.Errorf("rarity must be one of Common, Rare, Ultra-Rare, Legendary")
	}
	serial, err := strconv.Atoi(args[3])
	if err != nil {
		return models.CardAttributes{}, fmt.Errorf("serial must be a number")
	}

	return models.NewCardAttributes(power, defense, rarity, serial), nil
}

// submitCard pushes a confirmed card into the tracker and announces any
// battles it resolves.
func (b *Bot) submitCard(ctx context.Context, chatID int64, participant models.Participant, card *models.StoredCard) {
	resolutions := b.tracker.SubmitCard(ctx, chatID, participant, card.Attrs)

	for _, r := range resolutions {
		if err := b.db.SaveBattle(r.ChatID, r.ParticipantA, r.ParticipantB, &r.Result); err != nil {
			b.log.Error().Err(err).Str("battle_id", r.Result.ID).Msg("Failed to persist battle")
		}
		if err := b.db.DeleteChallenge(r.ParticipantA.ID, r.ChatID); err != nil {
			b.log.Error().Err(err).Msg("Failed to delete resolved challenge")
		}

		b.Notify(r.ChatID, announceResult(r))
	}
}

// announceResult formats the battle outcome for the chat.
func announceResult(r *session.Resolution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Battle! @%s (%d HP) vs @%s (%d HP)\n",
		r.ParticipantA.Name, r.Result.StartingA,
		r.ParticipantB.Name, r.Result.StartingB)
	fmt.Fprintf(&sb, "After %d exchanges: %d HP vs %d HP\n",
		len(r.Result.Exchanges), r.Result.FinalA, r.Result.FinalB)

	switch r.Result.Winner {
	case models.SideA:
		fmt.Fprintf(&sb, "Winner: @%s!", r.ParticipantA.Name)
	case models.SideB:
		fmt.Fprintf(&sb, "Winner: @%s!", r.ParticipantB.Name)
	default:
		sb.WriteString("It's a draw!")
	}

	if r.Handle != "" {
		fmt.Fprintf(&sb, "\nReplay: %s", r.Handle)
	}
	return sb.String()
}

func (b *Bot) handleStats(msg *tgbotapi.Message) {
	card, err := b.db.GetCard(msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load card")
		b.reply(msg, "Could not load your stats. Try again.")
		return
	}

	battles, err := b.db.CountBattles(msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to count battles")
	}

	if card == nil {
		b.reply(msg, fmt.Sprintf("No card on file. Battles fought in this chat: %d", battles))
		return
	}

	state := "pending confirmation"
	if card.Confirmed {
		state = "confirmed"
	}
	b.reply(msg, fmt.Sprintf("Your card (%s):\n%s\n\nBattles fought in this chat: %d",
		state, formatAttrs(card.Attrs), battles))
}
