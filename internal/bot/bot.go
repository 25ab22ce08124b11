// Package bot implements the chat front end of the Card Battle System. It
// receives Telegram updates over webhook or long polling, routes commands
// and card photo uploads, and drives the session tracker.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"card-battle-system/internal/extract"
	"card-battle-system/internal/session"
	"card-battle-system/pkg/api"
	"card-battle-system/pkg/config"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Bot wires the Telegram API to the session tracker and card storage.
type Bot struct {
	api       *tgbotapi.BotAPI
	config    *config.Config
	db        *db.BotDB
	tracker   *session.Tracker
	extractor *extract.Extractor
	limiter   *api.RateLimiter
	client    *http.Client
	log       zerolog.Logger
}

// New creates the bot and authenticates against the Telegram API. The
// tracker is attached separately because it needs the bot as its notifier.
func New(cfg *config.Config, database *db.BotDB, extractor *extract.Extractor) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}

	return &Bot{
		api:       botAPI,
		config:    cfg,
		db:        database,
		extractor: extractor,
		limiter:   api.NewRateLimiter(cfg.RateLimitPerMin, time.Minute),
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       logger.NewCategoryLogger(cfg.LogLevel, logger.Bot, logger.Webhook),
	}, nil
}

// AttachTracker connects the session tracker. Must be called before Run.
func (b *Bot) AttachTracker(tracker *session.Tracker) {
	b.tracker = tracker
}

// Username returns the bot's own Telegram username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Notify sends a plain message to a chat. Implements the session notifier
// contract; errors are logged, not propagated, since notifications are
// best-effort.
func (b *Bot) Notify(chatID int64, message string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send notification")
	}
}

// Run consumes Telegram updates until the context is cancelled. Webhook
// mode is used when a public host is configured, long polling otherwise.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.updateChannel(ctx)
	if err != nil {
		return err
	}

	b.log.Info().
		Str("username", b.api.Self.UserName).
		Bool("webhook", b.config.UseWebhook()).
		Msg("Bot started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// updateChannel sets up the inbound update stream.
func (b *Bot) updateChannel(ctx context.Context) (<-chan tgbotapi.Update, error) {
	if !b.config.UseWebhook() {
		// Drop any webhook registered by a previous run before polling.
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return nil, fmt.Errorf("failed to delete webhook: %w", err)
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return b.api.GetUpdatesChan(u), nil
	}

	wh, err := tgbotapi.NewWebhook(b.config.PublicHost + b.config.WebhookPath())
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook config: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}

	updates := make(chan tgbotapi.Update, 100)

	router := mux.NewRouter()
	router.HandleFunc(b.config.WebhookPath(), func(w http.ResponseWriter, r *http.Request) {
		if b.config.WebhookSecret != "" &&
			r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != b.config.WebhookSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.log.Error().Err(err).Msg("Failed to parse webhook update")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		updates <- *update
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")
	router.HandleFunc("/healthz", api.HealthCheck).Methods("GET")

	server := &http.Server{
		Addr:         b.config.GetBotAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		b.log.Info().Str("addr", server.Addr).Msg("Webhook server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error().Err(err).Msg("Webhook server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		close(updates)
	}()

	return updates, nil
}

// handleUpdate dispatches one inbound update. Rate limiting applies per
// user across all commands and uploads.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !b.limiter.Allow(msg.From.ID) {
		b.log.Warn().
			Int64("user_id", msg.From.ID).
			Msg("Rate limit exceeded")
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0 || isImageDocument(msg.Document):
		b.handleCardUpload(ctx, msg)
	}
}

func isImageDocument(doc *tgbotapi.Document) bool {
	if doc == nil {
		return false
	}
	switch doc.MimeType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

// downloadFile fetches a Telegram file's bytes by file id.
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// RestoreState reloads open challenges from the database into the tracker
// and replays any confirmed cards against them. A battle whose both cards
// were confirmed before a restart resolves immediately on startup.
func (b *Bot) RestoreState(ctx context.Context) error {
	challenges, err := b.db.ListChallenges()
	if err != nil {
		return fmt.Errorf("failed to list challenges: %w", err)
	}

	for _, ch := range challenges {
		b.tracker.Restore(ch)
	}

	for _, ch := range challenges {
		if card, err := b.db.GetCard(ch.ChallengerID, ch.ChatID); err == nil && card != nil && card.Confirmed {
			b.submitCard(ctx, ch.ChatID, participantFromCard(card), card)
		}
		if card, err := b.db.GetConfirmedCardByUsername(ch.OpponentName, ch.ChatID); err == nil && card != nil {
			b.submitCard(ctx, ch.ChatID, participantFromCard(card), card)
		}
	}

	b.log.Info().Int("challenges", len(challenges)).Msg("Session state restored")
	return nil
}

// SweepExpired expires stale pairings and deletes their persisted rows, so
// an expired challenge does not come back on the next restart. Returns the
// number of pairings expired.
func (b *Bot) SweepExpired(now time.Time) int {
	expired := b.tracker.SweepExpired(now)
	for _, p := range expired {
		if err := b.db.DeleteChallenge(p.Challenger.ID, p.ChatID); err != nil {
			b.log.Error().Err(err).
				Str("pairing_id", p.ID).
				Msg("Failed to delete expired challenge")
		}
	}
	return len(expired)
}
