// Package session implements the matchmaking state machine of the Card
// Battle System. A Tracker owns the set of in-progress pairings behind a
// single lock: challenges are created, card submissions accumulate, and the
// moment a pairing holds both sides' attributes it resolves exactly once
// into a battle result. Expired pairings are swept out with a notification.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"card-battle-system/internal/battle"
	"card-battle-system/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Presenter renders a completed battle for the chat. The returned handle is
// opaque to the session core.
type Presenter interface {
	Present(ctx context.Context, result models.BattleResult, a, b models.Participant) (string, error)
}

// Notifier delivers out-of-band messages to a chat, fire-and-forget.
// Used for expiry notices.
type Notifier interface {
	Notify(chatID int64, message string)
}

// Pairing is one challenge-in-progress: a challenger, the display name of
// the opponent they named, and the card attributes submitted so far.
// All mutation happens under the Tracker's lock.
type Pairing struct {
	ID           string
	ChatID       int64
	Challenger   models.Participant
	OpponentName string
	CreatedAt    time.Time

	submissions map[int64]submission
}

type submission struct {
	participant models.Participant
	attrs       models.CardAttributes
}

// matches reports whether the participant belongs to this pairing, either as
// the challenger or as the named opponent. Display names are compared
// case-insensitively since chat platforms are loose about capitalization.
func (p *Pairing) matches(participant models.Participant) bool {
	if participant.ID == p.Challenger.ID {
		return true
	}
	return strings.EqualFold(participant.Name, p.OpponentName)
}

// ready reports whether both sides have submitted: one entry keyed by the
// challenger and one by a participant whose name matches the opponent name.
func (p *Pairing) ready() bool {
	if _, ok := p.submissions[p.Challenger.ID]; !ok {
		return false
	}
	_, ok := p.opponentSubmission()
	return ok
}

// opponentSubmission returns the submission from the named opponent, if any.
func (p *Pairing) opponentSubmission() (submission, bool) {
	for id, sub := range p.submissions {
		if id != p.Challenger.ID && strings.EqualFold(sub.participant.Name, p.OpponentName) {
			return sub, true
		}
	}
	return submission{}, false
}

// Resolution is the outcome of one resolved pairing: the battle result plus
// both participants and the presentation handle (empty if presenting
// failed).
type Resolution struct {
	PairingID    string
	ChatID       int64
	ParticipantA models.Participant // challenger
	ParticipantB models.Participant // opponent
	Result       models.BattleResult
	Handle       string
}

type pairingKey struct {
	chatID       int64
	challengerID int64
}

// Tracker is the session state machine. All pairing state lives behind one
// mutex; every state-mutating operation is serialized so that two
// simultaneous submissions can never both trigger resolution for the same
// pairing. Resolution itself (vitality + simulation) runs under the lock —
// it is pure and fast — but the Presenter and Notifier collaborators are
// always invoked after the lock is released.
type Tracker struct {
	mu       sync.Mutex
	pairings map[pairingKey]*Pairing

	timeout   time.Duration
	sim       *battle.Simulator
	presenter Presenter
	notifier  Notifier
	log       zerolog.Logger
}

// NewTracker creates a session tracker. The timeout bounds how long a
// pairing may wait for both cards before the sweep expires it.
func NewTracker(timeout time.Duration, sim *battle.Simulator, presenter Presenter, notifier Notifier, log zerolog.Logger) *Tracker {
	return &Tracker{
		pairings:  make(map[pairingKey]*Pairing),
		timeout:   timeout,
		sim:       sim,
		presenter: presenter,
		notifier:  notifier,
		log:       log,
	}
}

// CreateChallenge opens a pairing from challenger to the named opponent in
// the given chat. An existing pairing for the same challenger in the same
// chat is replaced, not stacked. Self-challenges are rejected.
func (t *Tracker) CreateChallenge(chatID int64, challenger models.Participant, opponentName string) (*Pairing, error) {
	opponentName = strings.TrimSpace(opponentName)
	if opponentName == "" || strings.EqualFold(challenger.Name, opponentName) {
		return nil, models.ErrSelfChallenge
	}

	p := &Pairing{
		ID:           uuid.New().String(),
		ChatID:       chatID,
		Challenger:   challenger,
		OpponentName: opponentName,
		CreatedAt:    time.Now(),
		submissions:  make(map[int64]submission),
	}

	t.mu.Lock()
	t.pairings[pairingKey{chatID, challenger.ID}] = p
	t.mu.Unlock()

	t.log.Info().
		Str("pairing_id", p.ID).
		Int64("chat_id", chatID).
		Str("challenger", challenger.Name).
		Str("opponent", opponentName).
		Msg("Challenge created")

	return p, nil
}

// Restore re-creates a pairing from a persisted challenge row, preserving
// its original creation time so expiry still applies. Used at startup.
func (t *Tracker) Restore(ch *models.StoredChallenge) {
	p := &Pairing{
		ID:           uuid.New().String(),
		ChatID:       ch.ChatID,
		Challenger:   models.Participant{ID: ch.ChallengerID, Name: ch.ChallengerName},
		OpponentName: ch.OpponentName,
		CreatedAt:    ch.CreatedAt,
		submissions:  make(map[int64]submission),
	}

	t.mu.Lock()
	t.pairings[pairingKey{ch.ChatID, ch.ChallengerID}] = p
	t.mu.Unlock()
}

// SubmitCard stores attrs against the participant in every pairing of the
// chat where they qualify, as challenger or named opponent. Each pairing
// that becomes ready resolves immediately and exactly once: the resolution
// and removal happen atomically under the lock, so a concurrent duplicate
// submission observes the pairing already gone and is a no-op.
//
// Attribute extraction must happen before calling this; SubmitCard performs
// no I/O under the lock. Presentation of resolved battles runs after the
// lock is released.
func (t *Tracker) SubmitCard(ctx context.Context, chatID int64, participant models.Participant, attrs models.CardAttributes) []*Resolution {
	var resolved []*Resolution

	t.mu.Lock()
	for key, p := range t.pairings {
		if p.ChatID != chatID || !p.matches(participant) {
			continue
		}

		p.submissions[participant.ID] = submission{participant: participant, attrs: attrs}

		if p.ready() {
			resolved = append(resolved, t.resolveLocked(p))
			delete(t.pairings, key)
		}
	}
	t.mu.Unlock()

	// Presentation is slow collaborator I/O; never hold the lock for it.
	for _, r := range resolved {
		handle, err := t.presenter.Present(ctx, r.Result, r.ParticipantA, r.ParticipantB)
		if err != nil {
			t.log.Error().Err(err).
				Str("battle_id", r.Result.ID).
				Msg("Failed to present battle result")
			continue
		}
		r.Handle = handle
	}

	return resolved
}

// resolveLocked turns a ready pairing into a battle result. Caller holds the
// lock; this is pure computation over the submitted attributes.
func (t *Tracker) resolveLocked(p *Pairing) *Resolution {
	subA := p.submissions[p.Challenger.ID]
	subB, _ := p.opponentSubmission()

	a := battle.Combatant{
		Vitality: battle.ComputeVitality(subA.attrs),
		Power:    subA.attrs.Power,
		Defense:  subA.attrs.Defense,
	}
	b := battle.Combatant{
		Vitality: battle.ComputeVitality(subB.attrs),
		Power:    subB.attrs.Power,
		Defense:  subB.attrs.Defense,
	}

	result := t.sim.Simulate(a, b)
	result.ID = uuid.New().String()

	t.log.Info().
		Str("pairing_id", p.ID).
		Str("battle_id", result.ID).
		Str("side_a", subA.participant.Name).
		Str("side_b", subB.participant.Name).
		Int("starting_a", result.StartingA).
		Int("starting_b", result.StartingB).
		Int("final_a", result.FinalA).
		Int("final_b", result.FinalB).
		Str("winner", result.Winner.String()).
		Msg("Battle resolved")

	return &Resolution{
		PairingID:    p.ID,
		ChatID:       p.ChatID,
		ParticipantA: subA.participant,
		ParticipantB: subB.participant,
		Result:       result,
	}
}

// Cancel removes the challenger's pairing in the chat. Cancelling a pairing
// that no longer exists (already resolved, cancelled, or expired) is a
// benign no-op reported as ErrStalePairing.
func (t *Tracker) Cancel(chatID, challengerID int64) error {
	t.mu.Lock()
	key := pairingKey{chatID, challengerID}
	_, existed := t.pairings[key]
	delete(t.pairings, key)
	t.mu.Unlock()

	if !existed {
		return models.ErrStalePairing
	}
	return nil
}

// SweepExpired removes every pairing older than the timeout as of now and
// notifies the affected chats. Returns the expired pairings so the caller
// can drop their persisted rows.
// Safe to race with submissions and cancellations: whoever takes the lock
// first wins, and the loser sees the pairing already gone.
func (t *Tracker) SweepExpired(now time.Time) []*Pairing {
	var expired []*Pairing

	t.mu.Lock()
	for key, p := range t.pairings {
		if now.Sub(p.CreatedAt) > t.timeout {
			expired = append(expired, p)
			delete(t.pairings, key)
		}
	}
	t.mu.Unlock()

	for _, p := range expired {
		t.log.Info().
			Str("pairing_id", p.ID).
			Str("challenger", p.Challenger.Name).
			Str("opponent", p.OpponentName).
			Msg("Pairing expired")
		t.notifier.Notify(p.ChatID,
			"Challenge from @"+p.Challenger.Name+" to @"+p.OpponentName+" timed out.")
	}

	return expired
}

// PendingCount returns the number of open pairings.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pairings)
}

// HasChallenge reports whether the challenger has an open pairing in the
// chat.
func (t *Tracker) HasChallenge(chatID, challengerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pairings[pairingKey{chatID, challengerID}]
	return ok
}
