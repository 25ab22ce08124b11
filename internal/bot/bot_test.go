package bot

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"card-battle-system/internal/battle"
	"card-battle-system/internal/session"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/models"

	"github.com/rs/zerolog"
)

type countingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *countingNotifier) Notify(chatID int64, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestBot(t *testing.T, timeout time.Duration) (*Bot, *db.BotDB, *countingNotifier) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "bot-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	database, err := db.NewBotDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create bot db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	notifier := &countingNotifier{}
	sim := battle.NewSimulator(battle.DefaultOptions(), rand.New(rand.NewSource(1)))
	tracker := session.NewTracker(timeout, sim, nil, notifier, zerolog.Nop())

	b := &Bot{
		db:      database,
		tracker: tracker,
		log:     zerolog.Nop(),
	}
	return b, database, notifier
}

func TestSweepExpiredDeletesPersistedChallenge(t *testing.T) {
	timeout := 10 * time.Minute
	b, database, notifier := newTestBot(t, timeout)

	stale := &models.StoredChallenge{
		ChallengerID:   100,
		ChallengerName: "alice",
		OpponentName:   "bob",
		ChatID:         1,
		CreatedAt:      time.Now().Add(-20 * time.Minute),
	}
	if err := database.SaveChallenge(stale); err != nil {
		t.Fatalf("SaveChallenge failed: %v", err)
	}
	b.tracker.Restore(stale)

	if n := b.SweepExpired(time.Now()); n != 1 {
		t.Fatalf("Expected one pairing swept, got %d", n)
	}
	if notifier.count() != 1 {
		t.Fatalf("Expected one expiry notification, got %d", notifier.count())
	}

	remaining, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("Expected expired challenge row deleted, got %d rows", len(remaining))
	}

	// A restart reloads nothing, so the next sweep stays silent.
	restored, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges failed: %v", err)
	}
	for _, ch := range restored {
		b.tracker.Restore(ch)
	}
	if n := b.SweepExpired(time.Now()); n != 0 {
		t.Errorf("Expected nothing to expire after restart, swept %d", n)
	}
	if notifier.count() != 1 {
		t.Errorf("Expected no duplicate expiry notification, got %d total", notifier.count())
	}
}

func TestSweepExpiredLeavesFreshChallengeRow(t *testing.T) {
	timeout := 10 * time.Minute
	b, database, _ := newTestBot(t, timeout)

	fresh := &models.StoredChallenge{
		ChallengerID:   200,
		ChallengerName: "carol",
		OpponentName:   "dave",
		ChatID:         2,
		CreatedAt:      time.Now().Add(-time.Minute),
	}
	if err := database.SaveChallenge(fresh); err != nil {
		t.Fatalf("SaveChallenge failed: %v", err)
	}
	b.tracker.Restore(fresh)

	if n := b.SweepExpired(time.Now()); n != 0 {
		t.Fatalf("Expected no pairing swept, got %d", n)
	}

	remaining, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("Expected fresh challenge row to survive, got %d rows", len(remaining))
	}
}
