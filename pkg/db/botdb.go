// Package db provides the database access layer for the Card Battle System.
// Implements SQLite-based storage for uploaded cards, pending challenges,
// battle history, and render nonce tracking. This file contains the
// bot-side database operations.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"card-battle-system/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// BotDB provides database operations for the bot service.
// Cards and challenges are keyed by (user, chat) so the same user can hold
// one card and one outstanding challenge per group chat.
type BotDB struct {
	db *sql.DB // SQLite database connection
}

// NewBotDB creates and initializes a new bot database instance.
// Opens the SQLite connection, enables WAL mode for better concurrency, and
// creates required tables.
func NewBotDB(dbPath string) (*BotDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	bdb := &BotDB{db: db}
	if err := bdb.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return bdb, nil
}

// createTables initializes all required database tables for bot operations.
func (b *BotDB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			user_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			file_path TEXT,
			power INTEGER NOT NULL,
			defense INTEGER NOT NULL,
			rarity TEXT NOT NULL,
			serial INTEGER NOT NULL,
			confirmed INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, chat_id)
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			challenger_id INTEGER NOT NULL,
			challenger_name TEXT NOT NULL,
			opponent_name TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (challenger_id, chat_id)
		)`,
		`CREATE TABLE IF NOT EXISTS battles (
			id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			starting_a INTEGER NOT NULL,
			starting_b INTEGER NOT NULL,
			final_a INTEGER NOT NULL,
			final_b INTEGER NOT NULL,
			winner TEXT NOT NULL,
			exchanges TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS ix_cards_username_chat ON cards(username, chat_id)`,
		`CREATE INDEX IF NOT EXISTS ix_challenges_chat ON challenges(chat_id)`,
		`CREATE INDEX IF NOT EXISTS ix_battles_chat_created ON battles(chat_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := b.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

// SaveCard stores or replaces a user's uploaded card for a chat.
// A re-upload overwrites the previous card and resets confirmation.
func (b *BotDB) SaveCard(card *models.StoredCard) error {
	_, err := b.db.Exec(`
		INSERT OR REPLACE INTO cards
			(user_id, username, chat_id, file_path, power, defense, rarity, serial, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.UserID, card.Username, card.ChatID, card.FilePath,
		card.Attrs.Power, card.Attrs.Defense, string(card.Attrs.Rarity), card.Attrs.Serial,
		boolToInt(card.Confirmed), card.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}

	return nil
}

// GetCard retrieves a user's card for a chat.
// Returns nil if no card has been uploaded.
func (b *BotDB) GetCard(userID, chatID int64) (*models.StoredCard, error) {
	row := b.db.QueryRow(`
		SELECT user_id, username, chat_id, file_path, power, defense, rarity, serial, confirmed, created_at
		FROM cards WHERE user_id = ? AND chat_id = ?`, userID, chatID)

	return scanCard(row)
}

// GetConfirmedCardByUsername retrieves a confirmed card by display name.
// Used to match the opponent side of a pairing, where only the name is known
// until the opponent acts. Display names are matched case-insensitively.
func (b *BotDB) GetConfirmedCardByUsername(username string, chatID int64) (*models.StoredCard, error) {
	row := b.db.QueryRow(`
		SELECT user_id, username, chat_id, file_path, power, defense, rarity, serial, confirmed, created_at
		FROM cards WHERE username = ? COLLATE NOCASE AND chat_id = ? AND confirmed = 1`, username, chatID)

	return scanCard(row)
}

// ConfirmCard marks a card's stats as accepted by its owner.
func (b *BotDB) ConfirmCard(userID, chatID int64) error {
	_, err := b.db.Exec(`UPDATE cards SET confirmed = 1 WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to confirm card: %w", err)
	}
	return nil
}

// UpdateCardStats overwrites a card's attributes and marks it confirmed.
// Used when the owner manually corrects mis-parsed stats.
func (b *BotDB) UpdateCardStats(userID, chatID int64, attrs models.CardAttributes) error {
	_, err := b.db.Exec(`
		UPDATE cards SET power = ?, defense = ?, rarity = ?, serial = ?, confirmed = 1
		WHERE user_id = ? AND chat_id = ?`,
		attrs.Power, attrs.Defense, string(attrs.Rarity), attrs.Serial, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to update card stats: %w", err)
	}
	return nil
}

// DeleteCard removes a user's card for a chat.
func (b *BotDB) DeleteCard(userID, chatID int64) error {
	_, err := b.db.Exec(`DELETE FROM cards WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

// SaveChallenge stores or replaces a challenger's pending challenge for a
// chat. At most one outstanding challenge per challenger per chat.
func (b *BotDB) SaveChallenge(ch *models.StoredChallenge) error {
	_, err := b.db.Exec(`
		INSERT OR REPLACE INTO challenges (challenger_id, challenger_name, opponent_name, chat_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ch.ChallengerID, ch.ChallengerName, ch.OpponentName, ch.ChatID, ch.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}

	return nil
}

// ListChallenges returns all pending challenges, oldest first.
// Used to restore tracker state after a restart.
func (b *BotDB) ListChallenges() ([]*models.StoredChallenge, error) {
	rows, err := b.db.Query(`
		SELECT challenger_id, challenger_name, opponent_name, chat_id, created_at
		FROM challenges ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*models.StoredChallenge
	for rows.Next() {
		var ch models.StoredChallenge
		if err := rows.Scan(&ch.ChallengerID, &ch.ChallengerName, &ch.OpponentName, &ch.ChatID, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, &ch)
	}

	return challenges, rows.Err()
}

// DeleteChallenge removes a challenger's pending challenge for a chat.
func (b *BotDB) DeleteChallenge(challengerID, chatID int64) error {
	_, err := b.db.Exec(`DELETE FROM challenges WHERE challenger_id = ? AND chat_id = ?`, challengerID, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// SaveBattle records a resolved battle in the history table.
// The exchange log is serialized to JSON.
func (b *BotDB) SaveBattle(chatID int64, sideA, sideB models.Participant, result *models.BattleResult) error {
	exchangesJSON, err := json.Marshal(result.Exchanges)
	if err != nil {
		return fmt.Errorf("failed to marshal exchanges: %w", err)
	}

	_, err = b.db.Exec(`
		INSERT INTO battles
			(id, chat_id, participant_a, participant_b, starting_a, starting_b, final_a, final_b, winner, exchanges, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, chatID, sideA.Name, sideB.Name,
		result.StartingA, result.StartingB, result.FinalA, result.FinalB,
		result.Winner.String(), string(exchangesJSON), time.Now())

	if err != nil {
		return fmt.Errorf("failed to save battle: %w", err)
	}

	return nil
}

// CountBattles returns the number of recorded battles for a chat.
func (b *BotDB) CountBattles(chatID int64) (int, error) {
	var count int
	err := b.db.QueryRow(`SELECT COUNT(*) FROM battles WHERE chat_id = ?`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count battles: %w", err)
	}
	return count, nil
}

// Close releases the underlying database connection.
func (b *BotDB) Close() error {
	return b.db.Close()
}

func scanCard(row *sql.Row) (*models.StoredCard, error) {
	var card models.StoredCard
	var rarity string
	var confirmed int
	var filePath sql.NullString

	err := row.Scan(&card.UserID, &card.Username, &card.ChatID, &filePath,
		&card.Attrs.Power, &card.Attrs.Defense, &rarity, &card.Attrs.Serial,
		&confirmed, &card.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}

	card.Attrs.Rarity = models.Rarity(rarity)
	card.Confirmed = confirmed != 0
	card.FilePath = filePath.String

	return &card, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
