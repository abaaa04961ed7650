package campaign

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable record of campaigns. Campaigns are never
// deleted; history grows without bound.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	instance       TEXT NOT NULL,
	status         TEXT NOT NULL,
	contacts       TEXT NOT NULL,
	message        TEXT NOT NULL,
	attachment     TEXT,
	total_contacts INTEGER NOT NULL,
	sent_count     INTEGER NOT NULL DEFAULT 0,
	failed_count   INTEGER NOT NULL DEFAULT 0,
	last_action    TEXT NOT NULL DEFAULT '',
	start_time     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campaigns_instance ON campaigns(instance, start_time DESC);
`

// NewStore opens (creating if needed) the campaign database.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open campaign database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate campaign database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create records a new campaign in Running state with zero counters
// and returns its id.
func (s *Store) Create(instance string, contacts []Contact, message string, attachment *Attachment) (string, error) {
	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return "", fmt.Errorf("failed to encode contacts: %w", err)
	}

	var attachmentJSON sql.NullString
	if attachment != nil {
		raw, err := json.Marshal(attachment)
		if err != nil {
			return "", fmt.Errorf("failed to encode attachment: %w", err)
		}
		attachmentJSON = sql.NullString{String: string(raw), Valid: true}
	}

	id := uuid.NewString()
	query := `
		INSERT INTO campaigns (id, instance, status, contacts, message, attachment, total_contacts, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, id, instance, StatusRunning, string(contactsJSON), message, attachmentJSON, len(contacts), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert campaign: %w", err)
	}
	return id, nil
}

// RecordOutcome increments one counter and replaces the progress line.
// The dispatcher is the single writer per campaign id.
func (s *Store) RecordOutcome(id string, sent bool, logLine string) error {
	column := "failed_count"
	if sent {
		column = "sent_count"
	}
	query := fmt.Sprintf(`UPDATE campaigns SET %s = %s + 1, last_action = ? WHERE id = ?`, column, column)
	res, err := s.db.Exec(query, logLine, id)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return nil
}

// Finish sets the terminal status and the closing progress line.
func (s *Store) Finish(id, status, logLine string) error {
	res, err := s.db.Exec(`UPDATE campaigns SET status = ?, last_action = ? WHERE id = ?`, status, logLine, id)
	if err != nil {
		return fmt.Errorf("failed to finish campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetStatus returns the polling snapshot for one campaign.
func (s *Store) GetStatus(id string) (*StatusInfo, error) {
	var info StatusInfo
	err := s.db.QueryRow(
		`SELECT status, last_action, sent_count, failed_count FROM campaigns WHERE id = ?`, id,
	).Scan(&info.Status, &info.LastAction, &info.SentCount, &info.FailedCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	return &info, nil
}

// ListHistory returns campaign summaries for one instance, newest
// first.
func (s *Store) ListHistory(instance string) ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, start_time, status, total_contacts, sent_count, failed_count
		FROM campaigns WHERE instance = ? ORDER BY start_time DESC
	`, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []Summary{}
	for rows.Next() {
		var entry Summary
		if err := rows.Scan(&entry.ID, &entry.StartTime, &entry.Status, &entry.TotalContacts, &entry.SentCount, &entry.FailedCount); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}
