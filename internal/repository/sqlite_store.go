package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"nsfas-assistant/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_number TEXT PRIMARY KEY,
	student_name  TEXT NOT NULL,
	email         TEXT NOT NULL,
	question      TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS analytics_turns (
	session_id            TEXT NOT NULL,
	seq                   INTEGER NOT NULL,
	user_input            TEXT NOT NULL,
	language              TEXT NOT NULL,
	translated_input      TEXT NOT NULL,
	outcome               TEXT NOT NULL,
	response              TEXT NOT NULL,
	used_external_service INTEGER NOT NULL,
	created_at            TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);`

// SQLiteStore keeps tickets and analytics turns in one local database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and ensures the schema.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and writes serial.
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) AppendTicket(ctx context.Context, t domain.Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (ticket_number, student_name, email, question, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.Number, t.StudentName, t.Email, t.Question, t.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("repository: AppendTicket: %w", err)
	}
	return nil
}

// SaveSession replaces every stored turn of the session in one transaction.
func (s *SQLiteStore) SaveSession(ctx context.Context, sessionID string, turns []domain.Turn) error {
	if sessionID == "" {
		return errors.New("repository: SaveSession: session id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: SaveSession begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analytics_turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("repository: SaveSession clear: %w", err)
	}
	for i, turn := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_turns (session_id, seq, user_input, language, translated_input, outcome, response, used_external_service, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, turn.UserInput, turn.Language, turn.Translated, string(turn.Outcome),
			turn.Response, turn.UsedExternalService, turn.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("repository: SaveSession insert turn %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: SaveSession commit: %w", err)
	}
	return nil
}

// SessionTurns returns the stored turns of a session in order.
func (s *SQLiteStore) SessionTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_input, language, translated_input, outcome, response, used_external_service, created_at
		 FROM analytics_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: SessionTurns query: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			turn    domain.Turn
			outcome string
			created string
		)
		if err := rows.Scan(&turn.UserInput, &turn.Language, &turn.Translated, &outcome,
			&turn.Response, &turn.UsedExternalService, &created); err != nil {
			return nil, fmt.Errorf("repository: SessionTurns scan: %w", err)
		}
		turn.Outcome = domain.Outcome(outcome)
		if turn.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("repository: SessionTurns parse time: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: SessionTurns rows: %w", err)
	}
	return turns, nil
}

// PendingTickets lists stored tickets oldest first.
func (s *SQLiteStore) PendingTickets(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_number, student_name, email, question, created_at FROM tickets ORDER BY created_at, ticket_number`)
	if err != nil {
		return nil, fmt.Errorf("repository: PendingTickets query: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var (
			t       domain.Ticket
			created string
		)
		if err := rows.Scan(&t.Number, &t.StudentName, &t.Email, &t.Question, &created); err != nil {
			return nil, fmt.Errorf("repository: PendingTickets scan: %w", err)
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("repository: PendingTickets parse time: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: PendingTickets rows: %w", err)
	}
	return out, nil
}
