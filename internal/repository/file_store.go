package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nsfas-assistant/internal/domain"
)

const (
	DefaultTicketsPath   = "pending_tickets.json"
	DefaultAnalyticsPath = "analytics_log.json"
)

// TicketFile appends one JSON object per line to a local file.
type TicketFile struct {
	mu   sync.Mutex
	path string
}

func NewTicketFile(path string) (*TicketFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: ticket file path must not be empty")
	}
	return &TicketFile{path: path}, nil
}

// AppendTicket writes the ticket as a single line and syncs before returning.
func (f *TicketFile) AppendTicket(ctx context.Context, t domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repository: AppendTicket: %w", err)
	}
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("repository: AppendTicket marshal: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("repository: AppendTicket open: %w", err)
	}
	if _, err := fh.Write(line); err != nil {
		_ = fh.Close()
		return fmt.Errorf("repository: AppendTicket write: %w", err)
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		return fmt.Errorf("repository: AppendTicket sync: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("repository: AppendTicket close: %w", err)
	}
	return nil
}

// PendingTickets reads every ticket in file order. A missing file holds no
// tickets.
func (f *TicketFile) PendingTickets(ctx context.Context) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("repository: PendingTickets: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: PendingTickets open: %w", err)
	}
	defer fh.Close()

	var out []domain.Ticket
	dec := json.NewDecoder(fh)
	for {
		var t domain.Ticket
		if err := dec.Decode(&t); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("repository: PendingTickets decode ticket %d: %w", len(out)+1, err)
		}
		out = append(out, t)
	}
}

// AnalyticsFile overwrites a local file with the turns of the latest session
// as one indented JSON array.
type AnalyticsFile struct {
	mu   sync.Mutex
	path string
}

func NewAnalyticsFile(path string) (*AnalyticsFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: analytics file path must not be empty")
	}
	return &AnalyticsFile{path: path}, nil
}

// SaveSession replaces the file atomically. The session ID is not part of the
// file format.
func (f *AnalyticsFile) SaveSession(ctx context.Context, _ string, turns []domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repository: SaveSession: %w", err)
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "    ")
	if err != nil {
		return fmt.Errorf("repository: SaveSession marshal: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("repository: SaveSession create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("repository: SaveSession chmod: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("repository: SaveSession write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("repository: SaveSession sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("repository: SaveSession close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("repository: SaveSession rename: %w", err)
	}
	return nil
}
