package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"nsfas-assistant/internal/domain"
)

// AnalyticsStore persists the full turn sequence of a session, replacing any
// earlier write for the same session.
type AnalyticsStore interface {
	SaveSession(ctx context.Context, sessionID string, turns []domain.Turn) error
}

// Student is the operator-supplied identity collected before the loop.
type Student struct {
	Name  string
	Email string
}

func (s Student) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return newError(ErrorInvalidInput, "empty_name", nil)
	}
	if strings.TrimSpace(s.Email) == "" {
		return newError(ErrorInvalidInput, "empty_email", nil)
	}
	return nil
}

// Session is the interaction log of one conversation. It is owned by a single
// worker; the mutex only guards against misuse.
type Session struct {
	id      string
	student Student
	store   AnalyticsStore

	mu     sync.Mutex
	turns  []domain.Turn
	closed bool
}

func NewSession(store AnalyticsStore, student Student) (*Session, error) {
	if store == nil {
		return nil, errors.New("usecase: analytics store must not be nil")
	}
	if err := student.validate(); err != nil {
		return nil, err
	}
	return &Session{id: newUUID(), student: student, store: store}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Student() Student {
	return s.student
}

// Record appends a turn.
func (s *Session) Record(turn domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the recorded turns in order.
func (s *Session) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.turns...)
}

// Flush writes every recorded turn. The in-memory sequence is kept, so a
// failed flush can be retried.
func (s *Session) Flush(ctx context.Context) error {
	turns := s.Turns()
	if err := s.store.SaveSession(ctx, s.id, turns); err != nil {
		return newError(ErrorPersistence, "analytics_write_error", err)
	}
	return nil
}

// Close flushes the session once. Later calls after a successful close are
// no-ops; after a failed one they retry.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}
