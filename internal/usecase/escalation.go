package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"nsfas-assistant/internal/domain"
)

const (
	ticketPrefix     = "TKT-"
	ticketTimeLayout = "20060102150405"
)

var (
	// DefaultActionTerms signal that the student wants to be put through to someone.
	DefaultActionTerms = []string{"speak to", "talk to", "connect me", "chat with", "reach out"}
	// DefaultRoleTerms name the people a student may ask for.
	DefaultRoleTerms = []string{"intern", "official", "nsfas staff", "nsfas agent", "representative"}
)

// TicketStore persists escalation tickets. AppendTicket must not return
// before the record is durable.
type TicketStore interface {
	AppendTicket(ctx context.Context, t domain.Ticket) error
}

// EscalationDesk recognises requests for a human agent and files tickets.
type EscalationDesk struct {
	store   TicketStore
	actions []string
	roles   []string
	now     func() time.Time

	mu       sync.Mutex
	lastSlot time.Time
}

type DeskOption func(*EscalationDesk)

func WithTerms(actions, roles []string) DeskOption {
	return func(d *EscalationDesk) {
		d.actions = lowerAll(actions)
		d.roles = lowerAll(roles)
	}
}

func WithDeskClock(now func() time.Time) DeskOption {
	return func(d *EscalationDesk) {
		d.now = now
	}
}

func NewEscalationDesk(store TicketStore, opts ...DeskOption) (*EscalationDesk, error) {
	if store == nil {
		return nil, errors.New("usecase: ticket store must not be nil")
	}
	d := &EscalationDesk{
		store:   store,
		actions: lowerAll(DefaultActionTerms),
		roles:   lowerAll(DefaultRoleTerms),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if len(d.actions) == 0 || len(d.roles) == 0 {
		return nil, errors.New("usecase: escalation terms must not be empty")
	}
	return d, nil
}

// Detect reports whether text holds both an action term and a role term.
func (d *EscalationDesk) Detect(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, d.actions) && containsAny(lower, d.roles)
}

// CreateTicket files a ticket and returns it once the store has accepted it.
// Ticket numbers have second precision; a number already issued by this desk
// is bumped to the next free second.
func (d *EscalationDesk) CreateTicket(ctx context.Context, name, email, question string) (domain.Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	slot := now.Truncate(time.Second)
	if !slot.After(d.lastSlot) {
		slot = d.lastSlot.Add(time.Second)
	}

	t := domain.Ticket{
		Number:      ticketPrefix + slot.Format(ticketTimeLayout),
		StudentName: name,
		Email:       email,
		Question:    question,
		Timestamp:   now,
	}
	if err := d.store.AppendTicket(ctx, t); err != nil {
		return domain.Ticket{}, newError(ErrorPersistence, "ticket_write_error", err)
	}
	d.lastSlot = slot
	return t, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
