package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"nsfas-assistant/internal/domain"
)

// fakeCompleter answers by instruction: language detection, translation or
// the fallback persona.
type fakeCompleter struct {
	language    string
	translation string
	answer      string

	detectErr    error
	translateErr error
	answerErr    error
	onAnswer     func()

	mu    sync.Mutex
	calls [][]string
	opts  []domain.GenerateOptions
}

func (f *fakeCompleter) Generate(ctx context.Context, parts []string, opts domain.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, parts)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch parts[0] {
	case detectLanguageInstruction:
		return f.language, f.detectErr
	case translateInstruction:
		return f.translation, f.translateErr
	case fallbackPersona:
		if f.onAnswer != nil {
			f.onAnswer()
		}
		return f.answer, f.answerErr
	}
	return "", errors.New("unexpected prompt")
}

func (f *fakeCompleter) countCalls(instruction string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == instruction {
			n++
		}
	}
	return n
}

func english() *fakeCompleter {
	return &fakeCompleter{language: "English", answer: "NSFAS offers loans. Apply online."}
}

type fakeResolver struct {
	responses map[string]string
	calls     int
}

func (f *fakeResolver) Resolve(text string) (string, bool) {
	f.calls++
	r, ok := f.responses[strings.ToLower(text)]
	return r, ok
}

type memTickets struct {
	tickets []domain.Ticket
	err     error
}

func (m *memTickets) AppendTicket(_ context.Context, t domain.Ticket) error {
	if m.err != nil {
		return m.err
	}
	m.tickets = append(m.tickets, t)
	return nil
}

type memAnalytics struct {
	saves    int
	err      error
	failOnce bool
	last     []domain.Turn
	lastID   string
}

func (m *memAnalytics) SaveSession(_ context.Context, id string, turns []domain.Turn) error {
	m.saves++
	if m.failOnce {
		m.failOnce = false
		return errors.New("disk full")
	}
	if m.err != nil {
		return m.err
	}
	m.lastID = id
	m.last = append([]domain.Turn(nil), turns...)
	return nil
}
