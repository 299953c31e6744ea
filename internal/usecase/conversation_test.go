package usecase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"nsfas-assistant/internal/domain"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	llm       *fakeCompleter
	resolver  *fakeResolver
	tickets   *memTickets
	analytics *memAnalytics
	conv      *Conversation
}

func newHarness(t *testing.T, llm *fakeCompleter) *harness {
	t.Helper()
	h := &harness{
		llm: llm,
		resolver: &fakeResolver{responses: map[string]string{
			"how do i apply for nsfas?": "Apply online at my.nsfas.org.za.",
		}},
		tickets:   &memTickets{},
		analytics: &memAnalytics{},
	}
	conv, err := NewConversation(Dependencies{
		Completer: h.llm,
		Resolver:  h.resolver,
		Tickets:   h.tickets,
		Analytics: h.analytics,
	},
		WithClock(fixedClock(testNow)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	h.conv = conv
	return h
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(h.analytics, student)
	require.NoError(t, err)
	return s
}

func TestNewConversation_ValidatesDependencies(t *testing.T) {
	full := Dependencies{Completer: english(), Resolver: &fakeResolver{}, Tickets: &memTickets{}, Analytics: &memAnalytics{}}

	for name, mutate := range map[string]func(*Dependencies){
		"completer": func(d *Dependencies) { d.Completer = nil },
		"resolver":  func(d *Dependencies) { d.Resolver = nil },
		"tickets":   func(d *Dependencies) { d.Tickets = nil },
		"analytics": func(d *Dependencies) { d.Analytics = nil },
	} {
		t.Run(name, func(t *testing.T) {
			deps := full
			mutate(&deps)
			_, err := NewConversation(deps)
			require.Error(t, err)
		})
	}
}

func TestHandleTurn_Escalation(t *testing.T) {
	h := newHarness(t, english())
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "I want to talk to an official")
	require.Equal(t, domain.OutcomeEscalated, reply.Outcome)
	require.NotNil(t, reply.Ticket)
	require.Equal(t, "TKT-20260302100000", reply.Ticket.Number)
	require.Equal(t, []string{
		"Your request has been submitted. Ticket Number: TKT-20260302100000",
		ticketFollowUp,
	}, reply.Lines)

	require.Len(t, h.tickets.tickets, 1)
	require.Equal(t, "Thandi", h.tickets.tickets[0].StudentName)
	require.Empty(t, h.llm.calls, "escalations skip language processing")

	turns := sess.Turns()
	require.Len(t, turns, 1)
	require.Equal(t, "Ticket created: TKT-20260302100000", turns[0].Response)
	require.False(t, turns[0].UsedExternalService)
}

func TestHandleTurn_EscalationWriteFailure(t *testing.T) {
	h := newHarness(t, english())
	h.tickets.err = errors.New("permission denied")
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "connect me with a representative")
	require.Equal(t, domain.OutcomeEscalated, reply.Outcome)
	require.Nil(t, reply.Ticket)
	require.True(t, HasCode(reply.Err, ErrorPersistence))
	require.Equal(t, []string{ticketFailed}, reply.Lines)
	for _, l := range reply.Lines {
		require.NotContains(t, l, "submitted")
	}
	require.Len(t, sess.Turns(), 1)
}

func TestHandleTurn_OffTopic(t *testing.T) {
	h := newHarness(t, english())
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "what's the weather")
	require.Equal(t, domain.OutcomeOffTopic, reply.Outcome)
	require.Equal(t, []string{refusalMessage}, reply.Lines)
	require.Zero(t, h.llm.countCalls(fallbackPersona))
	require.Zero(t, h.resolver.calls)

	turn := sess.Turns()[0]
	require.Equal(t, domain.OutcomeOffTopic, turn.Outcome)
	require.Equal(t, offTopicLogText, turn.Response)
	require.Equal(t, "english", turn.Language)
}

func TestHandleTurn_IntentMatched(t *testing.T) {
	h := newHarness(t, english())
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "How do I apply for NSFAS?")
	require.Equal(t, domain.OutcomeIntentMatched, reply.Outcome)
	require.Equal(t, []string{"Apply online at my.nsfas.org.za."}, reply.Lines)
	require.False(t, reply.Fallback)
	require.Zero(t, h.llm.countCalls(translateInstruction))
	require.Zero(t, h.llm.countCalls(fallbackPersona))
}

func TestHandleTurn_TranslatesNonEnglish(t *testing.T) {
	h := newHarness(t, &fakeCompleter{language: "isiZulu", translation: "How do I apply for NSFAS?"})
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "Ngifaka kanjani isicelo se-NSFAS?")
	require.Equal(t, domain.OutcomeIntentMatched, reply.Outcome)

	turn := sess.Turns()[0]
	require.Equal(t, "isizulu", turn.Language)
	require.Equal(t, "Ngifaka kanjani isicelo se-NSFAS?", turn.UserInput)
	require.Equal(t, "How do I apply for NSFAS?", turn.Translated)
}

func TestHandleTurn_Fallback(t *testing.T) {
	llm := english()
	llm.answer = "NSFAS offers loans. You can apply online. Deadlines apply."
	h := newHarness(t, llm)
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "I need a loan")
	require.Equal(t, domain.OutcomeFallbackAnswered, reply.Outcome)
	require.True(t, reply.Fallback)
	require.Equal(t, []string{"NSFAS offers loans. You can apply online."}, reply.Lines)
	require.Equal(t, 1, h.resolver.calls)

	turn := sess.Turns()[0]
	require.True(t, turn.UsedExternalService)
	require.Equal(t, testNow, turn.Timestamp)
}

func TestHandleTurn_FallbackFailureDegrades(t *testing.T) {
	llm := english()
	llm.answerErr = errors.New("unreachable")
	h := newHarness(t, llm)
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "I need a loan")
	require.Equal(t, domain.OutcomeFallbackAnswered, reply.Outcome)
	require.False(t, reply.Fallback)
	require.Equal(t, []string{fallbackFailed}, reply.Lines)
	require.True(t, HasCode(reply.Err, ErrorExternalService))
	require.False(t, sess.Turns()[0].UsedExternalService)
}

func TestHandleTurn_LanguageFailureUsesRawText(t *testing.T) {
	llm := english()
	llm.detectErr = errors.New("unreachable")
	h := newHarness(t, llm)
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "How do I apply for NSFAS?")
	require.Equal(t, domain.OutcomeIntentMatched, reply.Outcome)
	require.Equal(t, []string{"Apply online at my.nsfas.org.za."}, reply.Lines)
	expectError(t, reply.Err, ErrorExternalService, "detect_language_error")
	require.Empty(t, sess.Turns()[0].Language)
	require.Zero(t, llm.countCalls(translateInstruction))
}

func TestHandleTurn_TranslationFailureUsesRawText(t *testing.T) {
	h := newHarness(t, &fakeCompleter{language: "afrikaans", translateErr: errors.New("boom"), answer: "Yes."})
	sess := h.session(t)

	reply := h.conv.HandleTurn(context.Background(), sess, "Ek het 'n loan nodig")
	require.Equal(t, domain.OutcomeFallbackAnswered, reply.Outcome)
	turn := sess.Turns()[0]
	require.Equal(t, "afrikaans", turn.Language)
	require.Equal(t, "Ek het 'n loan nodig", turn.Translated)
	expectError(t, reply.Err, ErrorExternalService, "translate_error")
}

// blockingCompleter never answers before the caller gives up.
type blockingCompleter struct{}

func (blockingCompleter) Generate(ctx context.Context, _ []string, _ domain.GenerateOptions) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHandleTurn_CallTimeout(t *testing.T) {
	conv, err := NewConversation(Dependencies{
		Completer: blockingCompleter{},
		Resolver:  &fakeResolver{},
		Tickets:   &memTickets{},
		Analytics: &memAnalytics{},
	}, WithCallTimeout(time.Millisecond), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	sess, err := NewSession(&memAnalytics{}, student)
	require.NoError(t, err)

	reply := conv.HandleTurn(context.Background(), sess, "I need a loan")
	require.Equal(t, domain.OutcomeFallbackAnswered, reply.Outcome)
	expectError(t, reply.Err, ErrorExternalService, "fallback_timeout")
	require.Equal(t, []string{fallbackFailed}, reply.Lines)
	require.Empty(t, sess.Turns()[0].Language)
}

func outcomes(turns []domain.Turn) []domain.Outcome {
	out := make([]domain.Outcome, len(turns))
	for i, t := range turns {
		out[i] = t.Outcome
	}
	return out
}

func TestRun_QuitFlushesOnceInOrder(t *testing.T) {
	h := newHarness(t, english())
	in := strings.NewReader(strings.Join([]string{
		"Thandi",
		"thandi@example.com",
		"How do I apply for NSFAS?",
		"",
		"what's the weather",
		"talk to an official please",
		"I need a loan",
		"QUIT",
		"this line is never processed",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, h.conv.Run(context.Background(), in, &out))

	require.Equal(t, 1, h.analytics.saves)
	want := []domain.Outcome{
		domain.OutcomeIntentMatched,
		domain.OutcomeOffTopic,
		domain.OutcomeEscalated,
		domain.OutcomeFallbackAnswered,
	}
	if diff := cmp.Diff(want, outcomes(h.analytics.last)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "How do I apply for NSFAS?", h.analytics.last[0].UserInput)

	text := out.String()
	require.Contains(t, text, "NSFAS Chatbot: Hello Thandi, how can I assist you with NSFAS today?")
	require.Contains(t, text, "NSFAS Chatbot: Apply online at my.nsfas.org.za.")
	require.Contains(t, text, "NSFAS Chatbot: "+fallbackNotice+"\nNSFAS Chatbot (AI): NSFAS offers loans. Apply online.")
	require.Equal(t, 1, strings.Count(text, fallbackNotice))
	require.True(t, strings.HasSuffix(text, "NSFAS Chatbot: Session ended. Thank you!\n"))
	require.Equal(t, "thandi@example.com", h.tickets.tickets[0].Email)
}

func TestRun_EndOfInputFlushes(t *testing.T) {
	h := newHarness(t, english())
	var out bytes.Buffer

	require.NoError(t, h.conv.Run(context.Background(), strings.NewReader("n\ne\nI need a loan\n"), &out))
	require.Equal(t, 1, h.analytics.saves)
	require.Len(t, h.analytics.last, 1)
}

func TestRun_OversizedLineIsOrdinaryTurn(t *testing.T) {
	h := newHarness(t, english())
	long := "nsfas " + strings.Repeat("a", MaxLineBytes+1024)
	in := strings.NewReader("Thandi\nt@example.com\n" + long + "\nI need a loan\nquit\n")
	var out bytes.Buffer

	require.NoError(t, h.conv.Run(context.Background(), in, &out))
	require.Equal(t, 1, h.analytics.saves)
	require.Len(t, h.analytics.last, 2)
	require.Len(t, h.analytics.last[0].UserInput, MaxLineBytes)
	require.Equal(t, "I need a loan", h.analytics.last[1].UserInput)
	require.True(t, strings.HasSuffix(out.String(), sessionEnded+"\n"))
}

func TestReadLine(t *testing.T) {
	long := strings.Repeat("x", MaxLineBytes-1) + "é" + "tail"
	br := bufio.NewReader(strings.NewReader("first\r\n" + long + "\nlast"))

	line, err := ReadLine(br)
	require.NoError(t, err)
	require.Equal(t, "first", line)

	line, err = ReadLine(br)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("x", MaxLineBytes-1), line, "a rune cut at the limit is dropped")

	line, err = ReadLine(br)
	require.NoError(t, err)
	require.Equal(t, "last", line)

	_, err = ReadLine(br)
	require.ErrorIs(t, err, io.EOF)
}

func TestRun_RepromptsBlankGreeting(t *testing.T) {
	h := newHarness(t, english())
	var out bytes.Buffer

	require.NoError(t, h.conv.Run(context.Background(), strings.NewReader("\n  \nThandi\n\nt@example.com\nquit\n"), &out))
	require.Equal(t, 3, strings.Count(out.String(), namePrompt))
	require.Equal(t, 2, strings.Count(out.String(), emailPrompt))
	require.Contains(t, out.String(), "Hello Thandi")
}

func TestRun_InputClosedBeforeGreeting(t *testing.T) {
	h := newHarness(t, english())
	var out bytes.Buffer

	err := h.conv.Run(context.Background(), strings.NewReader("Thandi\n"), &out)
	expectError(t, err, ErrorInvalidInput, "input_closed_before_greeting")
	require.Zero(t, h.analytics.saves)
}

func TestRun_FlushFailureIsReported(t *testing.T) {
	h := newHarness(t, english())
	h.analytics.err = errors.New("disk full")
	var out bytes.Buffer

	err := h.conv.Run(context.Background(), strings.NewReader("n\ne\nquit\n"), &out)
	expectError(t, err, ErrorPersistence, "analytics_write_error")
	require.Contains(t, out.String(), flushFailed)
	require.NotContains(t, out.String(), sessionEnded)
}

func TestRun_CancellationFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := english()
	llm.onAnswer = cancel
	h := newHarness(t, llm)

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	go func() {
		_, _ = io.WriteString(pw, "n\ne\nI need a loan\n")
	}()

	var out bytes.Buffer
	require.NoError(t, h.conv.Run(ctx, pr, &out))
	require.Equal(t, 1, h.analytics.saves)
	require.Len(t, h.analytics.last, 1)
}

type panickingResolver struct{}

func (panickingResolver) Resolve(string) (string, bool) { panic("resolver exploded") }

func TestRun_PanicStillFlushes(t *testing.T) {
	analytics := &memAnalytics{}
	conv, err := NewConversation(Dependencies{
		Completer: english(),
		Resolver:  panickingResolver{},
		Tickets:   &memTickets{},
		Analytics: analytics,
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = conv.Run(context.Background(), strings.NewReader("n\ne\nHow do I apply for NSFAS?\n"), io.Discard)
	})
	require.Equal(t, 1, analytics.saves)
}

func TestAsk(t *testing.T) {
	h := newHarness(t, english())

	out, err := h.conv.Ask(context.Background(), AskInput{Question: "How do I apply for NSFAS?", Name: "n", Email: "e"})
	require.NoError(t, err)
	require.Equal(t, "Apply online at my.nsfas.org.za.", out.Answer)
	require.Equal(t, domain.OutcomeIntentMatched, out.Outcome)
	require.NotEmpty(t, out.SessionID)
	require.Equal(t, 1, h.analytics.saves)

	out, err = h.conv.Ask(context.Background(), AskInput{Question: "talk to an official", Name: "n", Email: "e"})
	require.NoError(t, err)
	require.Equal(t, "TKT-20260302100000", out.TicketNumber)
}

func TestAsk_DegradedAnswerIsFlagged(t *testing.T) {
	llm := english()
	llm.detectErr = errors.New("unreachable")
	h := newHarness(t, llm)

	out, err := h.conv.Ask(context.Background(), AskInput{Question: "How do I apply for NSFAS?", Name: "n", Email: "e"})
	require.NoError(t, err)
	require.Equal(t, "Apply online at my.nsfas.org.za.", out.Answer)
	require.True(t, out.Degraded)

	llm.detectErr = nil
	out, err = h.conv.Ask(context.Background(), AskInput{Question: "How do I apply for NSFAS?", Name: "n", Email: "e"})
	require.NoError(t, err)
	require.False(t, out.Degraded)
}

func TestAsk_ValidationErrors(t *testing.T) {
	h := newHarness(t, english())

	_, err := h.conv.Ask(context.Background(), AskInput{Question: " ", Name: "n", Email: "e"})
	expectError(t, err, ErrorInvalidInput, "empty_question")

	_, err = h.conv.Ask(context.Background(), AskInput{Question: strings.Repeat("a", defaultMaxQuestionLen+1), Name: "n", Email: "e"})
	expectError(t, err, ErrorInvalidInput, "question_too_long")

	_, err = h.conv.Ask(context.Background(), AskInput{Question: "loan", Email: "e"})
	expectError(t, err, ErrorInvalidInput, "empty_name")
}

func TestAsk_TicketWriteFailureIsReturned(t *testing.T) {
	h := newHarness(t, english())
	h.tickets.err = errors.New("disk full")

	out, err := h.conv.Ask(context.Background(), AskInput{Question: "I want to speak to an NSFAS agent", Name: "n", Email: "e"})
	expectError(t, err, ErrorPersistence, "ticket_write_error")
	require.Empty(t, out.TicketNumber)
	require.Equal(t, domain.OutcomeEscalated, out.Outcome)
	require.Equal(t, 1, h.analytics.saves)
}
