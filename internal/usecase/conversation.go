package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nsfas-assistant/internal/domain"
)

// QuitToken ends a session, case-insensitively.
const QuitToken = "quit"

const (
	BotName = "NSFAS Chatbot"

	namePrompt      = "Before we start, may I have your name?"
	emailPrompt     = "Please enter your email address:"
	quitHint        = "Type 'quit' to exit."
	refusalMessage  = "Sorry, I can only answer NSFAS-related questions."
	ticketFollowUp  = "An NSFAS representative will contact you via email soon."
	ticketFailed    = "Sorry, we could not submit your request right now. Please try again in a moment."
	fallbackFailed  = "Sorry, I could not find an answer right now. Please try again shortly."
	flushFailed     = "Sorry, this session's log could not be saved."
	sessionEnded    = "Session ended. Thank you!"
	offTopicLogText = "Unrelated to NSFAS"
	fallbackNotice  = "Give me few seconds, let me get more info..."

	defaultCallTimeout    = 30 * time.Second
	defaultMaxQuestionLen = 1000
)

// MaxLineBytes bounds one input line. Longer lines are truncated, not
// rejected, so an oversized message is still an ordinary turn.
const MaxLineBytes = 1 << 20

// IntentResolver finds a stored response for a message.
type IntentResolver interface {
	Resolve(text string) (string, bool)
}

// Dependencies are the collaborators a Conversation needs.
type Dependencies struct {
	Completer Completer
	Resolver  IntentResolver
	Tickets   TicketStore
	Analytics AnalyticsStore
}

// Reply is what one turn produced for the user.
type Reply struct {
	Lines    []string
	Outcome  domain.Outcome
	Fallback bool
	Ticket   *domain.Ticket
	// Err is a recovered failure; the turn still produced Lines.
	Err error
}

// Conversation runs the per-message pipeline: escalation, language,
// relevance, intents and the model fallback.
type Conversation struct {
	language  *LanguageBridge
	fallback  *FallbackResponder
	desk      *EscalationDesk
	resolver  IntentResolver
	analytics AnalyticsStore

	keywords       []string
	callTimeout    time.Duration
	maxQuestionLen int
	now            func() time.Time
	logger         *slog.Logger
	deskOpts       []DeskOption
}

type Option func(*Conversation)

func WithKeywords(keywords []string) Option {
	return func(c *Conversation) {
		c.keywords = keywords
	}
}

// WithCallTimeout bounds every completion call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Conversation) {
		c.callTimeout = d
	}
}

func WithMaxQuestionLength(n int) Option {
	return func(c *Conversation) {
		if n > 0 {
			c.maxQuestionLen = n
		}
	}
}

// WithClock sets the clock used for turn and ticket timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		c.now = now
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithDeskOptions(opts ...DeskOption) Option {
	return func(c *Conversation) {
		c.deskOpts = append(c.deskOpts, opts...)
	}
}

func NewConversation(deps Dependencies, opts ...Option) (*Conversation, error) {
	if deps.Resolver == nil {
		return nil, errors.New("usecase: intent resolver must not be nil")
	}
	if deps.Analytics == nil {
		return nil, errors.New("usecase: analytics store must not be nil")
	}
	c := &Conversation{
		resolver:       deps.Resolver,
		analytics:      deps.Analytics,
		keywords:       DefaultKeywords,
		callTimeout:    defaultCallTimeout,
		maxQuestionLen: defaultMaxQuestionLen,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.language, err = NewLanguageBridge(deps.Completer); err != nil {
		return nil, err
	}
	if c.fallback, err = NewFallbackResponder(deps.Completer); err != nil {
		return nil, err
	}
	deskOpts := append([]DeskOption{WithDeskClock(c.now)}, c.deskOpts...)
	if c.desk, err = NewEscalationDesk(deps.Tickets, deskOpts...); err != nil {
		return nil, err
	}
	return c, nil
}

// HandleTurn processes one message and records exactly one turn in sess.
func (c *Conversation) HandleTurn(ctx context.Context, sess *Session, text string) Reply {
	return c.handleTurn(ctx, sess, text, nil)
}

// handleTurn calls notify, when set, with a progress line before the model
// fallback is consulted.
func (c *Conversation) handleTurn(ctx context.Context, sess *Session, text string, notify func(string)) Reply {
	turn := domain.Turn{UserInput: text, Translated: text, Timestamp: c.now()}

	var reply Reply
	if c.desk.Detect(text) {
		reply = c.escalate(ctx, sess.Student(), text, &turn)
	} else {
		var langErr error
		turn.Language, turn.Translated, langErr = c.toWorkingLanguage(ctx, text)
		reply = c.answer(ctx, turn.Translated, &turn, notify)
		reply.Err = errors.Join(reply.Err, langErr)
	}

	turn.Outcome = reply.Outcome
	sess.Record(turn)
	c.logger.Debug("turn handled",
		"session", sess.ID(),
		"outcome", turn.Outcome,
		"language", turn.Language,
		"used_external_service", turn.UsedExternalService,
	)
	return reply
}

func (c *Conversation) answer(ctx context.Context, text string, turn *domain.Turn, notify func(string)) Reply {
	if !IsRelevant(text, c.keywords) {
		turn.Response = offTopicLogText
		return Reply{Outcome: domain.OutcomeOffTopic, Lines: []string{refusalMessage}}
	}
	if response, ok := c.resolver.Resolve(text); ok {
		turn.Response = response
		return Reply{Outcome: domain.OutcomeIntentMatched, Lines: []string{response}}
	}
	if notify != nil {
		notify(fallbackNotice)
	}
	return c.answerWithFallback(ctx, text, turn)
}

func (c *Conversation) escalate(ctx context.Context, student Student, text string, turn *domain.Turn) Reply {
	t, err := c.desk.CreateTicket(ctx, student.Name, student.Email, text)
	if err != nil {
		c.logger.Error("ticket submission failed", "err", err)
		turn.Response = "Ticket submission failed"
		return Reply{Outcome: domain.OutcomeEscalated, Lines: []string{ticketFailed}, Err: err}
	}
	turn.Response = "Ticket created: " + t.Number
	return Reply{
		Outcome: domain.OutcomeEscalated,
		Lines: []string{
			"Your request has been submitted. Ticket Number: " + t.Number,
			ticketFollowUp,
		},
		Ticket: &t,
	}
}

// toWorkingLanguage returns the detected language and the English text. On
// any service failure it degrades to the original text and returns the
// failure alongside it.
func (c *Conversation) toWorkingLanguage(ctx context.Context, text string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", text, nil
	}

	callCtx, cancel := c.callContext(ctx)
	lang, err := c.language.DetectLanguage(callCtx, text)
	cancel()
	if err != nil {
		c.logger.Warn("language detection failed, using input as is", "err", err)
		return "", text, err
	}
	if isWorkingLanguage(lang) {
		return lang, text, nil
	}

	callCtx, cancel = c.callContext(ctx)
	translated, err := c.language.TranslateToEnglish(callCtx, text)
	cancel()
	if err != nil {
		c.logger.Warn("translation failed, using input as is", "language", lang, "err", err)
		return lang, text, err
	}
	return lang, translated, nil
}

func (c *Conversation) answerWithFallback(ctx context.Context, text string, turn *domain.Turn) Reply {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	answer, err := c.fallback.Answer(callCtx, text)
	if err != nil {
		c.logger.Warn("fallback answer failed", "err", err)
		turn.Response = fallbackFailed
		return Reply{Outcome: domain.OutcomeFallbackAnswered, Lines: []string{fallbackFailed}, Err: err}
	}
	turn.Response = answer
	turn.UsedExternalService = true
	return Reply{Outcome: domain.OutcomeFallbackAnswered, Lines: []string{answer}, Fallback: true}
}

func (c *Conversation) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// Run greets the student, then handles one line per turn until the quit
// token, end of input or cancellation. The session log is flushed exactly
// once on the way out, including when a turn panics.
func (c *Conversation) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := readLines(in)
	defer lines.stop()

	student, err := c.greet(ctx, lines, out)
	if err != nil {
		return err
	}
	sess, err := NewSession(c.analytics, student)
	if err != nil {
		return err
	}

	flushCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			_ = sess.Close(flushCtx)
			panic(r)
		}
	}()

	c.say(out, false,
		fmt.Sprintf("Hello %s, how can I assist you with NSFAS today?", student.Name),
		quitHint,
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines.c:
			if !ok {
				break loop
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if strings.EqualFold(text, QuitToken) {
				break loop
			}
			reply := c.handleTurn(ctx, sess, text, func(line string) { c.say(out, false, line) })
			c.say(out, reply.Fallback, reply.Lines...)
		}
	}

	if err := sess.Close(flushCtx); err != nil {
		c.logger.Error("analytics flush failed", "session", sess.ID(), "err", err)
		c.say(out, false, flushFailed)
		return err
	}
	c.say(out, false, sessionEnded)
	return lines.err()
}

func (c *Conversation) greet(ctx context.Context, lines *lineReader, out io.Writer) (Student, error) {
	name, err := c.ask(ctx, lines, out, namePrompt)
	if err != nil {
		return Student{}, err
	}
	email, err := c.ask(ctx, lines, out, emailPrompt)
	if err != nil {
		return Student{}, err
	}
	return Student{Name: name, Email: email}, nil
}

// ask repeats prompt until a non-blank line arrives.
func (c *Conversation) ask(ctx context.Context, lines *lineReader, out io.Writer, prompt string) (string, error) {
	for {
		c.say(out, false, prompt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines.c:
			if !ok {
				if err := lines.err(); err != nil {
					return "", err
				}
				return "", newError(ErrorInvalidInput, "input_closed_before_greeting", io.ErrUnexpectedEOF)
			}
			if v := strings.TrimSpace(line); v != "" {
				return v, nil
			}
		}
	}
}

func (c *Conversation) say(out io.Writer, fallback bool, lines ...string) {
	prefix := BotName + ": "
	if fallback {
		prefix = BotName + " (AI): "
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, prefix+l); err != nil {
			c.logger.Warn("write reply failed", "err", err)
			return
		}
	}
}

// AskInput is a single question asked outside an interactive session.
type AskInput struct {
	Question string
	Name     string
	Email    string
}

type AskOutput struct {
	Answer       string
	Outcome      domain.Outcome
	Fallback     bool
	TicketNumber string
	SessionID    string
	// Degraded is set when a service failure was absorbed into the answer.
	Degraded bool
}

// Ask runs one turn in a fresh session and flushes it before returning.
func (c *Conversation) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if len(question) > c.maxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}
	sess, err := NewSession(c.analytics, Student{Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email)})
	if err != nil {
		return AskOutput{}, err
	}

	reply := c.HandleTurn(ctx, sess, question)
	if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("analytics flush failed", "session", sess.ID(), "err", err)
	}
	// A ticket that was not stored must not look submitted to the caller.
	if HasCode(reply.Err, ErrorPersistence) {
		return AskOutput{SessionID: sess.ID(), Outcome: reply.Outcome}, reply.Err
	}

	out := AskOutput{
		Answer:    strings.Join(reply.Lines, " "),
		Outcome:   reply.Outcome,
		Fallback:  reply.Fallback,
		SessionID: sess.ID(),
		Degraded:  reply.Err != nil,
	}
	if reply.Ticket != nil {
		out.TicketNumber = reply.Ticket.Number
	}
	return out, nil
}

// lineReader is the single background reader feeding the turn loop.
type lineReader struct {
	c    chan string
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	readErr error
}

func readLines(r io.Reader) *lineReader {
	lr := &lineReader{c: make(chan string), done: make(chan struct{})}
	go func() {
		defer close(lr.c)
		br := bufio.NewReader(r)
		for {
			line, err := ReadLine(br)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					lr.mu.Lock()
					lr.readErr = err
					lr.mu.Unlock()
				}
				return
			}
			select {
			case lr.c <- line:
			case <-lr.done:
				return
			}
		}
	}()
	return lr
}

// ReadLine returns the next line from br without its terminator. Bytes past
// MaxLineBytes are discarded and a rune cut at the limit is dropped. A final
// line without a newline is returned before io.EOF.
func ReadLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(buf) > 0 {
				return strings.ToValidUTF8(string(buf), ""), nil
			}
			return "", err
		}
		if room := MaxLineBytes - len(buf); room > 0 {
			buf = append(buf, chunk[:min(len(chunk), room)]...)
		}
		if !isPrefix {
			return strings.ToValidUTF8(string(buf), ""), nil
		}
	}
}

func (lr *lineReader) stop() {
	lr.once.Do(func() { close(lr.done) })
}

func (lr *lineReader) err() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.readErr
}
