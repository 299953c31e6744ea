// Package bridge connects a presentation surface to a conversational worker
// process over newline-framed stdin/stdout.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("bridge: worker closed")

const (
	defaultGrace  = 5 * time.Second
	maxLineLength = 1 << 20 // matches usecase.MaxLineBytes
)

// Worker owns one conversational process. Send writes user lines; a single
// background reader delivers response lines on Responses until the process
// closes its output.
type Worker struct {
	mu     sync.Mutex
	stdin  io.WriteCloser
	closed bool

	responses chan string
	done      chan struct{}
	g         *errgroup.Group
	kill      func()
	grace     time.Duration

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Worker)

// WithGrace sets how long Close waits for the process to exit on its own
// before killing it.
func WithGrace(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.grace = d
		}
	}
}

// Start launches name with args. The process inherits this process's stderr
// so operator diagnostics stay visible. Cancelling ctx interrupts the process
// rather than killing it; the kill only comes after the grace period.
func Start(ctx context.Context, name string, args []string, opts ...Option) (*Worker, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("bridge: command must not be empty")
	}
	cfg := &Worker{grace: defaultGrace}
	for _, opt := range opts {
		opt(cfg)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = cfg.grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge: start %s: %w", name, err)
	}

	wait := func() error {
		err := cmd.Wait()
		// A clean exit after the interrupt is reported as the context error.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	kill := func() { _ = cmd.Process.Kill() }
	return newWorker(stdin, stdout, wait, kill, opts...), nil
}

// newWorker wires the reader and reaper goroutines. wait must only be called
// after stdout is fully read; kill forces stdout to close.
func newWorker(stdin io.WriteCloser, stdout io.Reader, wait func() error, kill func(), opts ...Option) *Worker {
	w := &Worker{
		stdin:     stdin,
		responses: make(chan string),
		done:      make(chan struct{}),
		g:         new(errgroup.Group),
		kill:      kill,
		grace:     defaultGrace,
	}
	for _, opt := range opts {
		opt(w)
	}

	readDone := make(chan struct{})
	w.g.Go(func() error {
		defer close(readDone)
		defer close(w.responses)
		return w.read(stdout)
	})
	w.g.Go(func() error {
		<-readDone
		if err := wait(); err != nil {
			return fmt.Errorf("bridge: worker exited: %w", err)
		}
		return nil
	})
	return w
}

func (w *Worker) read(stdout io.Reader) error {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for sc.Scan() {
		select {
		case w.responses <- sc.Text():
		case <-w.done:
			// Nobody is listening any more; drain so the process can exit.
			_, _ = io.Copy(io.Discard, stdout)
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("bridge: read output: %w", err)
	}
	return nil
}

// Send writes one line to the worker. Embedded newlines are flattened so one
// call is always one message.
func (w *Worker) Send(line string) error {
	line = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(line)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(w.stdin, line+"\n"); err != nil {
		return fmt.Errorf("bridge: send: %w", err)
	}
	return nil
}

// Responses yields worker output lines and is closed when the worker's output
// ends.
func (w *Worker) Responses() <-chan string {
	return w.responses
}

// Close ends the worker's input, stops delivering responses and waits for the
// reader and the process. Lines not yet received are discarded.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		stdinErr := w.stdin.Close()
		w.mu.Unlock()
		close(w.done)

		finished := make(chan error, 1)
		go func() { finished <- w.g.Wait() }()

		var runErr error
		select {
		case runErr = <-finished:
		case <-time.After(w.grace):
			if w.kill != nil {
				w.kill()
			}
			runErr = <-finished
		}
		if stdinErr != nil && !errors.Is(stdinErr, os.ErrClosed) {
			runErr = errors.Join(fmt.Errorf("bridge: close stdin: %w", stdinErr), runErr)
		}
		w.closeErr = runErr
	})
	return w.closeErr
}
