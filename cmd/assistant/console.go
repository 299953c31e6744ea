package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nsfas-assistant/internal/bridge"
	"nsfas-assistant/internal/usecase"
)

// worker is the part of bridge.Worker the console drives.
type worker interface {
	Send(line string) error
	Responses() <-chan string
	Close() error
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console that runs the chat worker as a separate process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("console: locate executable: %w", err)
			}
			args := append([]string{"chat"}, forwardedFlags(cmd)...)
			w, err := bridge.Start(cmd.Context(), self, args)
			if err != nil {
				return err
			}
			slog.Debug("worker started", "cmd", self, "args", args)
			return runConsole(cmd.Context(), w, os.Stdin, os.Stdout)
		},
	}
}

var (
	botColor   = color.New(color.FgGreen)
	aiColor    = color.New(color.FgCyan)
	otherColor = color.New(color.FgYellow)
)

func printLine(out io.Writer, line string) {
	switch {
	case strings.HasPrefix(line, usecase.BotName+" (AI):"):
		aiColor.Fprintln(out, line)
	case strings.HasPrefix(line, usecase.BotName+":"):
		botColor.Fprintln(out, line)
	default:
		otherColor.Fprintln(out, line)
	}
}

// runConsole forwards user lines to the worker and prints its replies as they
// arrive, until the worker ends its output or ctx is done.
func runConsole(ctx context.Context, w worker, in io.Reader, out io.Writer) error {
	input := make(chan string)
	go func() {
		defer close(input)
		br := bufio.NewReader(in)
		for {
			line, err := usecase.ReadLine(br)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Warn("reading console input failed", "err", err)
				}
				return
			}
			select {
			case input <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	responses := w.Responses()
	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case line, ok := <-responses:
			if !ok {
				return w.Close()
			}
			printLine(out, line)
		case line, ok := <-input:
			if !ok {
				// End of user input ends the worker's input too; keep
				// printing until it finishes.
				input = nil
				if err := w.Send(usecase.QuitToken); err != nil {
					slog.Debug("worker already stopped", "err", err)
				}
				continue
			}
			if err := w.Send(line); err != nil {
				_ = w.Close()
				return fmt.Errorf("console: %w", err)
			}
		}
	}
}
