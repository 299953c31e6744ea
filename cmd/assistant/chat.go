package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nsfas-assistant/internal/app"
)

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Run one conversation over stdin and stdout",
		Long: `Run the conversational worker. Each input line is one message and every
reply is written as one or more lines prefixed with the bot name. The session
ends on "quit" or end of input and its turns are written to the analytics store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.config()
			cfg.Logger = slog.Default()

			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					slog.Warn("closing stores failed", "err", err)
				}
			}()

			if err := a.Conversation.Run(cmd.Context(), os.Stdin, os.Stdout); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		},
	}
}
