package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "NSFAS student funding chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			// stdout carries the conversation; diagnostics go to stderr.
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	opts.register(root.PersistentFlags())

	root.AddCommand(
		newChatCmd(opts),
		newConsoleCmd(),
		newTopicsCmd(opts),
		newMatchCmd(opts),
		newTicketsCmd(opts),
		newSessionCmd(opts),
	)
	return root
}

// forwardedFlags returns the persistent flags the user set explicitly, in
// --name=value form.
func forwardedFlags(cmd *cobra.Command) []string {
	var args []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	return args
}
