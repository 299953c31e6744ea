package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nsfas-assistant/internal/app"
)

func newTopicsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "topics [query]",
		Short: "List intent tags, optionally fuzzy-filtered by query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.LoadIntents(opts.config())
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			for _, tag := range store.Search(query) {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}
}

func newMatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "match <question>",
		Short: "Show which intent a question resolves to, without calling any service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, resolver, err := app.LoadIntents(opts.config())
			if err != nil {
				return err
			}
			m, ok := resolver.Match(strings.Join(args, " "))
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no intent matched")
				return nil
			}
			kind := "fuzzy"
			if m.Exact {
				kind = "exact"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %.2f): %s\n", m.Tag, kind, m.Score, m.Response)
			return nil
		},
	}
}
