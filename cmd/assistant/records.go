package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nsfas-assistant/internal/app"
)

func newTicketsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tickets",
		Short: "List escalation tickets waiting for an NSFAS representative",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := app.OpenRecords(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer r.Close()

			tickets, err := r.Tickets.PendingTickets(cmd.Context())
			if err != nil {
				return fmt.Errorf("tickets: %w", err)
			}
			if len(tickets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending tickets")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TICKET\tCREATED\tSTUDENT\tEMAIL\tQUESTION")
			for _, t := range tickets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					t.Number, t.Timestamp.Format("2006-01-02 15:04:05"), t.StudentName, t.Email, t.Question)
			}
			return tw.Flush()
		},
	}
}

func newSessionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Print the turns a session stored, as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := app.OpenRecords(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer r.Close()

			if r.Sessions == nil {
				return fmt.Errorf("session: store backend %q keeps only the latest session; use sqlite or dynamodb", opts.storeBackend)
			}
			turns, err := r.Sessions.SessionTurns(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("session: %w", err)
			}
			if len(turns) == 0 {
				return fmt.Errorf("session: no turns stored for %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(turns)
		},
	}
}
