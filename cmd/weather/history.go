package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/weather-lookup/internal/history"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show and manage recent searches",
	}
	cmd.AddCommand(
		newHistoryListCmd(opts),
		newHistoryRemoveCmd(opts),
		newHistoryClearCmd(opts),
		newHistoryMaxCmd(opts),
	)
	return cmd
}

func newHistoryListCmd(opts *globalOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent searches, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				state := a.orchestrator.History()
				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(state)
				}
				if len(state.Items) == 0 {
					fmt.Fprintf(out, "No recent searches (keeping up to %d).\n", state.MaxLength)
					return nil
				}
				now := time.Now()
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLOCATION\tSEARCHED")
				for _, e := range state.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, history.Label(e.City, e.Country), history.RelativeTime(e.Timestamp, now))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d of %d slots used.\n", len(state.Items), state.MaxLength)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print history as JSON")
	return cmd
}

func newHistoryRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove entries by id",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				for _, id := range args {
					a.orchestrator.DeleteHistoryEntry(id)
				}
				return nil
			})
		},
	}
}

func newHistoryClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				a.orchestrator.ClearHistory()
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			})
		},
	}
}

func newHistoryMaxCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "max [n]",
		Short: "Show or set how many searches are kept",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					fmt.Fprintln(out, a.orchestrator.History().MaxLength)
					return nil
				}
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("max length must be a whole number, got %q", args[0])
				}
				if err := a.orchestrator.SetHistoryMaxLength(n); err != nil {
					return userError(err)
				}
				fmt.Fprintf(out, "Keeping up to %d searches.\n", n)
				return nil
			})
		},
	}
}
