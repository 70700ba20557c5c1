package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

func newResultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results [user-id]",
		Short: "Show the fairy census or a user's latest result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DBPath == "" {
				return errors.New("results need a database: set --db or DB_PATH")
			}
			recorder, closeRecorder, err := a.openRecorder()
			if err != nil {
				return err
			}
			defer closeRecorder()

			if len(args) == 0 {
				return printCensus(cmd, recorder)
			}
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			return printLatest(cmd, recorder, userID)
		},
	}
}

func printCensus(cmd *cobra.Command, recorder service.ResultRecorder) error {
	counts, err := recorder.Census(cmd.Context())
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FAIRY TYPE\tCOUNT")
	total := 0
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%s\n", c.FairyType, humanize.Comma(int64(c.Count)))
		total += c.Count
	}
	fmt.Fprintf(w, "TOTAL\t%s\n", humanize.Comma(int64(total)))
	return w.Flush()
}

func printLatest(cmd *cobra.Command, recorder service.ResultRecorder, userID int64) error {
	result, err := recorder.Latest(cmd.Context(), userID)
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Errorf("no result for user %d", userID)
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Summary())
	fmt.Fprintf(out, "Completed %s\n", humanize.Time(result.CompletedAt))
	return nil
}
