package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var totals bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the media deleted through reclaim",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, closeJournal, err := ctx.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer closeJournal()
			out := cmd.OutOrStdout()

			if totals {
				libs, err := journal.Totals(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(libs))
				for _, t := range libs {
					rows = append(rows, []string{t.Library, strconv.FormatInt(t.Count, 10), humanize.Bytes(uint64(t.Bytes))})
				}
				fmt.Fprintln(out, renderTable([]string{"Library", "Deleted", "Size"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight}))
				return nil
			}

			entries, err := journal.List(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No deletions recorded.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					humanize.Time(e.DeletedAt),
					e.Library,
					e.Title,
					strconv.FormatInt(e.MediaID, 10),
					humanize.Bytes(uint64(e.Bytes)),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"When", "Library", "Title", "Media", "Size"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&totals, "totals", false, "Show totals per library instead")
	return cmd
}
