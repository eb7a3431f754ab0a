package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the media server and the space reclaimed per library",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := ctx.newSession(nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.LoadServerInfo(cmd.Context()); err != nil {
				return err
			}
			store := sess.ServerInfo()
			if err := store.LoadDeletedSizes(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			info, _ := store.Info()
			fmt.Fprintf(out, "Backend: %s\n", client.BaseURL())
			fmt.Fprintf(out, "Server:  %s (%s)\n", info.Name, info.URL)

			sizes := store.DeletedSizes()
			if len(sizes) == 0 {
				fmt.Fprintln(out, "Nothing reclaimed yet.")
				return nil
			}
			rows := make([][]string, 0, len(sizes)+1)
			for _, s := range sizes {
				rows = append(rows, []string{s.Library, humanize.Bytes(uint64(s.Bytes))})
			}
			rows = append(rows, []string{"Total", humanize.Bytes(uint64(store.TotalDeleted()))})
			fmt.Fprintln(out, renderTable([]string{"Library", "Reclaimed"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
