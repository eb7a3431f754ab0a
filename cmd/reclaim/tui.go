package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/eargollo/reclaim/internal/tui"
)

func newTUICommand(ctx *commandContext) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Review and delete duplicates interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := ctx.mode(modeFlag)
			if err != nil {
				return err
			}
			// Log lines would corrupt the alternate screen.
			setupLogging(io.Discard, "error")

			rec, closeJournal := ctx.optionalJournal(cmd.Context())
			defer closeJournal()
			sess, _, err := ctx.newSession(rec)
			if err != nil {
				return err
			}
			defer sess.Close()

			go sess.LoadServerInfo(cmd.Context())
			return tui.Run(cmd.Context(), sess, mode)
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Listing mode: duplicate or sample")
	return cmd
}
