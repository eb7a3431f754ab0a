package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eargollo/reclaim/internal/session"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var includeIgnored bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show duplicate groups and the default keep/delete choice",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := ctx.mode(modeFlag)
			if err != nil {
				return err
			}
			sess, _, err := ctx.newSession(nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			sess.SetIncludeIgnored(includeIgnored)
			if err := sess.Refresh(cmd.Context(), mode); err != nil {
				return loadFailure(sess, err)
			}
			printContent(cmd.OutOrStdout(), sess)
			return nil
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Listing mode: duplicate or sample")
	cmd.Flags().BoolVar(&includeIgnored, "include-ignored", false, "Include ignored content")
	return cmd
}

// printContent writes one row per media variant with its planned action.
func printContent(w io.Writer, sess *session.Session) {
	snap := sess.Selection().Snapshot()
	groups := sess.Content().ActiveItems()
	if len(groups) == 0 {
		fmt.Fprintln(w, "No content found.")
		return
	}

	var rows [][]string
	for _, g := range groups {
		title := g.DisplayTitle()
		if g.Ignored {
			title += " [ignored]"
		}
		for i, v := range g.Media {
			action := "KEEP"
			switch {
			case snap.Deleted(v.ID):
				action = "DELETED"
			case snap.Selected(v.ID):
				action = "DELETE"
			}
			label := title
			if i > 0 {
				label = ""
			}
			rows = append(rows, []string{
				label,
				g.Library,
				strconv.FormatInt(v.ID, 10),
				v.Resolution(),
				v.VideoCodec,
				humanize.Bytes(uint64(v.TotalSize())),
				action,
			})
		}
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Title", "Library", "Media", "Resolution", "Codec", "Size", "Action"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))

	sum := sess.Summary()
	fmt.Fprintf(w, "%d group(s) · %d selected for deletion · %s reclaimable\n",
		sum.Groups, sum.Selected, humanize.Bytes(uint64(sum.SelectedBytes)))
}
