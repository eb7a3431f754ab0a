package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eargollo/reclaim/internal/deletion"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var yes bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every variant except the best one of each group",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := ctx.mode(modeFlag)
			if err != nil {
				return err
			}
			rec, closeJournal := ctx.optionalJournal(cmd.Context())
			defer closeJournal()

			sess, _, err := ctx.newSession(rec)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Refresh(cmd.Context(), mode); err != nil {
				return loadFailure(sess, err)
			}
			out := cmd.OutOrStdout()
			printContent(out, sess)

			pending := sess.PendingDelete()
			if pending.Count == 0 {
				fmt.Fprintln(out, "Nothing to delete.")
				return nil
			}
			if dryRun {
				fmt.Fprintln(out, "Dry run: nothing deleted.")
				return nil
			}
			if !yes {
				if !isTerminal(os.Stdin) {
					return errors.New("refusing to delete without --yes when stdin is not a terminal")
				}
				prompt := fmt.Sprintf("Delete %d item(s), %s?", pending.Count, humanize.Bytes(uint64(pending.Bytes)))
				if !confirm(cmd.InOrStdin(), out, prompt) {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			res, err := sess.DeleteSelected(cmd.Context())
			if err != nil {
				return err
			}
			printBatch(out, res)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d deletion(s) failed", len(res.Failed), res.Requested())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Listing mode: duplicate or sample")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted and exit")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printBatch(w io.Writer, res deletion.BatchResult) {
	fmt.Fprintf(w, "Deleted %d item(s), reclaimed %s in %s.\n",
		len(res.Deleted), humanize.Bytes(uint64(res.Bytes)),
		res.FinishedAt.Sub(res.StartedAt).Round(10*time.Millisecond))
	if len(res.Failed) == 0 {
		return
	}
	rows := make([][]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		rows = append(rows, []string{
			f.Group.DisplayTitle(),
			strconv.FormatInt(f.Variant.ID, 10),
			deletion.FailureMessage(f),
		})
	}
	fmt.Fprintln(w, renderTable([]string{"Title", "Media", "Error"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft}))
}
