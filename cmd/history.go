package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/zjrosen/cardsmith/internal/history"
	"github.com/zjrosen/cardsmith/internal/log"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [batch-id]",
	Short: "List recorded batches, or show one batch's jobs",
	Long: `Batches are recorded when the batch-history feature flag is on:

  flags:
    batch-history: true`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Expanded().History.DBPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded.")
			return nil
		}

		db, err := history.NewDB(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				log.ErrorErr(log.CatHistory, "Closing history database", cerr)
			}
		}()
		repo := history.NewRepository(db)

		if len(args) == 1 {
			b, err := repo.FindBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeBatch(cmd.OutOrStdout(), b)
			return nil
		}

		batches, err := repo.ListBatches(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		writeBatches(cmd.OutOrStdout(), batches)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "number of batches to list")
}

func writeBatches(w io.Writer, batches []history.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches recorded.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("BATCH", "STARTED", "DURATION", "OK", "SKIPPED", "FAILED", "")
	for _, b := range batches {
		note := ""
		if b.Cancelled {
			note = "cancelled"
		}
		t.Row(
			b.ID,
			b.StartedAt.Local().Format(time.DateTime),
			b.Duration().Round(time.Second).String(),
			fmt.Sprint(b.Succeeded),
			fmt.Sprint(b.Skipped),
			fmt.Sprint(b.Failed),
			note,
		)
	}
	fmt.Fprintln(w, t.String())
}

func writeBatch(w io.Writer, b history.Batch) {
	fmt.Fprintf(w, "Batch %s started %s (%s)\n", b.ID,
		b.StartedAt.Local().Format(time.DateTime), b.Duration().Round(time.Millisecond))
	if b.Cancelled {
		fmt.Fprintln(w, "Cancelled.")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "CARD", "SET", "TEMPLATE", "STATUS", "STAGE", "DETAIL")
	for _, j := range b.Jobs {
		detail := j.Reason
		if j.OutputPath != "" {
			detail = filepath.Base(j.OutputPath)
		}
		t.Row(fmt.Sprint(j.Seq+1), j.Card, j.Set, j.TemplateID, string(j.Status), string(j.Stage), detail)
	}
	fmt.Fprintln(w, t.String())
}
