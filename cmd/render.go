package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/cardsmith/internal/app"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/render"
	"github.com/zjrosen/cardsmith/internal/tui"
)

var (
	renderTUI           bool
	renderYes           bool
	renderStopOnFailure bool
	renderDryRun        bool
	renderTemplate      string
	renderDir           string
)

// ErrBatchFailed is returned when a batch finished with failed jobs, so
// the process exits non-zero.
var ErrBatchFailed = errors.New("some cards failed to render")

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render cards from art files",
}

var renderTargetCmd = &cobra.Command{
	Use:   "target <art-file>",
	Short: "Render a single art file",
	Long: `Render one art file. The card is identified from the file name:

  Name (Artist) [SET] {number} $lang.ext

Only the name is required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, func(a *app.App) (*render.Handle, error) {
			return a.RenderTarget(args[0], renderTemplate)
		})
	},
}

var renderAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Render every art file in a directory",
	Long: `Render every art file in the art directory (paths.art_dir, or --dir).
Files whose name starts with "!" are ignored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, func(a *app.App) (*render.Handle, error) {
			n, err := a.QueueDir(renderDir)
			if err != nil {
				return nil, err
			}
			log.Info(log.CatCLI, "Queued art files", "count", n)
			return a.RenderAll()
		})
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.AddCommand(renderTargetCmd, renderAllCmd)

	pf := renderCmd.PersistentFlags()
	pf.BoolVar(&renderTUI, "tui", false, "show the interactive progress view")
	pf.BoolVarP(&renderYes, "yes", "y", false, "never prompt; continue past manual edit and failures")
	pf.BoolVar(&renderStopOnFailure, "stop-on-failure", false, "skip the remaining cards after the first failure")
	pf.BoolVar(&renderDryRun, "dry-run", false, "draw with the offline raster editor")

	renderTargetCmd.Flags().StringVarP(&renderTemplate, "template", "t", "", "template id (default: the layout's default)")
	renderAllCmd.Flags().StringVar(&renderDir, "dir", "", "art directory (default: paths.art_dir)")
}

func promptMode() app.PromptMode {
	switch {
	case renderYes:
		return app.PromptAuto
	case renderTUI:
		return app.PromptTUI
	default:
		return app.PromptConsole
	}
}

// runBatch builds the app, starts a batch with start and reports on it.
func runBatch(cmd *cobra.Command, start func(*app.App) (*render.Handle, error)) error {
	a, err := app.New(cfg, app.Options{
		Prompts:       promptMode(),
		StopOnFailure: renderStopOnFailure,
		DryRun:        renderDryRun,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.ErrorErr(log.CatCLI, "Closing app", cerr)
		}
	}()

	h, err := start(a)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	var report render.BatchReport
	if promptMode() == app.PromptTUI {
		report, err = tui.Run(ctx, h, log.NewListener(ctx))
	} else {
		report, err = followBatch(ctx, out, h)
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	if _, _, failed := report.Counts(); failed > 0 {
		return ErrBatchFailed
	}
	return nil
}

// followBatch prints one line per finished job. An interrupt cancels the
// batch cooperatively: the current job finishes and the rest are skipped.
func followBatch(ctx context.Context, w io.Writer, h *render.Handle) (render.BatchReport, error) {
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.Done():
		}
	}()

	for ev := range h.Events() {
		if ev.Payload.Kind == render.EventJobFinished && ev.Payload.Result != nil {
			printResult(w, ev.Payload.Job, *ev.Payload.Result)
		}
	}
	return h.Wait(context.WithoutCancel(ctx))
}

func glyph(s render.Status) string {
	switch s {
	case render.StatusSucceeded:
		return "✓"
	case render.StatusFailed:
		return "✗"
	default:
		return "↷"
	}
}

func printResult(w io.Writer, job render.JobInfo, res render.JobResult) {
	name := job.Card
	if name == "" {
		name = filepath.Base(res.Art)
	}
	prefix := fmt.Sprintf("[%d/%d] %s %s", job.Index, job.Total, glyph(res.Status), name)
	switch res.Status {
	case render.StatusSucceeded:
		fmt.Fprintf(w, "%s → %s\n", prefix, res.OutputPath)
	case render.StatusFailed:
		fmt.Fprintf(w, "%s: %s failed: %v\n", prefix, res.Stage, res.Err)
	default:
		reason := res.Reason
		if reason == "" && res.Err != nil {
			reason = res.Err.Error()
		}
		fmt.Fprintf(w, "%s skipped: %s\n", prefix, reason)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "    warning: %s\n", warn)
	}
}

func printReport(w io.Writer, r render.BatchReport) {
	succeeded, skipped, failed := r.Counts()
	fmt.Fprintf(w, "\n%d rendered, %d skipped, %d failed in %s\n",
		succeeded, skipped, failed, r.Duration().Round(10*time.Millisecond))
	if r.Cancelled {
		fmt.Fprintln(w, "Batch was cancelled.")
	}
	for _, res := range r.Failed() {
		fmt.Fprintf(w, "  ✗ %s (%s): %v\n", filepath.Base(res.Art), res.Stage, res.Err)
	}
}
