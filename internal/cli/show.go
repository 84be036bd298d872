package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/postview/internal/collection"
	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
	"github.com/tOgg1/postview/internal/parsing"
)

var (
	showFocus   int64
	showHide    []int64
	showInitial bool
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Int64Var(&showFocus, "focus", 0, "post number to center the initial batch on and highlight")
	showCmd.Flags().Int64SliceVar(&showHide, "hide", nil, "post numbers to hide")
	showCmd.Flags().BoolVar(&showInitial, "initial-only", false, "print only the initial batch, with placeholders")
}

var showCmd = &cobra.Command{
	Use:   "show [/board/[thread]]",
	Short: "Render a thread or board catalog",
	Long: `Render a stored thread (or the catalog of a board).

Posts around --focus are parsed first; the rest are parsed in the
background and the complete, sorted and filtered thread is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		chanDescriptor, err := resolveChan(args)
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, no := range showHide {
			a.hidden.Hide(postIn(chanDescriptor, no))
		}

		view, err := loadChan(ctx, a, chanDescriptor, focusFor(chanDescriptor, showFocus))
		if err != nil {
			return err
		}

		if showInitial {
			return printInitial(view)
		}

		if err := view.Wait(ctx); err != nil {
			return err
		}
		snap := view.state.Snapshot()
		if snap.Status == collection.StatusError {
			return snap.Err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, snap.Cells)
		}
		fmt.Fprintln(os.Stdout, formatCells(snap.Cells, terminalWidth()))
		return nil
	},
}

// chanView is a thread or catalog being parsed into a collection state.
type chanView struct {
	chanDescriptor models.ChanDescriptor
	records        []models.RawPostRecord
	initial        []*models.RenderReadyCell
	state          *collection.State
	job            *parsing.Job
}

// Wait blocks until the background parse has finished.
func (v *chanView) Wait(ctx context.Context) error {
	if v.job == nil {
		return nil
	}
	return v.job.Wait(ctx)
}

// loadChan reads the records of chanDescriptor, parses the batch around
// focus synchronously and starts parsing the remainder.
func loadChan(ctx context.Context, a *app, chanDescriptor models.ChanDescriptor, focus *models.PostDescriptor) (*chanView, error) {
	records, err := a.posts.Thread(ctx, chanDescriptor)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("nothing stored for %s; import a thread dump first", chanDescriptor)
	}

	rctx := models.RenderContext{IsCatalog: chanDescriptor.IsCatalog(), FontSize: a.cfg.Render.FontSize}
	if focus != nil {
		rctx = rctx.WithHighlight(*focus)
	}

	view := &chanView{chanDescriptor: chanDescriptor, records: records, state: collection.New()}
	view.state.SetLoading(chanDescriptor)

	view.initial, err = a.pipeline.ParseInitialBatch(ctx, focus, records, 0, rctx)
	if err != nil {
		return nil, err
	}

	logger := logging.WithChan(logging.Component("cli"), chanDescriptor)
	view.job = a.pipeline.ParseRemainingAsync(ctx, chanDescriptor, records, parsing.Options{
		Render:         rctx,
		ParseRepliesTo: a.cfg.Parsing.ParseRepliesTo,
	}, parsing.Callbacks{
		OnStarted: func() {
			logger.Info().Int("posts", len(records)).Msg("parsing remaining posts")
		},
		OnBatchReady: func(c models.ChanDescriptor, cells []models.RenderReadyCell) {
			view.state.SetData(c, cells)
		},
		OnError: func(err error) {
			view.state.SetError(chanDescriptor, err)
		},
	})
	return view, nil
}

func printInitial(view *chanView) error {
	view.job.Cancel()
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, view.initial)
	}
	width := terminalWidth()
	for i, cell := range view.initial {
		if cell == nil {
			fmt.Fprintln(os.Stdout, formatPlaceholder(view.records[i].Descriptor))
		} else {
			fmt.Fprintln(os.Stdout, formatCell(*cell, width))
		}
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

func postIn(chanDescriptor models.ChanDescriptor, postNo int64) models.PostDescriptor {
	threadNo := chanDescriptor.ThreadNo
	if chanDescriptor.IsCatalog() {
		threadNo = postNo
	}
	return models.NewPostDescriptor(chanDescriptor.Site, chanDescriptor.Board, threadNo, postNo)
}

func focusFor(chanDescriptor models.ChanDescriptor, postNo int64) *models.PostDescriptor {
	if postNo <= 0 {
		return nil
	}
	desc := postIn(chanDescriptor, postNo)
	return &desc
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}
