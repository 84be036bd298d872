package parsing

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
)

const (
	defaultBatchSize    = 16
	defaultStartedDelay = 125 * time.Millisecond
)

var (
	// ErrWorkerPanic reports a resolver panic that aborted a parse.
	ErrWorkerPanic = errors.New("parse worker panicked")
	// ErrNoResolver is returned when the pipeline has no resolver configured.
	ErrNoResolver = errors.New("no resolver configured")
)

// Resolver renders a single record. It must be safe for concurrent use.
type Resolver interface {
	Resolve(record models.RawPostRecord, rctx models.RenderContext) (models.RenderReadyCell, error)
}

// RecordSource supplies raw posts.
type RecordSource interface {
	FetchMany(ctx context.Context, chanDescriptor models.ChanDescriptor, descs []models.PostDescriptor) ([]models.RawPostRecord, error)
	FetchOne(ctx context.Context, desc models.PostDescriptor) (models.RawPostRecord, bool, error)
}

// ReplyIndex answers who-quotes-whom questions.
type ReplyIndex interface {
	// RepliesFrom lists the posts quoting desc.
	RepliesFrom(ctx context.Context, desc models.PostDescriptor) ([]models.PostDescriptor, error)
	// RepliesTo lists the union of posts quoted by descs.
	RepliesTo(ctx context.Context, descs []models.PostDescriptor) ([]models.PostDescriptor, error)
}

// Sorter orders delivered cells.
type Sorter interface {
	SortCatalog(cells []models.RenderReadyCell) []models.RenderReadyCell
	SortThread(cells []models.RenderReadyCell) []models.RenderReadyCell
}

// HiddenFilter removes hidden posts from delivered cells.
type HiddenFilter interface {
	Filter(chanDescriptor models.ChanDescriptor, cells []models.RenderReadyCell) []models.RenderReadyCell
}

// Config wires a Pipeline to its collaborators.
type Config struct {
	Resolver Resolver
	Source   RecordSource
	Replies  ReplyIndex
	Sorter   Sorter
	Filter   HiddenFilter

	// Workers is the chunk count and pool size. Values below 2 become max(2, GOMAXPROCS).
	Workers int
	// BatchSize is the default initial batch size.
	BatchSize int
	// StartedDelay is how long a remainder parse runs before OnStarted fires.
	StartedDelay time.Duration
}

// Pipeline parses records concurrently. At most one remainder parse is
// active per pipeline; starting another supersedes it.
type Pipeline struct {
	resolver     Resolver
	source       RecordSource
	replies      ReplyIndex
	sorter       Sorter
	filter       HiddenFilter
	workers      int
	batchSize    int
	startedDelay time.Duration
	logger       zerolog.Logger

	// mu guards generation and active, and is held while a job delivers.
	mu         sync.Mutex
	generation uint64
	active     *Job
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers < 2 {
		workers = max(2, runtime.GOMAXPROCS(0))
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	delay := cfg.StartedDelay
	if delay <= 0 {
		delay = defaultStartedDelay
	}
	sorter := cfg.Sorter
	if sorter == nil {
		sorter = passthroughSorter{}
	}
	return &Pipeline{
		resolver:     cfg.Resolver,
		source:       cfg.Source,
		replies:      cfg.Replies,
		sorter:       sorter,
		filter:       cfg.Filter,
		workers:      workers,
		batchSize:    batch,
		startedDelay: delay,
		logger:       logging.Component("parsing"),
	}
}

// Workers returns the worker pool size.
func (p *Pipeline) Workers() int { return p.workers }

// ParseInitialBatch resolves the batchSize records nearest focus and
// returns a slice parallel to records where unparsed positions are nil.
// A nil or unknown focus starts at the first record. batchSize <= 0 uses
// the configured default.
func (p *Pipeline) ParseInitialBatch(
	ctx context.Context,
	focus *models.PostDescriptor,
	records []models.RawPostRecord,
	batchSize int,
	rctx models.RenderContext,
) ([]*models.RenderReadyCell, error) {
	out := make([]*models.RenderReadyCell, len(records))
	if len(records) == 0 {
		return out, nil
	}
	if p.resolver == nil {
		return out, ErrNoResolver
	}
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	focusIndex := 0
	if focus != nil {
		if idx := models.IndexOf(records, *focus); idx >= 0 {
			focusIndex = idx
		}
	}
	order := BidirectionalOrder(len(records), focusIndex)
	order = order[:min(batchSize, len(order))]

	start := time.Now()
	// Every index is visited once, so slots are written without a lock.
	err := p.resolveInto(ctx, records, order, rctx, ctxCanceled(ctx), func(idx int, cell models.RenderReadyCell) {
		out[idx] = &cell
	})
	p.logger.Debug().
		Int("records", len(records)).
		Int("batch", len(order)).
		Int("focus", focusIndex).
		Dur("took", time.Since(start)).
		Msg("initial batch parsed")
	return out, err
}

// ParseAll synchronously resolves every record and returns the resolved
// cells in input order. Records that fail to resolve are left out.
func (p *Pipeline) ParseAll(ctx context.Context, records []models.RawPostRecord, rctx models.RenderContext) ([]models.RenderReadyCell, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if p.resolver == nil {
		return nil, ErrNoResolver
	}

	slots := make([]*models.RenderReadyCell, len(records))
	order := BidirectionalOrder(len(records), 0)
	if err := p.resolveInto(ctx, records, order, rctx, ctxCanceled(ctx), func(idx int, cell models.RenderReadyCell) {
		slots[idx] = &cell
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.RenderReadyCell, 0, len(records))
	for _, cell := range slots {
		if cell != nil {
			out = append(out, *cell)
		}
	}
	return out, nil
}

// resolveInto splits order into contiguous chunks and resolves each chunk
// on its own worker. canceled is polled before every record and again
// before every write. A resolver error skips the record; a resolver panic
// aborts the whole call with ErrWorkerPanic.
func (p *Pipeline) resolveInto(
	ctx context.Context,
	records []models.RawPostRecord,
	order []int,
	rctx models.RenderContext,
	canceled func() bool,
	store func(idx int, cell models.RenderReadyCell),
) error {
	chunks := partition(order, p.workers)
	if len(chunks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, chunk := range chunks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
				}
			}()
			for _, idx := range chunk {
				if canceled() || gctx.Err() != nil {
					return nil
				}
				record := records[idx]
				cell, err := p.resolver.Resolve(record, rctx)
				if err != nil {
					p.logger.Debug().Err(err).Str("post", record.Descriptor.String()).Msg("resolve failed, skipping")
					continue
				}
				if canceled() {
					return nil
				}
				store(idx, cell)
			}
			return nil
		})
	}
	return g.Wait()
}

func ctxCanceled(ctx context.Context) func() bool {
	return func() bool { return ctx.Err() != nil }
}

type passthroughSorter struct{}

func (passthroughSorter) SortCatalog(cells []models.RenderReadyCell) []models.RenderReadyCell {
	return cells
}

func (passthroughSorter) SortThread(cells []models.RenderReadyCell) []models.RenderReadyCell {
	return cells
}
