package parsing

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tOgg1/postview/internal/models"
)

// Options controls a remainder parse.
type Options struct {
	Render models.RenderContext
	// ParseRepliesTo also resolves posts quoted by the input that are not
	// part of it, fetched from the record source.
	ParseRepliesTo bool
}

// Callbacks receive remainder parse progress. They run on pipeline
// goroutines. OnBatchReady and OnError are invoked while the pipeline holds
// its delivery lock and must not start or cancel a parse on the same
// pipeline synchronously.
type Callbacks struct {
	// OnStarted fires if the job is still running after the started delay.
	OnStarted func()
	// OnBatchReady receives the sorted, filtered cells of a completed job.
	OnBatchReady func(chanDescriptor models.ChanDescriptor, cells []models.RenderReadyCell)
	// OnError receives a pipeline-level failure.
	OnError func(err error)
}

// Job is a handle on a remainder parse.
type Job struct {
	generation uint64
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	canceled   atomic.Bool
	done       chan struct{}
	err        error
	delivered  bool
}

// Generation returns the job's supersession counter value.
func (j *Job) Generation() uint64 { return j.generation }

// Cancel stops the job. A canceled job never delivers results.
func (j *Job) Cancel() {
	j.canceled.Store(true)
	j.cancel()
}

// Canceled reports whether the job was canceled or superseded.
func (j *Job) Canceled() bool {
	return j.canceled.Load() || j.parent.Err() != nil
}

// Done is closed once the job has finished, whether or not it delivered.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends. It returns the job's
// pipeline-level error, if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivered reports whether the job invoked OnBatchReady. Only meaningful
// after Done is closed.
func (j *Job) Delivered() bool {
	select {
	case <-j.done:
		return j.delivered
	default:
		return false
	}
}

type resultMap struct {
	mu    sync.Mutex
	cells map[models.PostDescriptor]models.RenderReadyCell
}

func newResultMap() *resultMap {
	return &resultMap{cells: make(map[models.PostDescriptor]models.RenderReadyCell)}
}

func (m *resultMap) put(cell models.RenderReadyCell) {
	m.mu.Lock()
	m.cells[cell.Record.Descriptor] = cell
	m.mu.Unlock()
}

func (m *resultMap) has(desc models.PostDescriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cells[desc]
	return ok
}

// sorted returns the cells in canonical descriptor order.
func (m *resultMap) sorted() []models.RenderReadyCell {
	m.mu.Lock()
	out := make([]models.RenderReadyCell, 0, len(m.cells))
	for _, cell := range m.cells {
		out = append(out, cell)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b models.RenderReadyCell) int {
		return models.ComparePosts(a.Record.Descriptor, b.Record.Descriptor)
	})
	return out
}

// ParseRemainingAsync resolves records in the background and delivers the
// result through cb.OnBatchReady. Starting a new parse cancels the active
// one; only the newest job can deliver. ctx bounds the job's lifetime.
func (p *Pipeline) ParseRemainingAsync(
	ctx context.Context,
	chanDescriptor models.ChanDescriptor,
	records []models.RawPostRecord,
	opts Options,
	cb Callbacks,
) *Job {
	jobCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.active != nil {
		p.active.Cancel()
	}
	p.generation++
	job := &Job{
		generation: p.generation,
		parent:     ctx,
		ctx:        jobCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	p.active = job
	p.mu.Unlock()

	p.logger.Debug().
		Uint64("generation", job.generation).
		Str("chan", chanDescriptor.String()).
		Int("records", len(records)).
		Msg("remainder parse scheduled")

	go p.run(job, chanDescriptor, slices.Clone(records), opts, cb)
	return job
}

// CancelAll cancels the active remainder parse, if any.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		p.active.Cancel()
		p.active = nil
	}
}

// Generation returns the generation of the most recently started job.
func (p *Pipeline) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *Pipeline) run(job *Job, chanDescriptor models.ChanDescriptor, records []models.RawPostRecord, opts Options, cb Callbacks) {
	defer close(job.done)
	defer job.cancel()

	started := time.AfterFunc(p.startedDelay, func() {
		if job.Canceled() || cb.OnStarted == nil {
			return
		}
		cb.OnStarted()
	})
	defer started.Stop()

	start := time.Now()
	results := newResultMap()
	err := p.runParse(job, chanDescriptor, records, opts, results)
	started.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	if job.Canceled() || job.generation != p.generation {
		p.logger.Debug().Uint64("generation", job.generation).Msg("remainder parse superseded")
		return
	}
	if p.active == job {
		p.active = nil
	}
	if err != nil {
		job.err = err
		p.logger.Warn().Err(err).Uint64("generation", job.generation).Msg("remainder parse failed")
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return
	}

	cells := results.sorted()
	if p.filter != nil {
		cells = p.filter.Filter(chanDescriptor, cells)
	}
	if chanDescriptor.IsCatalog() {
		cells = p.sorter.SortCatalog(cells)
	} else {
		cells = p.sorter.SortThread(cells)
	}

	p.logger.Debug().
		Uint64("generation", job.generation).
		Int("cells", len(cells)).
		Dur("took", time.Since(start)).
		Msg("remainder parse delivered")
	job.delivered = true
	if cb.OnBatchReady != nil {
		cb.OnBatchReady(chanDescriptor, cells)
	}
}

func (p *Pipeline) runParse(job *Job, chanDescriptor models.ChanDescriptor, records []models.RawPostRecord, opts Options, results *resultMap) error {
	if p.resolver == nil {
		return ErrNoResolver
	}
	if len(records) == 0 {
		return nil
	}

	store := func(_ int, cell models.RenderReadyCell) { results.put(cell) }
	order := BidirectionalOrder(len(records), 0)
	if err := p.resolveInto(job.ctx, records, order, opts.Render, job.Canceled, store); err != nil {
		return err
	}
	if job.Canceled() || !opts.ParseRepliesTo {
		return nil
	}
	return p.backfill(job, chanDescriptor, records, opts, results, store)
}

// backfill resolves posts quoted by records that are not in records
// themselves. Resolution is forced so cached cells of the quoted posts are
// rebuilt with this job's render context.
func (p *Pipeline) backfill(
	job *Job,
	chanDescriptor models.ChanDescriptor,
	records []models.RawPostRecord,
	opts Options,
	results *resultMap,
	store func(int, models.RenderReadyCell),
) error {
	if p.replies == nil || p.source == nil {
		return nil
	}

	own := make(map[models.PostDescriptor]struct{}, len(records))
	for _, r := range records {
		own[r.Descriptor] = struct{}{}
	}

	quoted, err := p.replies.RepliesTo(job.ctx, models.Descriptors(records))
	if err != nil {
		return p.sourceError(job, err)
	}
	var missing []models.PostDescriptor
	for _, d := range quoted {
		if _, ok := own[d]; ok {
			continue
		}
		if !chanDescriptor.Contains(d) || results.has(d) {
			continue
		}
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := p.source.FetchMany(job.ctx, chanDescriptor, missing)
	if err != nil {
		return p.sourceError(job, err)
	}
	p.logger.Debug().Int("quoted", len(missing)).Int("fetched", len(fetched)).Msg("backfilling quoted posts")

	order := BidirectionalOrder(len(fetched), 0)
	return p.resolveInto(job.ctx, fetched, order, opts.Render.WithForce(), job.Canceled, store)
}

// sourceError hides context errors caused by cancellation; the job will not
// deliver either way.
func (p *Pipeline) sourceError(job *Job, err error) error {
	if job.Canceled() && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
