package parsing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tOgg1/postview/internal/models"
)

type fakeResolver struct {
	calls   atomic.Int64
	mu      sync.Mutex
	seen    []models.PostDescriptor
	forced  []bool
	fail    map[int64]bool
	panicOn map[int64]bool
	delayOn map[int64]time.Duration
	gate    chan struct{}
	delay   time.Duration
}

func (f *fakeResolver) Resolve(record models.RawPostRecord, rctx models.RenderContext) (models.RenderReadyCell, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, record.Descriptor)
	f.forced = append(f.forced, rctx.Force)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if d := f.delayOn[record.Descriptor.PostNo]; d > 0 {
		time.Sleep(d)
	}
	if f.panicOn[record.Descriptor.PostNo] {
		panic("boom")
	}
	if f.fail[record.Descriptor.PostNo] {
		return models.RenderReadyCell{}, errors.New("bad markup")
	}
	return models.RenderReadyCell{
		Record:      record,
		Subject:     record.Subject,
		Highlighted: rctx.Highlighted == record.Descriptor,
	}, nil
}

// resolutions returns how often desc was resolved and with which Force flags.
func (f *fakeResolver) resolutions(desc models.PostDescriptor) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for i, d := range f.seen {
		if d == desc {
			out = append(out, f.forced[i])
		}
	}
	return out
}

type fakeSource struct {
	records map[models.PostDescriptor]models.RawPostRecord
	err     error
}

func (f *fakeSource) FetchMany(_ context.Context, chanDescriptor models.ChanDescriptor, descs []models.PostDescriptor) ([]models.RawPostRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.RawPostRecord
	for _, d := range descs {
		if r, ok := f.records[d]; ok && chanDescriptor.Contains(d) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchOne(_ context.Context, desc models.PostDescriptor) (models.RawPostRecord, bool, error) {
	r, ok := f.records[desc]
	return r, ok, f.err
}

type fakeReplies struct {
	quotes map[models.PostDescriptor][]models.PostDescriptor
}

func (f *fakeReplies) RepliesFrom(_ context.Context, desc models.PostDescriptor) ([]models.PostDescriptor, error) {
	var out []models.PostDescriptor
	for from, targets := range f.quotes {
		if slices.Contains(targets, desc) {
			out = append(out, from)
		}
	}
	slices.SortFunc(out, models.ComparePosts)
	return out, nil
}

func (f *fakeReplies) RepliesTo(_ context.Context, descs []models.PostDescriptor) ([]models.PostDescriptor, error) {
	var out []models.PostDescriptor
	for _, d := range descs {
		for _, t := range f.quotes[d] {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	slices.SortFunc(out, models.ComparePosts)
	return out, nil
}

func post(no int64) models.PostDescriptor {
	return models.NewPostDescriptor("test", "g", 100, no)
}

func records(nos ...int64) []models.RawPostRecord {
	out := make([]models.RawPostRecord, 0, len(nos))
	for _, no := range nos {
		out = append(out, models.RawPostRecord{
			Descriptor: post(no),
			Subject:    fmt.Sprintf("post %d", no),
			PostedAt:   time.Unix(no, 0),
		})
	}
	return out
}

var thread = models.ThreadDescriptor("test", "g", 100)

type delivery struct {
	chanDescriptor models.ChanDescriptor
	cells          []models.RenderReadyCell
}

type recorder struct {
	mu        sync.Mutex
	started   atomic.Int32
	errs      []error
	delivered []delivery
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStarted: func() { r.started.Add(1) },
		OnBatchReady: func(c models.ChanDescriptor, cells []models.RenderReadyCell) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.delivered = append(r.delivered, delivery{c, cells})
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func waitJob(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestBidirectionalOrder(t *testing.T) {
	tests := []struct {
		n, focus int
		want     []int
	}{
		{0, 0, nil},
		{1, 0, []int{0}},
		{4, 0, []int{0, 1, 2, 3}},
		{4, 3, []int{3, 2, 1, 0}},
		{5, 2, []int{2, 3, 1, 4, 0}},
		{6, 1, []int{1, 2, 0, 3, 4, 5}},
		{3, 7, []int{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/focus=%d", tt.n, tt.focus), func(t *testing.T) {
			require.Equal(t, tt.want, BidirectionalOrder(tt.n, tt.focus))
		})
	}
}

func TestBidirectionalOrderProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		focus := rapid.IntRange(0, n-1).Draw(t, "focus")
		order := BidirectionalOrder(n, focus)

		if len(order) != n {
			t.Fatalf("len = %d, want %d", len(order), n)
		}
		if order[0] != focus {
			t.Fatalf("first = %d, want focus %d", order[0], focus)
		}
		seen := make(map[int]bool, n)
		prev := 0
		for _, idx := range order {
			if idx < 0 || idx >= n || seen[idx] {
				t.Fatalf("index %d out of range or repeated", idx)
			}
			seen[idx] = true
			dist := max(idx-focus, focus-idx)
			if dist < prev {
				t.Fatalf("distance decreased at %d", idx)
			}
			prev = dist
		}
	})
}

func TestPartition(t *testing.T) {
	order := BidirectionalOrder(10, 0)
	chunks := partition(order, 3)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{0, 1, 2, 3}, chunks[0])
	require.Equal(t, []int{8, 9}, chunks[2])

	require.Len(t, partition(order[:2], 8), 2)
	require.Nil(t, partition(nil, 4))
}

func TestNewDefaults(t *testing.T) {
	p := New(Config{Resolver: &fakeResolver{}})
	require.GreaterOrEqual(t, p.Workers(), 2)
	require.Equal(t, defaultBatchSize, p.batchSize)
	require.Equal(t, defaultStartedDelay, p.startedDelay)
}

func TestParseInitialBatch(t *testing.T) {
	ctx := context.Background()
	recs := records(1, 2, 3, 4, 5)

	t.Run("no focus resolves prefix", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{}, Workers: 2})
		cells, err := p.ParseInitialBatch(ctx, nil, recs, 2, models.RenderContext{})
		require.NoError(t, err)
		require.Len(t, cells, 5)
		require.NotNil(t, cells[0])
		require.NotNil(t, cells[1])
		for _, c := range cells[2:] {
			require.Nil(t, c)
		}
		require.Equal(t, post(2), cells[1].Descriptor())
	})

	t.Run("focus walks outward", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{}, Workers: 2})
		focus := post(4)
		cells, err := p.ParseInitialBatch(ctx, &focus, recs, 3, models.RenderContext{})
		require.NoError(t, err)
		require.Nil(t, cells[0])
		require.Nil(t, cells[1])
		require.NotNil(t, cells[2])
		require.NotNil(t, cells[3])
		require.NotNil(t, cells[4])
	})

	t.Run("unknown focus falls back to start", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{}, Workers: 2})
		focus := post(99)
		cells, err := p.ParseInitialBatch(ctx, &focus, recs, 1, models.RenderContext{})
		require.NoError(t, err)
		require.NotNil(t, cells[0])
		require.Nil(t, cells[1])
	})

	t.Run("batch larger than input", func(t *testing.T) {
		res := &fakeResolver{}
		p := New(Config{Resolver: res, Workers: 4})
		cells, err := p.ParseInitialBatch(ctx, nil, recs, 100, models.RenderContext{})
		require.NoError(t, err)
		for _, c := range cells {
			require.NotNil(t, c)
		}
		require.EqualValues(t, 5, res.calls.Load())
	})

	t.Run("resolver failure leaves slot empty", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{fail: map[int64]bool{2: true}}, Workers: 2})
		cells, err := p.ParseInitialBatch(ctx, nil, recs, 3, models.RenderContext{})
		require.NoError(t, err)
		require.NotNil(t, cells[0])
		require.Nil(t, cells[1])
		require.NotNil(t, cells[2])
	})

	t.Run("empty input", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{}})
		cells, err := p.ParseInitialBatch(ctx, nil, nil, 4, models.RenderContext{})
		require.NoError(t, err)
		require.Empty(t, cells)
	})
}

func TestParseInitialBatchProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 60).Draw(t, "n")
		batch := rapid.IntRange(1, 80).Draw(t, "batch")
		focusIdx := rapid.IntRange(0, n-1).Draw(t, "focus")

		nos := make([]int64, n)
		for i := range nos {
			nos[i] = int64(i + 1)
		}
		recs := records(nos...)
		focus := recs[focusIdx].Descriptor

		p := New(Config{Resolver: &fakeResolver{}, Workers: 3})
		cells, err := p.ParseInitialBatch(context.Background(), &focus, recs, batch, models.RenderContext{})
		if err != nil {
			t.Fatal(err)
		}

		want := make(map[int]bool)
		for _, idx := range BidirectionalOrder(n, focusIdx)[:min(batch, n)] {
			want[idx] = true
		}
		for i, c := range cells {
			if want[i] != (c != nil) {
				t.Fatalf("slot %d resolved=%v, want %v", i, c != nil, want[i])
			}
			if c != nil && c.Descriptor() != recs[i].Descriptor {
				t.Fatalf("slot %d holds %s", i, c.Descriptor())
			}
		}
	})
}

func TestParseRemainingAsyncDeliversAll(t *testing.T) {
	p := New(Config{Resolver: &fakeResolver{}, Workers: 3})
	rec := &recorder{}

	recs := records(5, 3, 1, 4, 2)
	job := p.ParseRemainingAsync(context.Background(), thread, recs, Options{}, rec.callbacks())
	waitJob(t, job)

	require.True(t, job.Delivered())
	require.NoError(t, job.Wait(context.Background()))
	require.Len(t, rec.delivered, 1)
	require.Equal(t, thread, rec.delivered[0].chanDescriptor)
	require.Equal(t,
		[]models.PostDescriptor{post(1), post(2), post(3), post(4), post(5)},
		models.CellDescriptors(rec.delivered[0].cells))
}

func TestParseRemainingAsyncSkipsFailedRecords(t *testing.T) {
	p := New(Config{Resolver: &fakeResolver{fail: map[int64]bool{2: true}}, Workers: 2})
	rec := &recorder{}

	job := p.ParseRemainingAsync(context.Background(), thread, records(1, 2, 3), Options{}, rec.callbacks())
	waitJob(t, job)

	require.Empty(t, rec.errs)
	require.Len(t, rec.delivered, 1)
	require.Equal(t, []models.PostDescriptor{post(1), post(3)}, models.CellDescriptors(rec.delivered[0].cells))
}

func TestParseRemainingAsyncSupersession(t *testing.T) {
	gate := make(chan struct{})
	slow := &fakeResolver{gate: gate}
	p := New(Config{Resolver: slow, Workers: 2})
	rec := &recorder{}

	first := p.ParseRemainingAsync(context.Background(), thread, records(1, 2, 3, 4), Options{}, rec.callbacks())
	require.Eventually(t, func() bool { return slow.calls.Load() > 0 }, time.Second, time.Millisecond)

	second := p.ParseRemainingAsync(context.Background(), thread, records(7, 8), Options{}, rec.callbacks())
	require.True(t, first.Canceled())
	require.Greater(t, second.Generation(), first.Generation())
	require.Equal(t, second.Generation(), p.Generation())

	close(gate)
	waitJob(t, first)
	waitJob(t, second)

	require.False(t, first.Delivered())
	require.True(t, second.Delivered())
	require.Len(t, rec.delivered, 1)
	require.Equal(t, []models.PostDescriptor{post(7), post(8)}, models.CellDescriptors(rec.delivered[0].cells))
}

func TestParseRemainingAsyncSupersessionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		jobs := rapid.IntRange(2, 6).Draw(t, "jobs")
		gate := make(chan struct{})
		p := New(Config{Resolver: &fakeResolver{gate: gate}, Workers: 2})
		rec := &recorder{}

		var started []*Job
		for i := range jobs {
			recs := records(int64(i*10+1), int64(i*10+2))
			started = append(started, p.ParseRemainingAsync(context.Background(), thread, recs, Options{}, rec.callbacks()))
		}
		close(gate)
		for _, job := range started {
			<-job.Done()
		}

		last := started[len(started)-1]
		if !last.Delivered() {
			t.Fatalf("newest job did not deliver")
		}
		for _, job := range started[:len(started)-1] {
			if job.Delivered() {
				t.Fatalf("superseded job %d delivered", job.Generation())
			}
		}
		if len(rec.delivered) != 1 {
			t.Fatalf("deliveries = %d", len(rec.delivered))
		}
	})
}

func TestParseRemainingAsyncCancel(t *testing.T) {
	gate := make(chan struct{})
	p := New(Config{Resolver: &fakeResolver{gate: gate}, Workers: 2})
	rec := &recorder{}

	job := p.ParseRemainingAsync(context.Background(), thread, records(1, 2, 3), Options{}, rec.callbacks())
	p.CancelAll()
	close(gate)
	waitJob(t, job)

	require.False(t, job.Delivered())
	require.Empty(t, rec.delivered)
	require.Empty(t, rec.errs)
}

func TestParseRemainingAsyncParentContext(t *testing.T) {
	gate := make(chan struct{})
	p := New(Config{Resolver: &fakeResolver{gate: gate}, Workers: 2})
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	job := p.ParseRemainingAsync(ctx, thread, records(1, 2), Options{}, rec.callbacks())
	cancel()
	close(gate)
	waitJob(t, job)

	require.True(t, job.Canceled())
	require.False(t, job.Delivered())
}

func TestParseRemainingAsyncWorkerPanic(t *testing.T) {
	p := New(Config{Resolver: &fakeResolver{panicOn: map[int64]bool{2: true}}, Workers: 2})
	rec := &recorder{}

	job := p.ParseRemainingAsync(context.Background(), thread, records(1, 2, 3), Options{}, rec.callbacks())
	waitJob(t, job)

	require.False(t, job.Delivered())
	require.Empty(t, rec.delivered)
	require.Len(t, rec.errs, 1)
	require.ErrorIs(t, rec.errs[0], ErrWorkerPanic)
	require.ErrorIs(t, job.Wait(context.Background()), ErrWorkerPanic)
}

func TestParseRemainingAsyncStartedNotification(t *testing.T) {
	t.Run("slow job notifies", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{delay: 40 * time.Millisecond}, Workers: 2, StartedDelay: 5 * time.Millisecond})
		rec := &recorder{}
		job := p.ParseRemainingAsync(context.Background(), thread, records(1, 2), Options{}, rec.callbacks())
		waitJob(t, job)
		require.EqualValues(t, 1, rec.started.Load())
	})

	t.Run("fast job stays quiet", func(t *testing.T) {
		p := New(Config{Resolver: &fakeResolver{}, Workers: 2, StartedDelay: time.Second})
		rec := &recorder{}
		job := p.ParseRemainingAsync(context.Background(), thread, records(1, 2), Options{}, rec.callbacks())
		waitJob(t, job)
		require.EqualValues(t, 0, rec.started.Load())
	})
}

func backfillFixture() (*fakeSource, *fakeReplies, models.PostDescriptor) {
	source := &fakeSource{records: map[models.PostDescriptor]models.RawPostRecord{}}
	for _, r := range records(1, 2, 3, 4) {
		source.records[r.Descriptor] = r
	}
	other := models.NewPostDescriptor("test", "g", 200, 201)
	source.records[other] = models.RawPostRecord{Descriptor: other, PostedAt: time.Unix(201, 0)}

	replies := &fakeReplies{quotes: map[models.PostDescriptor][]models.PostDescriptor{
		post(3): {post(1), post(2)},
		post(4): {post(3), other},
	}}
	return source, replies, other
}

func TestParseRemainingAsyncBackfillsQuotedPosts(t *testing.T) {
	source, replies, other := backfillFixture()
	res := &fakeResolver{}
	p := New(Config{Resolver: res, Source: source, Replies: replies, Workers: 2})
	rec := &recorder{}

	input := records(3, 4)
	job := p.ParseRemainingAsync(context.Background(), thread, input, Options{ParseRepliesTo: true}, rec.callbacks())
	waitJob(t, job)

	require.Len(t, rec.delivered, 1)
	got := models.CellDescriptors(rec.delivered[0].cells)
	// Posts from another thread are never pulled in.
	require.Equal(t, []models.PostDescriptor{post(1), post(2), post(3), post(4)}, got)

	// Quoted posts resolve exactly once, forced; thread posts are not forced.
	require.Equal(t, []bool{true}, res.resolutions(post(1)))
	require.Equal(t, []bool{true}, res.resolutions(post(2)))
	require.Equal(t, []bool{false}, res.resolutions(post(3)))
	require.Equal(t, []bool{false}, res.resolutions(post(4)))
	require.Empty(t, res.resolutions(other))

	t.Run("order does not depend on resolution timing", func(t *testing.T) {
		for _, slow := range []int64{1, 4} {
			source, replies, _ := backfillFixture()
			res := &fakeResolver{delayOn: map[int64]time.Duration{slow: 30 * time.Millisecond}}
			p := New(Config{Resolver: res, Source: source, Replies: replies, Workers: 2})
			rec := &recorder{}
			job := p.ParseRemainingAsync(context.Background(), thread, records(3, 4), Options{ParseRepliesTo: true}, rec.callbacks())
			waitJob(t, job)

			require.Len(t, rec.delivered, 1)
			require.Equal(t, got, models.CellDescriptors(rec.delivered[0].cells), "slow post %d", slow)
			require.Len(t, res.resolutions(post(1)), 1)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		rec := &recorder{}
		job := p.ParseRemainingAsync(context.Background(), thread, input, Options{}, rec.callbacks())
		waitJob(t, job)
		require.Equal(t, []models.PostDescriptor{post(3), post(4)}, models.CellDescriptors(rec.delivered[0].cells))
	})
}

func TestParseRemainingAsyncBackfillSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("disk on fire")}
	replies := &fakeReplies{quotes: map[models.PostDescriptor][]models.PostDescriptor{post(2): {post(1)}}}
	p := New(Config{Resolver: &fakeResolver{}, Source: source, Replies: replies, Workers: 2})
	rec := &recorder{}

	job := p.ParseRemainingAsync(context.Background(), thread, records(2), Options{ParseRepliesTo: true}, rec.callbacks())
	waitJob(t, job)

	require.Empty(t, rec.delivered)
	require.Len(t, rec.errs, 1)
	require.ErrorContains(t, rec.errs[0], "disk on fire")
}

type hideFilter struct{ hidden models.PostDescriptor }

func (f hideFilter) Filter(_ models.ChanDescriptor, cells []models.RenderReadyCell) []models.RenderReadyCell {
	return slices.DeleteFunc(slices.Clone(cells), func(c models.RenderReadyCell) bool {
		return c.Descriptor() == f.hidden
	})
}

type reverseSorter struct{ catalogCalls, threadCalls *atomic.Int32 }

func (s reverseSorter) SortCatalog(cells []models.RenderReadyCell) []models.RenderReadyCell {
	s.catalogCalls.Add(1)
	out := slices.Clone(cells)
	slices.Reverse(out)
	return out
}

func (s reverseSorter) SortThread(cells []models.RenderReadyCell) []models.RenderReadyCell {
	s.threadCalls.Add(1)
	return cells
}

func TestParseRemainingAsyncFiltersAndSorts(t *testing.T) {
	var catalogCalls, threadCalls atomic.Int32
	p := New(Config{
		Resolver: &fakeResolver{},
		Filter:   hideFilter{hidden: post(2)},
		Sorter:   reverseSorter{&catalogCalls, &threadCalls},
		Workers:  2,
	})

	rec := &recorder{}
	job := p.ParseRemainingAsync(context.Background(), thread.Catalog(), records(1, 2, 3), Options{}, rec.callbacks())
	waitJob(t, job)

	require.EqualValues(t, 1, catalogCalls.Load())
	require.EqualValues(t, 0, threadCalls.Load())
	require.Equal(t, []models.PostDescriptor{post(3), post(1)}, models.CellDescriptors(rec.delivered[0].cells))
}

func TestParseAll(t *testing.T) {
	p := New(Config{Resolver: &fakeResolver{fail: map[int64]bool{3: true}}, Workers: 3})

	cells, err := p.ParseAll(context.Background(), records(4, 3, 2, 1), models.RenderContext{Highlighted: post(2)})
	require.NoError(t, err)
	require.Equal(t, []models.PostDescriptor{post(4), post(2), post(1)}, models.CellDescriptors(cells))
	require.True(t, cells[1].Highlighted)
	require.False(t, cells[0].Highlighted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ParseAll(ctx, records(1, 2), models.RenderContext{})
	require.ErrorIs(t, err, context.Canceled)

	_, err = New(Config{}).ParseAll(context.Background(), records(1), models.RenderContext{})
	require.ErrorIs(t, err, ErrNoResolver)
}
