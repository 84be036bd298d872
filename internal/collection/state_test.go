package collection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/postview/internal/models"
)

var thread = models.ThreadDescriptor("test", "g", 1)

func cell(no int64) models.RenderReadyCell {
	return models.RenderReadyCell{Record: models.RawPostRecord{Descriptor: models.NewPostDescriptor("test", "g", 1, no)}}
}

func TestStateTransitions(t *testing.T) {
	s := New()
	require.Equal(t, StatusUninitialized, s.Status())

	s.SetLoading(thread)
	require.Equal(t, StatusLoading, s.Status())

	s.SetData(thread, []models.RenderReadyCell{cell(1), cell(2)})
	snap := s.Snapshot()
	require.Equal(t, StatusData, snap.Status)
	require.Equal(t, thread, snap.Chan)
	require.Len(t, snap.Cells, 2)
	require.EqualValues(t, 2, snap.Version)

	s.SetLoading(thread)
	require.Len(t, s.Snapshot().Cells, 2, "loading keeps previous cells of the same chan")

	s.SetLoading(models.ThreadDescriptor("test", "g", 2))
	require.Empty(t, s.Snapshot().Cells)

	boom := errors.New("boom")
	s.SetError(thread, boom)
	snap = s.Snapshot()
	require.Equal(t, StatusError, snap.Status)
	require.ErrorIs(t, snap.Err, boom)

	s.Reset()
	require.Equal(t, StatusUninitialized, s.Status())
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New()
	cells := []models.RenderReadyCell{cell(1)}
	s.SetData(thread, cells)

	cells[0].Subject = "mutated"
	snap := s.Snapshot()
	require.Empty(t, snap.Cells[0].Subject)

	snap.Cells[0].Subject = "also mutated"
	require.Empty(t, s.Snapshot().Cells[0].Subject)
}

func TestSubscribeReceivesCurrentThenLatest(t *testing.T) {
	s := New()
	s.SetLoading(thread)

	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	require.Equal(t, StatusLoading, first.Status)

	// Nobody reads while these land; only the newest survives.
	s.SetData(thread, []models.RenderReadyCell{cell(1)})
	s.SetData(thread, []models.RenderReadyCell{cell(1), cell(2)})
	s.SetError(thread, errors.New("late"))

	select {
	case got := <-ch:
		require.Equal(t, StatusError, got.Status)
		require.EqualValues(t, 4, got.Version)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %v", extra.Status)
	default:
	}
}

func TestSubscribeCancel(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	<-ch

	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after cancel must not panic.
	s.SetLoading(thread)
}

func TestResetWhenUninitializedIsNoop(t *testing.T) {
	s := New()
	s.Reset()
	require.Zero(t, s.Snapshot().Version)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "loading", StatusLoading.String())
	require.Equal(t, "unknown", Status(42).String())
}
