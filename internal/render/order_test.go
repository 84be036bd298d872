package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/postview/internal/models"
)

func cellFor(postNo int64, quotes ...int64) models.RenderReadyCell {
	c := models.RenderReadyCell{Record: models.RawPostRecord{Descriptor: models.NewPostDescriptor("4chan", "g", 100, postNo)}}
	for _, q := range quotes {
		c.Quotes = append(c.Quotes, models.NewPostDescriptor("4chan", "g", 100, q))
	}
	return c
}

func threadCell(threadNo int64, sticky bool, replies int, posted, bumped time.Time) models.RenderReadyCell {
	return models.RenderReadyCell{Record: models.RawPostRecord{
		Descriptor: models.NewPostDescriptor("4chan", "g", threadNo, threadNo),
		Flags:      models.PostFlags{Sticky: sticky},
		Replies:    replies,
		PostedAt:   posted,
		BumpedAt:   bumped,
	}}
}

func TestSorter_SortThread(t *testing.T) {
	cells := []models.RenderReadyCell{cellFor(103), cellFor(100), cellFor(102)}
	sorted := Sorter{}.SortThread(cells)
	require.Equal(t, []int64{100, 102, 103}, postNos(sorted))
	require.Equal(t, int64(103), cells[0].Record.Descriptor.PostNo, "input must not be reordered")
}

func TestSorter_SortCatalog(t *testing.T) {
	base := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	cells := []models.RenderReadyCell{
		threadCell(1, false, 5, base, base.Add(3*time.Hour)),
		threadCell(2, false, 50, base.Add(time.Hour), base.Add(time.Hour)),
		threadCell(3, true, 0, base, time.Time{}),
		threadCell(4, false, 10, base.Add(2*time.Hour), time.Time{}),
	}

	require.Equal(t, []int64{3, 1, 4, 2}, postNos(Sorter{Catalog: OrderBump}.SortCatalog(cells)))
	require.Equal(t, []int64{3, 2, 4, 1}, postNos(Sorter{Catalog: OrderReplies}.SortCatalog(cells)))
	require.Equal(t, []int64{3, 4, 2, 1}, postNos(Sorter{Catalog: OrderCreation}.SortCatalog(cells)))
}

func TestHiddenFilter(t *testing.T) {
	thread := models.ThreadDescriptor("4chan", "g", 100)
	cells := []models.RenderReadyCell{cellFor(100), cellFor(101, 100), cellFor(102), cellFor(103, 102), cellFor(104, 103)}

	f := NewHiddenFilter(false)
	require.Len(t, f.Filter(thread, cells), 5)

	f.Hide(models.NewPostDescriptor("4chan", "g", 100, 102))
	require.True(t, f.IsHidden(models.NewPostDescriptor("4chan", "g", 100, 102)))
	require.Equal(t, []int64{100, 101, 103, 104}, postNos(f.Filter(thread, cells)))

	cascading := NewHiddenFilter(true)
	cascading.Hide(models.NewPostDescriptor("4chan", "g", 100, 102))
	require.Equal(t, []int64{100, 101}, postNos(cascading.Filter(thread, cells)))

	cascading.Unhide(models.NewPostDescriptor("4chan", "g", 100, 102))
	require.Len(t, cascading.Filter(thread, cells), 5)
}

func postNos(cells []models.RenderReadyCell) []int64 {
	out := make([]int64, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.Record.Descriptor.PostNo)
	}
	return out
}
