package models

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComparePosts_TotalOrder(t *testing.T) {
	a := NewPostDescriptor("4chan", "g", 100, 100)
	b := NewPostDescriptor("4chan", "g", 100, 101)
	c := PostDescriptor{Site: "4chan", Board: "g", ThreadNo: 100, PostNo: 101, SubNo: 1}
	d := NewPostDescriptor("4chan", "g", 200, 5)

	posts := []PostDescriptor{d, c, a, b}
	slices.SortFunc(posts, ComparePosts)
	require.Equal(t, []PostDescriptor{a, b, c, d}, posts)

	require.True(t, a.Less(b))
	require.True(t, c.IsNewerThan(b))
	require.False(t, a.IsNewerThan(a))
	require.Equal(t, 0, ComparePosts(a, a))
}

func TestPostDescriptor_StringAndChan(t *testing.T) {
	p := NewPostDescriptor("4chan", "g", 100, 105)
	require.Equal(t, "4chan/g/100/105", p.String())
	require.Equal(t, ThreadDescriptor("4chan", "g", 100), p.Chan())
	require.False(t, p.IsOP())
	require.True(t, NewPostDescriptor("4chan", "g", 100, 100).IsOP())

	sub := PostDescriptor{Site: "4chan", Board: "g", ThreadNo: 1, PostNo: 2, SubNo: 3}
	require.Equal(t, "4chan/g/1/2.3", sub.String())
}

func TestPostDescriptor_Validate(t *testing.T) {
	require.NoError(t, NewPostDescriptor("4chan", "g", 1, 1).Validate())

	err := PostDescriptor{ThreadNo: 1}.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidDescriptor))

	var list *ValidationErrors
	require.True(t, errors.As(err, &list))
	require.Equal(t, []string{"site", "board", "post_no"}, list.FieldNames())
}

func TestChanDescriptor_Contains(t *testing.T) {
	thread := ThreadDescriptor("4chan", "g", 100)
	catalog := CatalogDescriptor("4chan", "g")

	require.True(t, thread.Contains(NewPostDescriptor("4chan", "g", 100, 120)))
	require.False(t, thread.Contains(NewPostDescriptor("4chan", "g", 101, 120)))
	require.False(t, thread.Contains(NewPostDescriptor("4chan", "a", 100, 120)))

	require.True(t, catalog.Contains(NewPostDescriptor("4chan", "g", 100, 100)))
	require.False(t, catalog.Contains(NewPostDescriptor("4chan", "g", 100, 120)))
	require.Equal(t, catalog, thread.Catalog())
	require.True(t, catalog.IsCatalog())
	require.True(t, thread.IsThread())
}

func TestChanDescriptor_Validate(t *testing.T) {
	require.NoError(t, ThreadDescriptor("4chan", "g", 1).Validate())
	require.NoError(t, CatalogDescriptor("4chan", "g").Validate())
	require.ErrorIs(t, ChanDescriptor{Kind: ChanThread, Site: "4chan", Board: "g"}.Validate(), ErrInvalidDescriptor)
	require.ErrorIs(t, ChanDescriptor{Site: "4chan", Board: "g"}.Validate(), ErrInvalidDescriptor)
}

func TestRenderReadyCell_SameContentAndClone(t *testing.T) {
	desc := NewPostDescriptor("4chan", "g", 1, 2)
	cell := RenderReadyCell{
		Record:      RawPostRecord{Descriptor: desc, Images: []Image{{Filename: "a"}}},
		Quotes:      []PostDescriptor{NewPostDescriptor("4chan", "g", 1, 1)},
		ContentHash: [32]byte{1},
	}
	clone := cell.Clone()
	require.True(t, cell.SameContent(clone))

	clone.Record.Images[0].Filename = "b"
	require.Equal(t, "a", cell.Record.Images[0].Filename)

	clone.ContentHash[0] = 2
	require.False(t, cell.SameContent(clone))
	require.Equal(t, []PostDescriptor{desc}, CellDescriptors([]RenderReadyCell{cell}))
}
