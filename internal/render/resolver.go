package render

import (
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
)

const defaultMemoCapacity = 4096

type memoKey struct {
	post         models.PostDescriptor
	lastModified int64
	quotedBy     int
	isCatalog    bool
	highlighted  models.PostDescriptor
	fontSize     int
}

// Resolver parses post markup into cells. It memoizes results per
// (post, modification time, reply count, render context) unless the context forces a
// fresh resolution. Safe for concurrent use.
type Resolver struct {
	mu       sync.Mutex
	memo     map[memoKey]models.RenderReadyCell
	capacity int
	logger   zerolog.Logger
}

// NewResolver creates a resolver keeping at most capacity memoized cells.
func NewResolver(capacity int) *Resolver {
	if capacity <= 0 {
		capacity = defaultMemoCapacity
	}
	return &Resolver{
		memo:     make(map[memoKey]models.RenderReadyCell, 64),
		capacity: capacity,
		logger:   logging.Component("render"),
	}
}

// Resolve renders record under rctx.
func (r *Resolver) Resolve(record models.RawPostRecord, rctx models.RenderContext) (models.RenderReadyCell, error) {
	key := memoKey{
		post:         record.Descriptor,
		lastModified: record.LastModified.UnixNano(),
		quotedBy:     record.QuotedBy,
		isCatalog:    rctx.IsCatalog,
		highlighted:  rctx.Highlighted,
		fontSize:     rctx.FontSize,
	}

	if !rctx.Force {
		r.mu.Lock()
		cell, ok := r.memo[key]
		r.mu.Unlock()
		if ok {
			return cell.Clone(), nil
		}
	}

	spans, quotes, err := ParseComment(record.Descriptor, record.Comment)
	if err != nil {
		return models.RenderReadyCell{}, err
	}

	cell := models.RenderReadyCell{
		Record:      record.Clone(),
		Comment:     spans,
		Subject:     quoteReplacer.Replace(html2text(record.Subject)),
		Images:      resolveImages(record.Images, rctx),
		Highlighted: !rctx.Highlighted.IsZero() && rctx.Highlighted == record.Descriptor,
		Quotes:      quotes,
		FontSize:    rctx.FontSize,
	}
	cell.ContentHash = ContentHash(cell)

	r.mu.Lock()
	if len(r.memo) >= r.capacity {
		// Coarse eviction: drop everything once full.
		clear(r.memo)
		r.logger.Debug().Int("capacity", r.capacity).Msg("resolver memo reset")
	}
	r.memo[key] = cell
	r.mu.Unlock()

	return cell.Clone(), nil
}

// Forget drops every memoized cell.
func (r *Resolver) Forget() {
	r.mu.Lock()
	clear(r.memo)
	r.mu.Unlock()
}

func resolveImages(images []models.Image, rctx models.RenderContext) []models.ResolvedImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]models.ResolvedImage, 0, len(images))
	for _, img := range images {
		display := img.URL
		if rctx.IsCatalog && img.ThumbURL != "" {
			display = img.ThumbURL
		}
		out = append(out, models.ResolvedImage{Image: img, DisplayURL: display, Hidden: img.Spoiler})
	}
	return out
}

func html2text(s string) string {
	spans, _, err := ParseComment(models.PostDescriptor{}, s)
	if err != nil {
		return s
	}
	return PlainText(spans)
}

// ContentHash is the BLAKE3 digest of everything that affects how cell renders.
func ContentHash(cell models.RenderReadyCell) [32]byte {
	h := blake3.New()
	var num [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(num[:], uint64(v))
		_, _ = h.Write(num[:])
	}
	writeStr := func(s string) {
		writeInt(int64(len(s)))
		_, _ = h.Write([]byte(s))
	}

	d := cell.Record.Descriptor
	writeStr(d.Site)
	writeStr(d.Board)
	writeInt(d.ThreadNo)
	writeInt(d.PostNo)
	writeInt(d.SubNo)
	writeStr(cell.Subject)
	writeStr(cell.Record.Name)
	for _, s := range cell.Comment {
		writeStr(string(s.Kind))
		writeStr(s.Text)
		writeStr(s.Href)
		if s.Target != nil {
			writeStr(s.Target.String())
		}
	}
	for _, img := range cell.Images {
		writeStr(img.DisplayURL)
		if img.Hidden {
			writeInt(1)
		} else {
			writeInt(0)
		}
	}
	flags := cell.Record.Flags
	for _, b := range []bool{flags.Sticky, flags.Closed, flags.Archived, flags.Deleted, cell.Highlighted} {
		if b {
			writeInt(1)
		} else {
			writeInt(0)
		}
	}
	writeInt(int64(cell.Record.Replies))
	writeInt(int64(cell.Record.QuotedBy))
	writeInt(int64(cell.FontSize))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
