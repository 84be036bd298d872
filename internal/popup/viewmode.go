// Package popup implements per-viewer popup navigation: a stack of view
// modes, caches of their parsed results, and the controller tying both to
// a collection state.
package popup

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tOgg1/postview/internal/models"
)

// ErrInvalidMode is returned when a popup is asked to show something other
// than a ReplyTo, RepliesFrom or PostList value.
var ErrInvalidMode = errors.New("invalid view mode")

// ViewMode selects which posts a popup view shows. The variants are
// ReplyTo, RepliesFrom and PostList, always passed by value; pointers to
// them are rejected by the controller.
type ViewMode interface {
	fmt.Stringer
	viewMode()
}

// ReplyTo shows the single post Target.
type ReplyTo struct {
	Target models.PostDescriptor
}

// RepliesFrom shows every post quoting Target, optionally with Target
// itself first.
type RepliesFrom struct {
	Target      models.PostDescriptor
	IncludeSelf bool
}

// PostList shows an explicit ordered set of posts.
type PostList struct {
	Chan  models.ChanDescriptor
	Posts []models.PostDescriptor
}

func (ReplyTo) viewMode()     {}
func (RepliesFrom) viewMode() {}
func (PostList) viewMode()    {}

func (m ReplyTo) String() string { return "reply-to " + m.Target.String() }

func (m RepliesFrom) String() string {
	if m.IncludeSelf {
		return "replies-from " + m.Target.String() + " (+self)"
	}
	return "replies-from " + m.Target.String()
}

func (m PostList) String() string {
	parts := make([]string, 0, len(m.Posts))
	for _, p := range m.Posts {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("post-list %s [%s]", m.Chan, strings.Join(parts, " "))
}

func checkMode(mode ViewMode) error {
	switch mode.(type) {
	case ReplyTo, RepliesFrom, PostList:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrInvalidMode, mode)
	}
}

// EqualModes reports structural equality.
func EqualModes(a, b ViewMode) bool {
	switch x := a.(type) {
	case ReplyTo:
		y, ok := b.(ReplyTo)
		return ok && x == y
	case RepliesFrom:
		y, ok := b.(RepliesFrom)
		return ok && x == y
	case PostList:
		y, ok := b.(PostList)
		return ok && x.Chan == y.Chan && slices.Equal(x.Posts, y.Posts)
	default:
		return false
	}
}

// Target returns the cache slot descriptor of a ReplyTo or RepliesFrom
// mode. PostList has no single target.
func Target(mode ViewMode) (models.PostDescriptor, bool) {
	switch m := mode.(type) {
	case ReplyTo:
		return m.Target, true
	case RepliesFrom:
		return m.Target, true
	default:
		return models.PostDescriptor{}, false
	}
}

func cloneMode(mode ViewMode) ViewMode {
	if m, ok := mode.(PostList); ok {
		m.Posts = slices.Clone(m.Posts)
		return m
	}
	return mode
}
