// Package render turns raw post markup into render-ready cells and provides
// the sort and hidden-post collaborators used by the parsing pipeline.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tOgg1/postview/internal/models"
)

var (
	quoteReplacer = strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"“", "\"",
		"”", "\"",
	)
)

// ParseComment converts comment HTML posted in thread post.ThreadNo into
// spans and returns the posts it quotes, in order of first appearance.
func ParseComment(post models.PostDescriptor, comment string) ([]models.Span, []models.PostDescriptor, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, nil, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(comment), body)
	if err != nil {
		return nil, nil, fmt.Errorf("bad html: %w", err)
	}

	p := &commentParser{post: post, seen: make(map[models.PostDescriptor]struct{})}
	for _, n := range nodes {
		p.walk(n, models.SpanText)
	}
	return p.spans, p.quotes, nil
}

// ExtractQuotes returns the posts quoted by comment.
func ExtractQuotes(post models.PostDescriptor, comment string) []models.PostDescriptor {
	_, quotes, err := ParseComment(post, comment)
	if err != nil {
		return nil
	}
	return quotes
}

type commentParser struct {
	post   models.PostDescriptor
	spans  []models.Span
	quotes []models.PostDescriptor
	seen   map[models.PostDescriptor]struct{}
}

func (p *commentParser) walk(n *html.Node, kind models.SpanKind) {
	switch n.Type {
	case html.TextNode:
		p.text(kind, quoteReplacer.Replace(n.Data))
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Br:
		p.spans = append(p.spans, models.Span{Kind: models.SpanLineBreak})
		return
	case atom.Wbr:
		return
	case atom.A:
		p.anchor(n)
		return
	case atom.S:
		kind = models.SpanSpoiler
	case atom.Span:
		if hasClass(n, "quote") {
			kind = models.SpanGreentext
		}
	}

	for child := range n.ChildNodes() {
		p.walk(child, kind)
	}
}

func (p *commentParser) anchor(n *html.Node) {
	href := attr(n, "href")
	text := nodeText(n)

	if hasClass(n, "quotelink") {
		if target, ok := parseQuoteHref(p.post, href); ok {
			p.spans = append(p.spans, models.Span{Kind: models.SpanQuote, Text: text, Target: &target})
			if _, dup := p.seen[target]; !dup {
				p.seen[target] = struct{}{}
				p.quotes = append(p.quotes, target)
			}
			return
		}
	}

	switch {
	case href == "":
		p.text(models.SpanText, text)
	case text == "":
		p.spans = append(p.spans, models.Span{Kind: models.SpanLink, Text: href, Href: href})
	default:
		p.spans = append(p.spans, models.Span{Kind: models.SpanLink, Text: text, Href: href})
	}
}

// text appends to the previous span when it has the same kind.
func (p *commentParser) text(kind models.SpanKind, s string) {
	if s == "" {
		return
	}
	if last := len(p.spans) - 1; last >= 0 && p.spans[last].Kind == kind {
		p.spans[last].Text += s
		return
	}
	p.spans = append(p.spans, models.Span{Kind: kind, Text: s})
}

// parseQuoteHref understands "#p123" (same thread) and
// "/board/thread/456#p789" (other thread, optionally other board).
func parseQuoteHref(from models.PostDescriptor, href string) (models.PostDescriptor, bool) {
	path, frag, ok := strings.Cut(href, "#p")
	if !ok {
		return models.PostDescriptor{}, false
	}
	postNo, err := strconv.ParseInt(frag, 10, 64)
	if err != nil || postNo <= 0 {
		return models.PostDescriptor{}, false
	}

	target := models.PostDescriptor{Site: from.Site, Board: from.Board, ThreadNo: from.ThreadNo, PostNo: postNo}
	if path == "" {
		return target, true
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1:
		// "123#p456" relative thread link
		threadNo, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return models.PostDescriptor{}, false
		}
		target.ThreadNo = threadNo
	case len(parts) >= 3 && parts[1] == "thread":
		threadNo, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return models.PostDescriptor{}, false
		}
		target.Board = parts[0]
		target.ThreadNo = threadNo
	case len(parts) >= 2 && parts[0] == "thread":
		threadNo, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return models.PostDescriptor{}, false
		}
		target.ThreadNo = threadNo
	default:
		return models.PostDescriptor{}, false
	}
	return target, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			builder.WriteString(n.Data)
			return
		}
		for child := range n.ChildNodes() {
			walk(child)
		}
	}
	walk(n)
	return builder.String()
}

// PlainText flattens spans into display text.
func PlainText(spans []models.Span) string {
	var builder strings.Builder
	for _, s := range spans {
		if s.Kind == models.SpanLineBreak {
			builder.WriteString("\n")
			continue
		}
		builder.WriteString(s.Text)
	}
	return builder.String()
}
