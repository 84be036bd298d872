package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/postview/internal/models"
)

var op = models.NewPostDescriptor("4chan", "g", 100, 100)

func TestParseComment_QuotesAndText(t *testing.T) {
	post := models.NewPostDescriptor("4chan", "g", 100, 103)
	comment := `<a href="#p101" class="quotelink">&gt;&gt;101</a><br>agreed<br><a href="#p101" class="quotelink">&gt;&gt;101</a> <a href="/a/thread/55#p56" class="quotelink">&gt;&gt;&gt;/a/56</a>`

	spans, quotes, err := ParseComment(post, comment)
	require.NoError(t, err)
	require.Equal(t, []models.PostDescriptor{
		models.NewPostDescriptor("4chan", "g", 100, 101),
		models.NewPostDescriptor("4chan", "a", 55, 56),
	}, quotes)

	require.Equal(t, models.SpanQuote, spans[0].Kind)
	require.Equal(t, ">>101", spans[0].Text)
	require.Equal(t, models.SpanLineBreak, spans[1].Kind)
	require.Equal(t, models.Span{Kind: models.SpanText, Text: "agreed"}, spans[2])
	require.Equal(t, ">>101\nagreed\n>>101 >>>/a/56", PlainText(spans))
}

func TestParseComment_GreentextSpoilerLinks(t *testing.T) {
	comment := `<span class="quote">&gt;implying</span><br><s>secret</s> <a href="https://example.com">site</a> <a href="https://x.test"></a>`

	spans, quotes, err := ParseComment(op, comment)
	require.NoError(t, err)
	require.Empty(t, quotes)

	kinds := make([]models.SpanKind, 0, len(spans))
	for _, s := range spans {
		kinds = append(kinds, s.Kind)
	}
	require.Equal(t, []models.SpanKind{
		models.SpanGreentext,
		models.SpanLineBreak,
		models.SpanSpoiler,
		models.SpanText,
		models.SpanLink,
		models.SpanText,
		models.SpanLink,
	}, kinds)
	require.Equal(t, "https://example.com", spans[4].Href)
	require.Equal(t, "https://x.test", spans[6].Text)
}

func TestParseComment_Empty(t *testing.T) {
	spans, quotes, err := ParseComment(op, "   ")
	require.NoError(t, err)
	require.Nil(t, spans)
	require.Nil(t, quotes)
}

func TestParseQuoteHref(t *testing.T) {
	from := models.NewPostDescriptor("4chan", "g", 100, 150)
	tests := []struct {
		href string
		want models.PostDescriptor
		ok   bool
	}{
		{"#p120", models.NewPostDescriptor("4chan", "g", 100, 120), true},
		{"/g/thread/90#p91", models.NewPostDescriptor("4chan", "g", 90, 91), true},
		{"/v/thread/7#p8", models.NewPostDescriptor("4chan", "v", 7, 8), true},
		{"thread/90#p95", models.NewPostDescriptor("4chan", "g", 90, 95), true},
		{"90#p95", models.NewPostDescriptor("4chan", "g", 90, 95), true},
		{"#q12", models.PostDescriptor{}, false},
		{"#pabc", models.PostDescriptor{}, false},
		{"/g/catalog#p1x", models.PostDescriptor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := parseQuoteHref(from, tt.href)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractQuotes(t *testing.T) {
	post := models.NewPostDescriptor("4chan", "g", 100, 103)
	quotes := ExtractQuotes(post, `<a href="#p100" class="quotelink">&gt;&gt;100</a> text`)
	require.Equal(t, []models.PostDescriptor{op}, quotes)
}
