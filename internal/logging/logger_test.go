package logging

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/postview/internal/models"
)

func TestInit_JSONRespectsLevel(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"message":"shown"`)
}

func TestComponentAndScopes(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	logger := WithChan(WithViewer(Component("popup"), "viewer-1"), models.ThreadDescriptor("4chan", "g", 7))
	logger.Debug().Msg("navigate")

	out := buf.String()
	require.Contains(t, out, `"component":"popup"`)
	require.Contains(t, out, `"viewer":"viewer-1"`)
	require.Contains(t, out, `"chan":"4chan/g/7"`)
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	scoped := zerolog.New(&buf).With().Str("scope", "ctx").Logger()
	ctx := WithContext(context.Background(), scoped)

	logger := FromContext(ctx)
	logger.Info().Msg("hello")
	require.True(t, strings.Contains(buf.String(), `"scope":"ctx"`))

	_ = FromContext(context.Background())
}

func TestOpenFile_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "postview.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	require.Equal(t, zerolog.Disabled, parseLevel("off"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}
