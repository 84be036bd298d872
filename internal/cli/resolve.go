package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tOgg1/postview/internal/config"
	"github.com/tOgg1/postview/internal/models"
)

func contextStore() *config.ContextStore {
	if cfg := GetConfig(); cfg != nil && cfg.Global.ConfigDir != "" {
		return config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
	}
	return config.NewContextStore("")
}

func defaultSite() string {
	if cfg := GetConfig(); cfg != nil && cfg.Global.Site != "" {
		return cfg.Global.Site
	}
	return "4chan"
}

// parseChanRef parses "/g/", "g", "/g/123" or "g/123".
func parseChanRef(site, ref string) (models.ChanDescriptor, error) {
	parts := splitRef(ref)
	switch len(parts) {
	case 1:
		return models.CatalogDescriptor(site, parts[0]), nil
	case 2:
		threadNo, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || threadNo <= 0 {
			return models.ChanDescriptor{}, fmt.Errorf("invalid thread number %q", parts[1])
		}
		return models.ThreadDescriptor(site, parts[0], threadNo), nil
	default:
		return models.ChanDescriptor{}, fmt.Errorf("invalid board or thread reference %q (expected /board/ or /board/thread)", ref)
	}
}

// resolveChan returns the chan named by args[0], falling back to the saved
// context.
func resolveChan(args []string) (models.ChanDescriptor, error) {
	site := defaultSite()
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return parseChanRef(site, args[0])
	}

	ctx, err := contextStore().Load()
	if err != nil {
		return models.ChanDescriptor{}, err
	}
	chanDescriptor, ok := ctx.Chan()
	if !ok {
		return models.ChanDescriptor{}, fmt.Errorf("no board selected; pass /board/thread or run 'postview use /board/thread'")
	}
	return chanDescriptor, nil
}

// resolvePost parses "123" against the context thread, or "/g/100/123".
func resolvePost(ref string) (models.PostDescriptor, error) {
	parts := splitRef(ref)
	site := defaultSite()
	switch len(parts) {
	case 1:
		postNo, err := strconv.ParseInt(strings.TrimPrefix(parts[0], ">>"), 10, 64)
		if err != nil || postNo <= 0 {
			return models.PostDescriptor{}, fmt.Errorf("invalid post number %q", ref)
		}
		ctx, err := contextStore().Load()
		if err != nil {
			return models.PostDescriptor{}, err
		}
		if !ctx.HasThread() {
			return models.PostDescriptor{}, fmt.Errorf("post %d needs a thread; pass /board/thread/post or run 'postview use /board/thread'", postNo)
		}
		if ctx.Site != "" {
			site = ctx.Site
		}
		return models.NewPostDescriptor(site, ctx.Board, ctx.ThreadNo, postNo), nil
	case 3:
		threadNo, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return models.PostDescriptor{}, fmt.Errorf("invalid thread number %q", parts[1])
		}
		postNo, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return models.PostDescriptor{}, fmt.Errorf("invalid post number %q", parts[2])
		}
		desc := models.NewPostDescriptor(site, parts[0], threadNo, postNo)
		return desc, desc.Validate()
	default:
		return models.PostDescriptor{}, fmt.Errorf("invalid post reference %q (expected N or /board/thread/N)", ref)
	}
}

func splitRef(ref string) []string {
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	if ref == "" {
		return nil
	}
	return strings.Split(ref, "/")
}
