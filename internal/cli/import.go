package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tOgg1/postview/internal/logging"
	"github.com/tOgg1/postview/internal/models"
)

var (
	importBoard     string
	importMediaBase string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importBoard, "board", "", "board code the dump belongs to (required)")
	importCmd.Flags().StringVar(&importMediaBase, "media-base", "https://i.4cdn.org", "base URL for attachment links")
	_ = importCmd.MarkFlagRequired("board")
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import thread dumps",
	Long: `Import one or more thread dumps in board API JSON format
({"posts": [...]}) into the local post store. Use "-" to read stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		type imported struct {
			File   string `json:"file"`
			Thread string `json:"thread"`
			Posts  int    `json:"posts"`
		}
		var results []imported

		for _, path := range args {
			records, err := readThreadDump(path, defaultSite(), importBoard, importMediaBase)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if len(records) == 0 {
				logging.Warn().Str("file", path).Msg("thread dump has no posts")
				continue
			}
			if err := a.posts.Put(ctx, records...); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results = append(results, imported{
				File:   path,
				Thread: records[0].Descriptor.Chan().String(),
				Posts:  len(records),
			})
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, results)
		}
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, []string{r.File, r.Thread, strconv.Itoa(r.Posts)})
		}
		return writeTable(os.Stdout, []string{"FILE", "THREAD", "POSTS"}, rows)
	},
}

// dumpPost is one post in the board API thread format.
type dumpPost struct {
	No           int64  `json:"no"`
	Resto        int64  `json:"resto"`
	Time         int64  `json:"time"`
	Name         string `json:"name"`
	Sub          string `json:"sub"`
	Com          string `json:"com"`
	Filename     string `json:"filename"`
	Ext          string `json:"ext"`
	Tim          int64  `json:"tim"`
	W            int    `json:"w"`
	H            int    `json:"h"`
	Fsize        int64  `json:"fsize"`
	Spoiler      int    `json:"spoiler"`
	Sticky       int    `json:"sticky"`
	Closed       int    `json:"closed"`
	Archived     int    `json:"archived"`
	FileDeleted  int    `json:"filedeleted"`
	Replies      int    `json:"replies"`
	Images       int    `json:"images"`
	LastModified int64  `json:"last_modified"`
}

type threadDump struct {
	Posts []dumpPost `json:"posts"`
}

func readThreadDump(path, site, board, mediaBase string) ([]models.RawPostRecord, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return decodeThreadDump(r, site, board, mediaBase)
}

func decodeThreadDump(r io.Reader, site, board, mediaBase string) ([]models.RawPostRecord, error) {
	var dump threadDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("failed to decode thread dump: %w", err)
	}
	if len(dump.Posts) == 0 {
		return nil, nil
	}

	threadNo := dump.Posts[0].No
	if dump.Posts[0].Resto != 0 {
		return nil, fmt.Errorf("first post %d is not an original post", dump.Posts[0].No)
	}

	mediaBase = strings.TrimRight(mediaBase, "/")
	var lastReply time.Time
	records := make([]models.RawPostRecord, 0, len(dump.Posts))
	for _, p := range dump.Posts {
		if p.Resto != 0 && p.Resto != threadNo {
			return nil, fmt.Errorf("post %d belongs to thread %d, not %d", p.No, p.Resto, threadNo)
		}
		rec := models.RawPostRecord{
			Descriptor: models.NewPostDescriptor(site, board, threadNo, p.No),
			Name:       p.Name,
			Subject:    p.Sub,
			Comment:    p.Com,
			Flags: models.PostFlags{
				Sticky:   p.Sticky == 1,
				Closed:   p.Closed == 1,
				Archived: p.Archived == 1,
			},
			Replies:      p.Replies,
			ImageReplies: p.Images,
			PostedAt:     time.Unix(p.Time, 0).UTC(),
		}
		if p.LastModified > 0 {
			rec.LastModified = time.Unix(p.LastModified, 0).UTC()
		}
		if p.Tim != 0 && p.FileDeleted == 0 {
			tim := strconv.FormatInt(p.Tim, 10)
			rec.Images = []models.Image{{
				Filename:  p.Filename,
				Extension: p.Ext,
				URL:       fmt.Sprintf("%s/%s/%s%s", mediaBase, board, tim, p.Ext),
				ThumbURL:  fmt.Sprintf("%s/%s/%ss.jpg", mediaBase, board, tim),
				Width:     p.W,
				Height:    p.H,
				Size:      p.Fsize,
				Spoiler:   p.Spoiler == 1,
			}}
		}
		if rec.PostedAt.After(lastReply) {
			lastReply = rec.PostedAt
		}
		records = append(records, rec)
	}
	records[0].BumpedAt = lastReply
	return records, nil
}
