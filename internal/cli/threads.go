package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/postview/internal/models"
	"github.com/tOgg1/postview/internal/render"
)

var threadsSort string

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.Flags().StringVar(&threadsSort, "sort", "", "catalog order: bump, replies, creation (default from config)")
}

var threadsCmd = &cobra.Command{
	Use:   "threads [/board/]",
	Short: "List stored threads of a board",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		chanDescriptor, err := resolveChan(args)
		if err != nil {
			return err
		}
		catalog := chanDescriptor.Catalog()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.posts.Thread(ctx, catalog)
		if err != nil {
			return err
		}
		cells, err := a.pipeline.ParseAll(ctx, records, models.RenderContext{IsCatalog: true, FontSize: a.cfg.Render.FontSize})
		if err != nil {
			return err
		}

		order := a.cfg.Render.CatalogSort
		if threadsSort != "" {
			order = threadsSort
		}
		cells = render.Sorter{Catalog: render.CatalogOrder(order)}.SortCatalog(cells)

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, cells)
		}
		if len(cells) == 0 {
			fmt.Fprintf(os.Stdout, "No threads stored for %s\n", catalog)
			return nil
		}

		width := max(terminalWidth()-40, 20)
		rows := make([][]string, 0, len(cells))
		for _, cell := range cells {
			title := cell.Subject
			if title == "" {
				title = strings.Join(strings.Fields(render.PlainText(cell.Comment)), " ")
			}
			rec := cell.Record
			rows = append(rows, []string{
				strconv.FormatInt(rec.Descriptor.ThreadNo, 10),
				strconv.Itoa(rec.Replies),
				rec.PostedAt.Local().Format("2006-01-02 15:04"),
				truncate(title, width),
			})
		}
		return writeTable(os.Stdout, []string{"THREAD", "REPLIES", "POSTED", "TITLE"}, rows)
	},
}
