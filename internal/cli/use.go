package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().BoolVar(&useClear, "clear", false, "clear the current selection")
}

var useCmd = &cobra.Command{
	Use:   "use [/board/[thread]]",
	Short: "Select the current board or thread",
	Long: `Select the board or thread later commands operate on.

Without arguments the current selection is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := contextStore()
		ctx, err := store.Load()
		if err != nil {
			return err
		}

		switch {
		case useClear:
			if err := store.Clear(); err != nil {
				return err
			}
			ctx.Clear()
		case len(args) == 1:
			chanDescriptor, err := parseChanRef(defaultSite(), args[0])
			if err != nil {
				return err
			}
			ctx.SetBoard(chanDescriptor.Site, chanDescriptor.Board)
			if chanDescriptor.IsThread() {
				ctx.SetThread(chanDescriptor.ThreadNo)
			}
			if err := store.Save(ctx); err != nil {
				return err
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, ctx)
		}
		fmt.Fprintf(os.Stdout, "Current: %s\n", ctx.String())
		return nil
	},
}
