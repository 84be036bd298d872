package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tOgg1/postview/internal/collection"
	"github.com/tOgg1/postview/internal/models"
	"github.com/tOgg1/postview/internal/popup"
)

var repliesIncludeSelf bool

func init() {
	rootCmd.AddCommand(repliesCmd, quoteCmd, postsCmd)
	repliesCmd.Flags().BoolVar(&repliesIncludeSelf, "self", false, "include the post itself before its replies")
}

var repliesCmd = &cobra.Command{
	Use:   "replies <post>",
	Short: "Show the posts replying to a post",
	Long: `Show every stored post that quotes <post>.

<post> is a post number in the current thread or /board/thread/post.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolvePost(args[0])
		if err != nil {
			return err
		}
		return runPopup(cmd.Context(), target.Chan(), popup.RepliesFrom{Target: target, IncludeSelf: repliesIncludeSelf})
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <post>",
	Short: "Show a single quoted post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolvePost(args[0])
		if err != nil {
			return err
		}
		return runPopup(cmd.Context(), target.Chan(), popup.ReplyTo{Target: target})
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts <post>...",
	Short: "Show an explicit list of posts from one thread",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var list popup.PostList
		for _, arg := range args {
			desc, err := resolvePost(arg)
			if err != nil {
				return err
			}
			if list.Chan.IsZero() {
				list.Chan = desc.Chan()
			} else if list.Chan != desc.Chan() {
				return fmt.Errorf("%s is not in %s", desc, list.Chan)
			}
			list.Posts = append(list.Posts, desc)
		}
		return runPopup(cmd.Context(), list.Chan, list)
	},
}

func runPopup(ctx context.Context, chanDescriptor models.ChanDescriptor, mode popup.ViewMode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	viewer := a.viewers.GetOrCreate(popup.NewViewerKey(), chanDescriptor)
	if err := viewer.OpenInitial(ctx, mode); err != nil {
		return err
	}

	snap := viewer.State().Snapshot()
	if snap.Status != collection.StatusData {
		return fmt.Errorf("popup ended in %s state", snap.Status)
	}
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, snap.Cells)
	}
	if len(snap.Cells) == 0 {
		fmt.Fprintf(os.Stdout, "No posts for %s\n", mode)
		return nil
	}
	fmt.Fprintln(os.Stdout, mutedStyle.Render(mode.String()))
	fmt.Fprintln(os.Stdout, formatCells(snap.Cells, terminalWidth()))
	return nil
}
