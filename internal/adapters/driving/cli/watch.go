package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/adapters/driving/watcher"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Mirror a directory of notes into the index",
	Long: `Scans dir once, storing new and changed files and deleting articles whose
files are gone, then keeps the index in sync as files change. Article ids are
slash-separated paths relative to dir. Defaults to watch.dir from config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	dir := ""
	if cfg != nil {
		dir = cfg.Watch.Dir
	}
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory given and watch.dir is not set")
	}

	w, err := startWatcher(cmd, svc.Articles, dir)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(cmd.Context())
}

// startWatcher builds a watcher over dir and runs the initial scan.
func startWatcher(cmd *cobra.Command, articles driving.ArticleService, dir string) (*watcher.Watcher, error) {
	var exts []string
	if cfg != nil {
		exts = cfg.Watch.Extensions
	}
	w, err := watcher.New(dir, exts, articles)
	if err != nil {
		return nil, err
	}
	n, err := w.Scan(cmd.Context())
	if err != nil && !isCancelled(cmd.Context()) {
		_ = w.Close()
		return nil, fmt.Errorf("scanning %s: %w", w.Root(), err)
	}
	st := stylesFor(cmd.ErrOrStderr())
	cmd.PrintErrln(st.Muted.Render(fmt.Sprintf("Watching %s (%d changed on scan)", w.Root(), n)))
	return w, nil
}

func isCancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
