package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var putNoWait bool

var putCmd = &cobra.Command{
	Use:   "put <id> [file]",
	Short: "Store an article and index it",
	Long: `Stores the content of file (or stdin when file is omitted or "-") as the
article with the given id, then indexes it. Ids are free-form; paths such as
"chapters/01.md" work well.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an article and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an article and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List article ids",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	putCmd.Flags().BoolVar(&putNoWait, "no-wait", false, "return without waiting for indexing")
	rootCmd.AddCommand(putCmd, deleteCmd, showCmd, listCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	id := args[0]
	content, err := readContent(cmd, args[1:])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	before := svc.Index.Status()
	if err := svc.Articles.Put(ctx, id, content); err != nil {
		return fmt.Errorf("put failed: %w", err)
	}
	cmd.Printf("Stored %s (%d bytes)\n", id, len(content))

	if putNoWait {
		return nil
	}
	return waitForIndex(cmd, svc, before)
}

func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	if err := svc.Articles.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	article, err := svc.Articles.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("show failed: %w", err)
	}
	chunks, err := svc.Articles.Chunks(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}

	st := stylesFor(cmd.OutOrStdout())
	cmd.Println(st.Title.Render(article.ID))
	if !article.UpdatedAt.IsZero() {
		cmd.Println(st.Muted.Render("updated " + article.UpdatedAt.Format("2006-01-02 15:04:05")))
	}
	cmd.Println()
	cmd.Println(article.Content)
	cmd.Println()
	cmd.Println(st.Subtitle.Render(fmt.Sprintf("Chunks (%d)", len(chunks))))
	for _, c := range chunks {
		cmd.Printf("  [%d] %s\n", c.Index, st.Muted.Render(c.ID))
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	ids, err := svc.Articles.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	if len(ids) == 0 {
		cmd.Println("No articles.")
		return nil
	}
	for _, id := range ids {
		cmd.Println(id)
	}
	return nil
}
