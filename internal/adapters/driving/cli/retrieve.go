package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/core/domain"
)

var (
	retrieveMaxChars      int
	retrieveMaxChunks     int
	retrieveMaxCharacters int
	retrieveMaxSettings   int
	retrieveCursor        string
	retrieveThreshold     float64
	retrieveJSON          bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Assemble bounded context for a query",
	Long: `Returns the character and setting cards a query names (use @name to be
explicit) and the passages most relevant to it, within a character budget.
Pass the printed cursor back with --cursor to page through more passages.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func init() {
	f := retrieveCmd.Flags()
	f.IntVar(&retrieveMaxChars, "max-chars", 0, "total character budget (default from config)")
	f.IntVar(&retrieveMaxChunks, "max-chunks", 0, "maximum passages (default from config)")
	f.IntVar(&retrieveMaxCharacters, "max-characters", 0, "maximum character cards (default from config)")
	f.IntVar(&retrieveMaxSettings, "max-settings", 0, "maximum setting cards (default from config)")
	f.StringVar(&retrieveCursor, "cursor", "", "cursor from a previous call")
	f.Float64Var(&retrieveThreshold, "threshold", 0, "similarity floor in (0,1]")
	f.BoolVar(&retrieveJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	budget := domain.Budget{}
	if cfg != nil {
		budget = cfg.DefaultBudget()
	}
	if retrieveMaxChars > 0 {
		budget.MaxChars = retrieveMaxChars
	}
	if retrieveMaxChunks > 0 {
		budget.MaxChunks = retrieveMaxChunks
	}
	if retrieveMaxCharacters > 0 {
		budget.MaxCharacters = retrieveMaxCharacters
	}
	if retrieveMaxSettings > 0 {
		budget.MaxSettings = retrieveMaxSettings
	}
	budget.Cursor = retrieveCursor
	budget.Threshold = retrieveThreshold

	result, err := svc.Retrieval.Retrieve(cmd.Context(), strings.Join(args, " "), budget)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printRetrieval(cmd, result)
	return nil
}

func printRetrieval(cmd *cobra.Command, r *domain.RetrievalResult) {
	st := stylesFor(cmd.OutOrStdout())

	if len(r.Characters)+len(r.Settings)+len(r.Passages) == 0 {
		cmd.Println("Nothing relevant found.")
		return
	}

	printCards(cmd, st, "Characters", r.Characters)
	printCards(cmd, st, "Settings", r.Settings)

	if len(r.Passages) > 0 {
		cmd.Println(st.Title.Render("Passages"))
		for i, p := range r.Passages {
			cmd.Printf("  [%d] %s %s\n", i+1,
				st.Subtitle.Render(fmt.Sprintf("%s#%d", p.ArticleID, p.Index)),
				st.Muted.Render(fmt.Sprintf("%s %.2f", p.Source, p.Score)))
			cmd.Println(indent(p.Content, "      "))
		}
		cmd.Println()
	}

	footer := fmt.Sprintf("Used %d/%d chars", r.Budget.UsedChars, r.Budget.MaxChars)
	if r.Budget.NextCursor != "" {
		footer += fmt.Sprintf(", more with --cursor %s", r.Budget.NextCursor)
	}
	cmd.Println(st.Muted.Render(footer))
}

func printCards(cmd *cobra.Command, st *Styles, title string, cards []domain.CardHit) {
	if len(cards) == 0 {
		return
	}
	cmd.Println(st.Title.Render(title))
	for _, c := range cards {
		name := c.Name
		if len(c.Aliases) > 0 {
			name += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		cmd.Printf("  %s %s\n", st.Subtitle.Render(name),
			st.Muted.Render(fmt.Sprintf("%s %.2f, %s", c.MatchedBy, c.Score, c.ArticleID)))
		cmd.Println(indent(c.Content, "    "))
	}
	cmd.Println()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
