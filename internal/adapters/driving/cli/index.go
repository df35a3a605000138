package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/core/domain"
)

var (
	indexAll          bool
	rebuildCollection string
)

var indexCmd = &cobra.Command{
	Use:   "index [id...]",
	Short: "Index articles",
	Long: `Enqueues the named articles (or every article with --all) and waits
until the indexer has processed them.`,
	RunE: runIndex,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop a vector collection and re-index every article",
	Long: `Deletes every vector in a collection, forgets its dimension and
re-indexes all articles. This is the recovery for a dimension conflict after
changing the embedding model. Without --collection all three collections
(documents, chunks, entities) are rebuilt.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-index stale articles and drop orphaned derived state",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "index every article")
	rebuildCmd.Flags().StringVar(&rebuildCollection, "collection", "", "collection to rebuild: documents, chunks or entities")
	rootCmd.AddCommand(indexCmd, rebuildCmd, reconcileCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	ids := args
	if indexAll {
		if len(args) > 0 {
			return errors.New("pass article ids or --all, not both")
		}
		ids, err = svc.Articles.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing articles: %w", err)
		}
	} else if len(ids) == 0 {
		return errors.New("pass at least one article id, or --all")
	}

	before := svc.Index.Status()
	for _, id := range ids {
		svc.Index.EnqueueArticleForIndexing(id)
	}
	cmd.Printf("Enqueued %d articles\n", len(ids))
	return waitForIndex(cmd, svc, before)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	targets := domain.Collections
	if rebuildCollection != "" {
		c := domain.Collection(rebuildCollection)
		if !c.IsValid() {
			return fmt.Errorf("unknown collection %q (want documents, chunks or entities)", rebuildCollection)
		}
		targets = []domain.Collection{c}
	}

	before := svc.Index.Status()
	for _, c := range targets {
		n, err := svc.Index.Rebuild(cmd.Context(), c)
		if err != nil {
			return fmt.Errorf("rebuild %s failed: %w", c, err)
		}
		cmd.Printf("Reset %s, re-enqueued %d articles\n", c, n)
	}
	return waitForIndex(cmd, svc, before)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	before := svc.Index.Status()
	report, err := svc.Reconciler.Reconcile(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	cmd.Printf("Scanned %d articles: %d up to date, %d re-enqueued, %d orphans removed\n",
		report.Scanned, report.UpToDate, report.Enqueued, report.Orphans)
	if report.Enqueued == 0 {
		return nil
	}
	return waitForIndex(cmd, svc, before)
}

// waitForIndex blocks until the indexer is idle and reports the outcome.
// before is the status captured prior to enqueueing.
func waitForIndex(cmd *cobra.Command, svc *Services, before domain.IndexStatus) error {
	if err := svc.Index.Wait(cmd.Context()); err != nil {
		return fmt.Errorf("waiting for indexer: %w", err)
	}
	after := svc.Index.Status()

	processed := after.Processed - before.Processed
	failed := after.Failed - before.Failed
	st := stylesFor(cmd.OutOrStdout())
	if failed > 0 {
		cmd.Println(st.Warning.Render(fmt.Sprintf("Indexed %d, failed %d (last error: %s)",
			processed, failed, after.LastError)))
		return nil
	}
	cmd.Println(st.Success.Render(fmt.Sprintf("Indexed %d", processed)))
	return nil
}
