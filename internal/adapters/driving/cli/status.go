package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/core/domain"
)

var (
	statusJSON bool
	statusPing bool
)

const statusPingTimeout = 30 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexer and embedding worker status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	statusCmd.Flags().BoolVar(&statusPing, "ping", false, "start the embedding worker if needed and check its backend is reachable")
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON shape of quill status.
type statusReport struct {
	Articles int                `json:"articles"`
	Index    domain.IndexStatus `json:"index"`
	Worker   *worker.Stats      `json:"worker,omitempty"`
	Ping     *pingReport        `json:"ping,omitempty"`

	LastReconcile *domain.ReconcileRun `json:"lastReconcile,omitempty"`
}

type pingReport struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	svc, err := requireServices()
	if err != nil {
		return err
	}

	ids, err := svc.Articles.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing articles: %w", err)
	}
	report := statusReport{Articles: len(ids), Index: svc.Index.Status()}
	if svc.Worker != nil {
		if statusPing {
			ctx, cancel := context.WithTimeout(cmd.Context(), statusPingTimeout)
			err := svc.Worker.Ping(ctx, "")
			cancel()
			report.Ping = &pingReport{Reachable: err == nil}
			if err != nil {
				report.Ping.Error = err.Error()
			}
		}
		stats := svc.Worker.Stats()
		report.Worker = &stats
	}

	if svc.Scheduler != nil {
		runs, err := svc.Scheduler.History(cmd.Context(), 1)
		if err != nil {
			return fmt.Errorf("reading reconcile history: %w", err)
		}
		if len(runs) > 0 {
			report.LastReconcile = &runs[0]
		}
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	st := stylesFor(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Index"))
	cmd.Printf("  Articles:  %d\n", report.Articles)
	cmd.Printf("  State:     %s\n", report.Index.State)
	cmd.Printf("  Pending:   %d\n", report.Index.Pending)
	if report.Index.InFlight != "" {
		cmd.Printf("  In flight: %s\n", report.Index.InFlight)
	}
	cmd.Printf("  Processed: %d\n", report.Index.Processed)
	cmd.Printf("  Failed:    %d\n", report.Index.Failed)
	if report.Index.LastError != "" {
		cmd.Printf("  Last error: %s\n", st.Error.Render(report.Index.LastError))
	}

	if w := report.Worker; w != nil {
		cmd.Println()
		cmd.Println(st.Title.Render("Embedding worker"))
		cmd.Printf("  Model:     %s\n", w.Model)
		if w.Running {
			cmd.Printf("  Running:   %s\n", st.Success.Render("yes"))
		} else {
			cmd.Printf("  Running:   %s\n", st.Muted.Render("no (starts on first request)"))
		}
		if w.PID > 0 {
			cmd.Printf("  PID:       %d\n", w.PID)
		}
		if w.RSSBytes > 0 {
			cmd.Printf("  RSS:       %.1f MiB\n", float64(w.RSSBytes)/(1<<20))
		}
		cmd.Printf("  Pending:   %d\n", w.Pending)
		cmd.Printf("  Restarts:  %d\n", w.Restarts)
		if p := report.Ping; p != nil {
			if p.Reachable {
				cmd.Printf("  Reachable: %s\n", st.Success.Render("yes"))
			} else {
				cmd.Printf("  Reachable: %s\n", st.Error.Render("no: "+p.Error))
			}
		}
	}

	if run := report.LastReconcile; run != nil {
		cmd.Println()
		cmd.Println(st.Title.Render("Last reconcile"))
		cmd.Printf("  Started:   %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
		if run.Failed() {
			cmd.Printf("  Error:     %s\n", st.Error.Render(run.Error))
		} else {
			cmd.Printf("  Result:    %d scanned, %d re-enqueued, %d orphans removed\n",
				run.Report.Scanned, run.Report.Enqueued, run.Report.Orphans)
		}
	}
	return nil
}
