package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/app"
	"github.com/custodia-labs/quill/internal/logger"
)

// workerCmd is the child process the embedding client spawns. Stdout carries
// the frame protocol, so everything else goes to stderr.
var workerCmd = standalone(&cobra.Command{
	Use:    app.WorkerCommand,
	Short:  "Run the embedding worker on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetOutput(os.Stderr)
		server := app.NewWorkerServer(cfg, logger.L())
		return server.Serve(cmd.Context(), cmd.InOrStdin(), os.Stdout)
	},
})

func init() {
	rootCmd.AddCommand(workerCmd)
}
