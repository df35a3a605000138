// Package cli implements the quill command line with cobra.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/app"
	"github.com/custodia-labs/quill/internal/config"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// annotationStandalone marks commands that run without the core services.
const annotationStandalone = "quill/standalone"

// Services are the core services the commands drive.
type Services struct {
	Articles   driving.ArticleService
	Index      driving.IndexService
	Retrieval  driving.RetrievalService
	Reconciler driving.Reconciler
	Scheduler  driving.Scheduler

	// Worker is optional; status prints its process stats when set.
	Worker WorkerStats
}

// WorkerStats reports on the embedding worker.
type WorkerStats interface {
	Stats() worker.Stats
	// Ping checks the backend of model, or of the configured model when empty.
	Ping(ctx context.Context, model string) error
}

var (
	configPath string
	verbose    bool
	ephemeral  bool

	cfg         *config.Config
	cfgFile     string
	services    *Services
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Index story notes and retrieve bounded prompt context",
	Long: `quill keeps a searchable index of markdown articles (chapters, notes,
character and setting sheets) and assembles bounded context for prompts:
entity cards for the characters and settings a query names, plus the
passages most relevant to it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.quill/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep everything in memory for this run")
}

// SetServices injects services, bypassing construction from config.
func SetServices(s *Services) {
	services = s
}

// SetVersion sets the version string reported by quill version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cobra's Print helpers default to stderr.
	rootCmd.SetOut(os.Stdout)
	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil {
		logger.Warn("Shutdown: %v", cerr)
	}
	return err
}

// setup loads configuration and, unless the command is standalone, builds services.
func setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfgFile = path
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if verbose {
		cfg.Log.Verbose = true
	}
	logger.SetVerbose(cfg.Log.Verbose)
	if err := logger.SetFormat(cfg.Log.Format); err != nil {
		return err
	}

	if cmd.Annotations[annotationStandalone] == "true" || services != nil {
		return nil
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{ConfigPath: configPath, Ephemeral: ephemeral})
	if err != nil {
		return err
	}
	application = a
	services = &Services{
		Articles:   a.Articles,
		Index:      a.Indexer,
		Retrieval:  a.Retrieval,
		Reconciler: a.Reconciler,
		Scheduler:  a.Scheduler,
		Worker:     a.Worker,
	}
	return nil
}

func closeApp() error {
	if application == nil {
		return nil
	}
	err := application.Close()
	application = nil
	services = nil
	return err
}

var errNotConfigured = errors.New("services not configured")

// requireServices returns the services or an error when setup did not build them.
func requireServices() (*Services, error) {
	if services == nil {
		return nil, errNotConfigured
	}
	return services, nil
}

// standalone marks cmd as runnable without the core services.
func standalone(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationStandalone] = "true"
	return cmd
}
