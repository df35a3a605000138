package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

// setupTestServices injects mocks and resets command state when the test ends.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	resetFlags()

	ts := &testServices{
		articles:   newMockArticleService(),
		index:      &mockIndexService{},
		retrieval:  &mockRetrievalService{},
		reconciler: &mockReconciler{},
		worker:     &mockWorker{},
	}
	ts.articles.index = ts.index
	SetServices(&Services{
		Articles:   ts.articles,
		Index:      ts.index,
		Retrieval:  ts.retrieval,
		Reconciler: ts.reconciler,
		Worker:     ts.worker,
	})

	t.Cleanup(func() {
		services = nil
		cfg = nil
		cfgFile = ""
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return ts
}

// resetFlags clears flag variables, which cobra leaves set between runs.
func resetFlags() {
	configPath = ""
	verbose = false
	ephemeral = false
	putNoWait = false
	indexAll = false
	rebuildCollection = ""
	retrieveMaxChars = 0
	retrieveMaxChunks = 0
	retrieveMaxCharacters = 0
	retrieveMaxSettings = 0
	retrieveCursor = ""
	retrieveThreshold = 0
	retrieveJSON = false
	statusJSON = false
	statusPing = false
	configForce = false
	mcpPort = 0
	serveAddr = ""
	serveWatch = ""
}

// execute runs the root command against a config file in a temp dir.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(context.Background(), t, filepath.Join(t.TempDir(), "config.toml"), args...)
}

func executeContext(ctx context.Context, t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append(args, "--config", configFile))
	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}
