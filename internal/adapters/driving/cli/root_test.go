package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"put", "delete", "show", "list", "index", "rebuild", "reconcile",
		"retrieve", "status", "serve", "watch", "mcp", "config", "version", "embed-worker",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.True(t, workerCmd.Hidden)
}

func TestStandaloneCommands(t *testing.T) {
	tests := []struct {
		name       string
		standalone bool
	}{
		{"version", true},
		{"embed-worker", true},
		{"show", false},
		{"retrieve", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			assert.Equal(t, tt.standalone, cmd.Annotations[annotationStandalone] == "true")
		})
	}
	assert.Equal(t, "true", configShowCmd.Annotations[annotationStandalone])
	assert.Equal(t, "true", configInitCmd.Annotations[annotationStandalone])
}

func TestRequireServices(t *testing.T) {
	services = nil
	_, err := requireServices()
	assert.ErrorIs(t, err, errNotConfigured)

	setupTestServices(t)
	svc, err := requireServices()
	require.NoError(t, err)
	assert.NotNil(t, svc.Articles)
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"dev by default", "dev", "quill version dev"},
		{"set at build", "1.2.0", "quill version 1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestServices(t)
			original := version
			t.Cleanup(func() { version = original })
			version = tt.version

			out, err := execute(t, "version")

			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	original := version
	t.Cleanup(func() { version = original })

	SetVersion("2.0.0")
	SetVersion("")
	assert.Equal(t, "2.0.0", version)
}

func TestVerboseFlag_EnablesDebugLogging(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "list", "-v")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Log.Verbose)
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	setupTestServices(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	configFile := filepath.Join(t.TempDir(), "config.toml")
	done := make(chan error, 1)
	go func() {
		_, err := executeContext(ctx, t, configFile, "serve", "--addr", "127.0.0.1:0")
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestWatchCmd_ScansDirectory(t *testing.T) {
	ts := setupTestServices(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ch1.md"), []byte("Chapter one."), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0600))
	ts.articles.articles["gone.md"] = "removed from disk"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, err := executeContext(ctx, t, filepath.Join(t.TempDir(), "config.toml"), "watch", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "2 changed on scan")
	content, ok := ts.articles.content("ch1.md")
	require.True(t, ok)
	assert.Equal(t, "Chapter one.", content)
	_, ok = ts.articles.content("gone.md")
	assert.False(t, ok)
	_, ok = ts.articles.content("image.png")
	assert.False(t, ok)
}

func TestWatchCmd_NeedsDirectory(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "watch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no directory given")
}
