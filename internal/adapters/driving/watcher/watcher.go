// Package watcher mirrors a directory of text files into the article store.
//
// Each watched file becomes an article whose id is its slash-separated path
// relative to the root. Creates and writes store the file; removes and
// renames delete the article, which in turn drops its derived records.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
	"github.com/custodia-labs/quill/internal/normalisers"
)

// DefaultExtensions are watched when none are configured.
var DefaultExtensions = []string{".md", ".txt"}

// Action is what the watcher did with one event.
type Action string

// Actions.
const (
	ActionNone   Action = ""
	ActionPut    Action = "put"
	ActionDelete Action = "delete"
)

// Watcher keeps the article store in step with a directory tree.
type Watcher struct {
	root       string
	extensions map[string]struct{}
	articles   driving.ArticleService
	normaliser *normalisers.Registry
	fsw        *fsnotify.Watcher
}

// New creates a watcher rooted at dir.
func New(dir string, extensions []string, articles driving.ArticleService) (*Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.CodeInvalidArgument, "watch",
			fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidArgument, root))
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:       root,
		extensions: exts,
		articles:   articles,
		normaliser: normalisers.Default(),
		fsw:        fsw,
	}, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Scan stores every watched file under the root and deletes articles whose
// file is gone. It returns the number of articles stored or deleted.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	changed := 0

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != w.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !w.watched(path) {
			return nil
		}

		id, ok := w.articleID(path)
		if !ok {
			return nil
		}
		seen[id] = struct{}{}
		stored, err := w.store(ctx, id, path)
		if err != nil {
			logger.Warn("Watcher: %s: %v", id, err)
			return nil
		}
		if stored {
			changed++
		}
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("scan %s: %w", w.root, err)
	}

	ids, err := w.articles.List(ctx)
	if err != nil {
		return changed, fmt.Errorf("list articles: %w", err)
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok || !w.watched(id) {
			continue
		}
		if err := w.articles.Delete(ctx, id); err != nil {
			logger.Warn("Watcher: delete %s: %v", id, err)
			continue
		}
		changed++
	}

	return changed, nil
}

// Run watches the tree until ctx is cancelled. Call Scan first to pick up
// files that changed while nothing was watching.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	logger.Info("Watching %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if _, err := w.HandleEvent(ctx, event); err != nil {
				logger.Warn("Watcher: %s: %v", event.Name, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher: fsnotify: %v", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// HandleEvent applies one filesystem event to the article store.
func (w *Watcher) HandleEvent(ctx context.Context, event fsnotify.Event) (Action, error) {
	if isHiddenPath(w.root, event.Name) {
		return ActionNone, nil
	}

	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			// Gone before we could read it; a remove event follows.
			return ActionNone, nil
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) {
				return ActionNone, w.adoptDir(ctx, event.Name)
			}
			return ActionNone, nil
		}
		if !w.watched(event.Name) {
			return ActionNone, nil
		}
		id, ok := w.articleID(event.Name)
		if !ok {
			return ActionNone, nil
		}
		stored, err := w.store(ctx, id, event.Name)
		if err != nil || !stored {
			return ActionNone, err
		}
		return ActionPut, nil

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		id, ok := w.articleID(event.Name)
		if !ok {
			return ActionNone, nil
		}
		if w.watched(event.Name) {
			if err := w.articles.Delete(ctx, id); err != nil {
				return ActionNone, err
			}
			logger.Debug("Watcher: deleted %s", id)
			return ActionDelete, nil
		}
		// Possibly a directory: drop every article beneath it.
		n, err := w.deletePrefix(ctx, id+"/")
		if err != nil || n == 0 {
			return ActionNone, err
		}
		return ActionDelete, nil
	}

	return ActionNone, nil
}

// store puts the file's content unless the article already holds it.
func (w *Watcher) store(ctx context.Context, id, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	content, err := w.normaliser.Normalise(path, data)
	if err != nil {
		return false, fmt.Errorf("normalise %s: %w", path, err)
	}

	existing, err := w.articles.Get(ctx, id)
	switch {
	case err == nil && existing.Content == content:
		return false, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("get %s: %w", id, err)
	}

	if err := w.articles.Put(ctx, id, content); err != nil {
		return false, err
	}
	logger.Debug("Watcher: stored %s", id)
	return true, nil
}

func (w *Watcher) deletePrefix(ctx context.Context, prefix string) (int, error) {
	ids, err := w.articles.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}
	n := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if err := w.articles.Delete(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// adoptDir watches a new directory and stores files created in it before
// the watch was in place.
func (w *Watcher) adoptDir(ctx context.Context, dir string) error {
	if err := w.addTree(dir); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || isHidden(d.Name()) || !w.watched(path) {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if id, ok := w.articleID(path); ok {
			if _, err := w.store(ctx, id, path); err != nil {
				logger.Warn("Watcher: %s: %v", id, err)
			}
		}
		return nil
	})
}

// addTree registers dir and every non-hidden subdirectory with fsnotify.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watched(path string) bool {
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// articleID maps an absolute path under the root to its article id.
func (w *Watcher) articleID(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// isHiddenPath reports whether any element of path below root is hidden.
func isHiddenPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}
