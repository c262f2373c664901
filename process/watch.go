// Package process holds the offline image jobs: publishing files dropped into
// a folder and finding uploads nothing refers to.
package process

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"sosmed/pkg/imagehost"
)

const (
	// a file is published once it saw no events for this long
	stableAfter = 300 * time.Millisecond
	pollEvery   = 100 * time.Millisecond
)

// PublishFunc handles one stable file.
type PublishFunc func(ctx context.Context, path string) error

// IsSupportedExt reports whether name is an image the publisher handles.
// Hidden and editor temp files are skipped.
func IsSupportedExt(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	_, ok := imagehost.ContentTypeForFile(base)
	return ok
}

// Scan lists the supported files already present in dir, sorted by name.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Watch calls publish for every supported file created in dir, once the file
// has been quiet for stableAfter. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, logger *slog.Logger, publish PublishFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.InfoContext(ctx, "watching folder", slog.String("dir", dir))

	pending := map[string]time.Time{}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !IsSupportedExt(ev.Name) {
				continue
			}
			_, seen := pending[ev.Name]
			switch {
			case ev.Op&fsnotify.Create == fsnotify.Create:
				pending[ev.Name] = time.Now()
			case ev.Op&fsnotify.Write == fsnotify.Write && seen:
				pending[ev.Name] = time.Now()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}
		case <-ticker.C:
			for _, path := range stable(pending, time.Now()) {
				delete(pending, path)
				if err := publish(ctx, path); err != nil {
					logger.WarnContext(ctx, "publish failed", slog.String("file", path), slog.Any("error", err))
					continue
				}
				logger.InfoContext(ctx, "published", slog.String("file", path))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "watch error", slog.Any("error", err))
		}
	}
}

func stable(pending map[string]time.Time, now time.Time) []string {
	var ready []string
	for path, t := range pending {
		if now.Sub(t) >= stableAfter {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}
