package imagehost

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalHost keeps images on disk under a base directory; the HTTP server
// serves that directory at publicURL.
type LocalHost struct {
	baseDir   string
	publicURL string
}

func NewLocalHost(baseDir, publicURL string) (*LocalHost, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalHost{baseDir: baseDir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir is the directory images are written to.
func (h *LocalHost) Dir() string { return h.baseDir }

func (h *LocalHost) Upload(_ context.Context, kind string, img Image) (string, error) {
	key := objectKey(kind, img.Ext, time.Now())
	full := filepath.Join(h.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, img.Data, 0o644); err != nil {
		return "", err
	}
	return h.publicURL + "/" + key, nil
}

func (h *LocalHost) Destroy(_ context.Context, url string) error {
	key, ok := keyFromURL(h.publicURL, url)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(h.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns the public URL of every stored image, sorted.
func (h *LocalHost) List() ([]string, error) {
	var urls []string
	err := filepath.WalkDir(h.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(h.baseDir, path)
		if err != nil {
			return err
		}
		urls = append(urls, h.publicURL+"/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(urls)
	return urls, nil
}
