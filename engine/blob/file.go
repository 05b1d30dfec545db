package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/fsnotify/fsnotify"
)

const tmpPrefix = ".tmp-"

// FileStore maps bucket/key to root/bucket/key on the local filesystem.
type FileStore struct {
	root string
	// Debounce coalesces the events of one file written in several steps.
	Debounce time.Duration
	Logger   *slog.Logger
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, Debounce: 200 * time.Millisecond}
}

func (s *FileStore) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// path maps bucket and key below the store root. A bucket is a single path
// element; a key may not be absolute or contain a ".." element.
func (s *FileStore) path(bucket, key string) (string, error) {
	if err := checkBucket(bucket); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || hasDotDot(key) {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(s.root, bucket, clean), nil
}

func checkBucket(bucket string) error {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return fmt.Errorf("blob: invalid bucket %q", bucket)
	}
	return nil
}

func hasDotDot(key string) bool {
	for _, elem := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return true
		}
	}
	return false
}

func (s *FileStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob: get %s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put writes data atomically: readers see either the old or the new object.
// The content type is not persisted.
func (s *FileStore) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Watch reports files created or rewritten under root/bucket, including in
// directories created after the watch started. Hidden files are ignored.
func (s *FileStore) Watch(ctx context.Context, bucket string, fn func(domain.Notification)) error {
	if err := checkBucket(bucket); err != nil {
		return err
	}
	base := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("blob: watch %s: %w", bucket, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("blob: watch %s: %w", bucket, err)
	}
	defer w.Close()

	if err := addTree(w, base, nil); err != nil {
		return fmt.Errorf("blob: watch %s: %w", bucket, err)
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	emit := func(path string) {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return
		}
		key := filepath.ToSlash(rel)
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[key]; ok {
			t.Reset(s.Debounce)
			return
		}
		timers[key] = time.AfterFunc(s.Debounce, func() {
			mu.Lock()
			delete(timers, key)
			mu.Unlock()
			if ctx.Err() == nil {
				fn(created(bucket, key))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log().Warn("blob: watch error", "bucket", bucket, "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// Files may land in a new directory before its watch is added.
				if err := addTree(w, ev.Name, emit); err != nil {
					s.log().Warn("blob: watch subdir", "dir", ev.Name, "err", err)
				}
				continue
			}
			emit(ev.Name)
		}
	}
}

// addTree watches root and every directory below it. When onFile is set it
// is called for each visible file found.
func addTree(w *fsnotify.Watcher, root string, onFile func(string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		if onFile != nil && !strings.HasPrefix(d.Name(), ".") {
			onFile(p)
		}
		return nil
	})
}
