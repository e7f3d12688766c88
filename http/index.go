package httpx

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5"
)

// IndexFile is the document returned for every route that no static file
// answers. Without a watcher it is read from disk on every Load.
type IndexFile struct {
	fs   billy.Filesystem
	name string

	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	gen     uint64
	cached  bool
	data    []byte
	modTime time.Time
}

func NewIndexFile(fs billy.Filesystem, name string) *IndexFile {
	return &IndexFile{fs: fs, name: name}
}

func (i *IndexFile) Name() string { return i.name }

// Load returns the index body and its modification time.
func (i *IndexFile) Load() ([]byte, time.Time, error) {
	i.mu.RLock()
	if i.cached {
		data, modTime := i.data, i.modTime
		i.mu.RUnlock()
		return data, modTime, nil
	}
	gen, watched := i.gen, i.watcher != nil
	i.mu.RUnlock()

	data, modTime, err := i.read()
	if err != nil {
		return nil, time.Time{}, err
	}

	if watched {
		i.mu.Lock()
		// an invalidation during the read means data may already be stale
		if i.gen == gen {
			i.data, i.modTime, i.cached = data, modTime, true
		}
		i.mu.Unlock()
	}
	return data, modTime, nil
}

func (i *IndexFile) read() ([]byte, time.Time, error) {
	fi, err := i.fs.Stat(i.name)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !fi.Mode().IsRegular() {
		return nil, time.Time{}, fmt.Errorf("index %q is not a regular file", i.name)
	}
	f, err := i.fs.Open(i.name)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, fi.ModTime(), nil
}

// Invalidate drops the cached body so the next Load goes to disk.
func (i *IndexFile) Invalidate() {
	i.mu.Lock()
	i.gen++
	i.cached = false
	i.data = nil
	i.mu.Unlock()
}

// Watch enables caching and invalidates the cache on any change to the file
// at path. The parent directory is watched so that editors replacing the
// file through a rename are noticed too.
func (i *IndexFile) Watch(path string, logger *log.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("index watcher: %w", err)
	}

	i.mu.Lock()
	if i.watcher != nil {
		i.mu.Unlock()
		w.Close()
		return fmt.Errorf("index %q is already watched", path)
	}
	i.watcher = w
	i.gen++
	i.cached = false
	i.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				i.Invalidate()
				if logger != nil {
					logger.Printf("index %s changed (%s), cache dropped", abs, event.Op)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				// the cache may have missed an event
				i.Invalidate()
				if logger != nil {
					logger.Printf("index watcher error: %v", err)
				}
			}
		}
	}()
	return nil
}

// Close stops the watcher, if any. Loads keep working uncached.
func (i *IndexFile) Close() error {
	i.mu.Lock()
	w := i.watcher
	i.watcher = nil
	i.gen++
	i.cached = false
	i.data = nil
	i.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
