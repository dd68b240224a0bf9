package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultFileQuota mirrors the 1 MiB limit cloud key-value stores impose.
const DefaultFileQuota = 1 << 20

// FileStore is a remote store backed by files in a cloud-synced directory
// (iCloud Drive, Dropbox, Syncthing...). Each key is one file; the syncing
// agent carries writes across devices and the watcher reports writes that
// arrive from other devices.
type FileStore struct {
	dir   string
	quota int64

	mu      sync.Mutex
	ownMod  map[string]time.Time // mtimes of our own writes, to skip self-notifications
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
}

// OpenFile creates the directory if needed and starts watching it. A quota
// of 0 applies DefaultFileQuota; a negative quota disables the limit.
func OpenFile(dir string, quota int64) (*FileStore, error) {
	if quota == 0 {
		quota = DefaultFileQuota
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &FileStore{
		dir:     dir,
		quota:   quota,
		ownMod:  make(map[string]time.Time),
		watcher: watcher,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.watch()
	return s, nil
}

// Changes implements Watcher.
func (s *FileStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *FileStore) watch() {
	defer close(s.changes)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if s.isOwnWrite(ev.Name) {
				continue
			}
			// Coalesce; a pending signal covers any number of events.
			select {
			case s.changes <- struct{}{}:
			default:
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *FileStore) isOwnWrite(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	own, ok := s.ownMod[filepath.Base(path)]
	return ok && !info.ModTime().After(own)
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set writes the value atomically (temp file + rename). Writes that would
// push the total store size past the quota fail with ErrCapacity.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if s.quota > 0 {
		used, err := s.usedExcept(key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > s.quota {
			return fmt.Errorf("write %s (%d bytes): %w", key, len(value), ErrCapacity)
		}
	}

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	// Record the mtime before the rename lands; rename preserves it, and
	// the watcher must already know this write is ours when its event
	// arrives.
	if info, err := os.Stat(tmp); err == nil {
		s.mu.Lock()
		s.ownMod[filepath.Base(target)] = info.ModTime()
		s.mu.Unlock()
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) usedExcept(key string) (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read store dir: %w", err)
	}
	var used int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name() == key+".json" {
			continue
		}
		if info, err := e.Info(); err == nil {
			used += info.Size()
		}
	}
	return used, nil
}

func (s *FileStore) Close() error {
	close(s.done)
	return s.watcher.Close()
}
