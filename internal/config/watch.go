package config

import (
	"context"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/sammck-go/guacgw/internal/obslog"
)

// Store publishes a sequence of immutable *Config snapshots. Every
// access goes through Current(), so configuration is process-wide but
// read-only after start, per snapshot, even though the process as a
// whole can swap in a freshly loaded one.
type Store struct {
	current atomic.Pointer[Config]
	path    string
	logger  obslog.Logger
}

// NewStore loads path once and returns a Store holding that snapshot.
func NewStore(path string, logger obslog.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(cfg)
	return s, nil
}

// Current returns the most recently loaded Config. The returned pointer
// is never mutated; callers may retain it for the lifetime of whatever
// they are doing without re-checking for updates.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Replace atomically swaps in cfg, for CLI-flag overrides applied once
// at startup on top of whatever Load produced.
func (s *Store) Replace(cfg *Config) {
	s.current.Store(cfg)
}

// WatchReload starts a github.com/fsnotify/fsnotify watch on the config
// file (if one was given) and atomically swaps in a freshly parsed
// Config whenever it changes, until ctx is cancelled. Parse failures on
// reload are logged and ignored — the previous good snapshot stays live,
// since an operator mid-edit should not be able to take the gateway's
// configuration down to zero.
func (s *Store) WatchReload(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WLogf("config watch error: %s", err)
			}
		}
	}()
	return nil
}

func (s *Store) reload() {
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.WLogf("config reload of %s failed, keeping previous config: %s", s.path, err)
		return
	}
	s.current.Store(cfg)
	s.logger.ILogf("config reloaded from %s", s.path)
}
