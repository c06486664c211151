package rules

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	apperrors "sales-dashboard/internal/errors"
)

// Store serves the current rules snapshot and swaps it on reload.
type Store struct {
	path    string
	current atomic.Pointer[Rules]
	logger  *slog.Logger

	mu        sync.Mutex
	onReload  []func(*Rules)
	onFailure []func(error)
}

// NewStore loads rules from path, or the bundled rules when path is empty.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}

	r, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current.Store(r)
	return s, nil
}

// NewStaticStore wraps already parsed rules.
func NewStaticStore(r *Rules) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(r)
	return s
}

func (s *Store) read() (*Rules, error) {
	if s.path == "" {
		return Default()
	}
	return LoadFile(s.path)
}

func (s *Store) Rules() *Rules {
	return s.current.Load()
}

func (s *Store) Profile(name string) (Profile, error) {
	p, ok := s.Rules().Profile(name)
	if !ok {
		return Profile{}, apperrors.NotFound("unknown profile").WithDetails(name)
	}
	return p, nil
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(*Rules)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// OnReloadFailure registers fn to run when a reload is rejected.
func (s *Store) OnReloadFailure(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = append(s.onFailure, fn)
}

// Reload re-reads the rules file. On error the previous rules stay active.
func (s *Store) Reload() error {
	r, err := s.read()
	if err != nil {
		s.logger.Error("rules reload rejected, keeping previous rules",
			"path", s.path,
			"error", err,
		)
		s.mu.Lock()
		failed := make([]func(error), len(s.onFailure))
		copy(failed, s.onFailure)
		s.mu.Unlock()
		for _, fn := range failed {
			fn(err)
		}
		return err
	}
	s.current.Store(r)

	s.mu.Lock()
	hooks := make([]func(*Rules), len(s.onReload))
	copy(hooks, s.onReload)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(r)
	}

	s.logger.Info("rules reloaded", "path", s.path, "profiles", r.Names())
	return nil
}

// Watch reloads the rules whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					_ = s.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("rules watcher error", "error", err)
			}
		}
	}()

	s.logger.Info("watching rules file", "path", target)
	return nil
}
