package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadNotifier is called after a successful hot-reload with the new
// snapshot. The Store calls it synchronously from its watch goroutine, so
// further file events wait until it returns; keep it fast.
type ReloadNotifier func(*Snapshot)

// Store publishes the current configuration snapshot and hot-reloads it
// from a watched file.
type Store struct {
	path string
	snap atomic.Pointer[Snapshot]
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{log: log.With().Str("component", "config").Logger()}
}

// Load reads and validates the file at path, and on success makes it the
// current snapshot. It may be called once at startup and again on reload.
func (s *Store) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileReadErr(path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		if de, ok := err.(toml.ParseError); ok {
			return nil, parseErr(path, de.Line, 0, err)
		}
		return nil, parseErr(path, 0, 0, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, validateErr(path, "unknown fields: "+keysToString(undec))
	}

	cfg.applyDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}

	snap := newSnapshot(&cfg, path)
	s.snap.Store(snap)
	s.path = path
	return snap, nil
}

// Current returns the latest published snapshot in constant time. Callers
// must Load successfully at least once before calling Current.
func (s *Store) Current() *Snapshot {
	return s.snap.Load()
}

// StartWatch begins watching parentDir for changes to the config file and
// debounces reloads. Surviving atomic-rename editor saves is why the
// parent directory is watched instead of the file itself: a rename
// replaces the inode the file watcher would otherwise have followed.
func (s *Store) StartWatch(parentDir string, debounce time.Duration, notify ReloadNotifier) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(parentDir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.done = make(chan struct{})

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	go s.watchLoop(debounce, notify)
	return nil
}

func (s *Store) watchLoop(debounce time.Duration, notify ReloadNotifier) {
	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Clean(s.path)

	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			snap, err := s.Load(s.path)
			if err != nil {
				s.log.Warn().Err(err).Msg("config reload failed, retaining previous snapshot")
				continue
			}
			s.log.Info().Time("loaded_at", snap.LoadedAt()).Msg("config reloaded")
			if notify != nil {
				notify(snap)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("config watcher error")

		case <-s.done:
			return
		}
	}
}

// StopWatch stops the file watcher, if running. Safe to call even if
// StartWatch was never called.
func (s *Store) StopWatch() {
	if s.watcher == nil {
		return
	}
	close(s.done)
	s.watcher.Close()
}

func keysToString(keys []toml.Key) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k.String()
	}
	return out
}
