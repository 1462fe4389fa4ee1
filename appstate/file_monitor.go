package appstate

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// debounceInterval coalesces the burst of filesystem events a single editor
// write produces.
const debounceInterval = 100 * time.Millisecond

// FileMonitor drives lifecycle transitions from a watched file whose content
// is "foreground" or "background". Host tooling toggles the file; the
// monitor broadcasts each change. It is the development stand-in for the
// platform's application-state bridge.
type FileMonitor struct {
	*Broadcaster

	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  zerolog.Logger
}

var _ Source = (*FileMonitor)(nil)

// FileMonitorOption defines a function type to modify the FileMonitor instance.
type FileMonitorOption func(*FileMonitor)

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger zerolog.Logger) FileMonitorOption {
	return func(m *FileMonitor) {
		m.logger = logger
	}
}

// NewFileMonitor watches the given state file. The file's directory must
// exist; the file itself may appear later.
func NewFileMonitor(path string, options ...FileMonitorOption) (*FileMonitor, error) {
	if path == "" {
		return nil, errors.New("[NewFileMonitor] state file path is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileMonitor] creating watcher")
	}
	// Watch the directory so create/rename of the state file is seen too.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "[NewFileMonitor] watching state directory")
	}

	m := &FileMonitor{
		Broadcaster: NewBroadcaster(),
		path:        path,
		watcher:     watcher,
		done:        make(chan struct{}),
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}

	go m.run()
	return m, nil
}

// Close stops the watcher and tears down all subscriptions.
func (m *FileMonitor) Close() error {
	select {
	case <-m.done:
		return nil
	default:
	}
	close(m.done)
	err := m.watcher.Close()
	m.Broadcaster.Close()
	return err
}

func (m *FileMonitor) run() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Name != m.path {
				continue
			}
			if event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				if timer != nil {
					timer.Reset(debounceInterval)
				} else {
					timer = time.NewTimer(debounceInterval)
					fire = timer.C
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn().Err(err).Msg("app state watcher error")
		case <-fire:
			timer = nil
			fire = nil
			m.publishCurrent()
		case <-m.done:
			return
		}
	}
}

func (m *FileMonitor) publishCurrent() {
	content, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", m.path).Msg("reading app state file")
		return
	}

	switch state := State(strings.TrimSpace(string(content))); state {
	case Foreground, Background:
		m.logger.Debug().Str("state", string(state)).Msg("app state changed")
		m.Notify(state)
	default:
		m.logger.Warn().Str("content", string(state)).Msg("unrecognized app state")
	}
}
