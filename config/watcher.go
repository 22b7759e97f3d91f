package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/utils"
)

// DefaultSettleTime is how long a config file must stay unchanged before it is re-read.
const DefaultSettleTime = 100 * time.Millisecond

// A Watcher re-reads a config file whenever it changes on disk. Bursts of writes, as editors
// produce when saving, are coalesced into one read.
type Watcher struct {
	path     string
	logger   logging.Logger
	fsw      *fsnotify.Watcher
	debounce func(func())
	changed  chan struct{}
	configs  chan *Config
	workers  utils.StoppableWorkers
}

// NewWatcher starts watching filePath. The directory is watched rather than the file so that
// editors that replace the file by renaming are noticed.
func NewWatcher(filePath string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "watching %s", filepath.Dir(abs)), fsw.Close())
	}
	w := &Watcher{
		path:     abs,
		logger:   logger,
		fsw:      fsw,
		debounce: debounce.New(DefaultSettleTime),
		changed:  make(chan struct{}, 1),
		configs:  make(chan *Config),
	}
	w.workers = utils.NewStoppableWorkers(w.watch, w.reload)
	return w, nil
}

// Config delivers each new valid config. A file that fails to parse or validate is logged and
// skipped.
func (w *Watcher) Config() <-chan *Config {
	return w.configs
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.debounce(w.notify)
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

func (w *Watcher) reload(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.changed:
			cfg, err := Read(w.path, w.logger)
			if err != nil {
				w.logger.Warnw("ignoring config change", "path", w.path, "error", err)
				continue
			}
			select {
			case w.configs <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.workers.Stop()
	return w.fsw.Close()
}
