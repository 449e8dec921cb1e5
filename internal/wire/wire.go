// Package wire assembles the console's components from a Config.
package wire

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/station-console/station/internal/config"
	"github.com/station-console/station/internal/dispatch"
	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/logger"
	"github.com/station-console/station/internal/poller"
	"github.com/station-console/station/internal/rooms"
	"github.com/station-console/station/internal/storage"
)

// Options override pieces of the default assembly.
type Options struct {
	// LogToFile sends logs to cfg.Log.File; otherwise they go to LogOutput
	// (stderr when nil).
	LogToFile bool
	LogOutput io.Writer
	// Slots replaces the SQLite store, mainly for tests.
	Slots      storage.Slots
	HTTPClient *http.Client
	OnStatus   func(poller.State)
}

// App holds the assembled components and the current KeySet.
type App struct {
	Config     *config.Config
	Log        *logrus.Logger
	Slots      storage.Slots
	Keys       *keys.Store
	Dispatcher *dispatch.Dispatcher
	Session    *dispatch.Session
	Rooms      *rooms.Manager
	Poller     *poller.Poller

	mu      sync.RWMutex
	keyset  keys.KeySet
	closers []io.Closer
}

func Build(cfg *config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}

	if opts.LogToFile {
		log, closer, err := logger.NewFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
		if err != nil {
			return nil, err
		}
		app.Log = log
		app.closers = append(app.closers, closer)
	} else {
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		app.Log = logger.New(cfg.Log.Level, cfg.Log.Format, out)
	}

	slots := opts.Slots
	if slots == nil {
		db, err := storage.OpenSQLite(cfg.StorePath())
		if err != nil {
			app.Close()
			return nil, err
		}
		slots = db
		app.closers = append(app.closers, db)
	}
	app.Slots = slots
	app.Keys = keys.NewStore(slots, app.Log)
	app.keyset = app.Keys.Load()

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	base := cfg.ResolveBackendURL(app.Keys.LoadBackendURL(""))
	app.Dispatcher = dispatch.New(base, client, app.Log, dispatch.WithDefaultWorker(cfg.DefaultWorker))
	app.Session = app.Dispatcher.Bind(app.KeySet)

	app.Rooms = rooms.NewManager(
		app.Session,
		rooms.Room{ID: cfg.DefaultRoom, Title: cfg.DefaultRoomTitle},
		rooms.WithLimit(cfg.MessageLimit),
		rooms.WithLogger(app.Log),
	)

	pollOpts := []poller.Option{poller.WithInterval(cfg.PollInterval), poller.WithLogger(app.Log)}
	if opts.OnStatus != nil {
		pollOpts = append(pollOpts, poller.WithOnChange(opts.OnStatus))
	}
	app.Poller = poller.New(poller.StatusProber(app.Session), pollOpts...)

	app.Log.WithFields(logrus.Fields{
		"backend": base,
		"store":   cfg.StorePath(),
	}).Debug("console assembled")
	return app, nil
}

// KeySet returns the current keys.
func (a *App) KeySet() keys.KeySet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keyset
}

// SaveKeySet persists ks and makes it current. On a write failure the
// current set is left unchanged.
func (a *App) SaveKeySet(ks keys.KeySet) error {
	if err := a.Keys.Save(ks); err != nil {
		return err
	}
	a.mu.Lock()
	a.keyset = ks
	a.mu.Unlock()
	return nil
}

// SetBackendURL validates, persists and applies a new backend URL.
func (a *App) SetBackendURL(raw string) (string, error) {
	normalized, err := dispatch.NormalizeBaseURL(raw)
	if err != nil {
		return "", err
	}
	if err := a.Keys.SaveBackendURL(normalized); err != nil {
		return "", err
	}
	a.Dispatcher.SetBaseURL(normalized)
	return normalized, nil
}

// Close stops background work and releases the store and log file.
func (a *App) Close() error {
	if a.Poller != nil {
		a.Poller.Stop()
	}
	if a.Rooms != nil {
		a.Rooms.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
