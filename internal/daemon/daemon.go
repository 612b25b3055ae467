// Package daemon ties the watcher, the stream relay, and the event publisher
// into a single lifecycle with flock-based locking to prevent multiple
// concurrent instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"posture/internal/config"
	"posture/internal/detector"
	"posture/internal/logging"
	"posture/internal/notify"
	"posture/internal/store"
	"posture/internal/stream"
	"posture/internal/watch"
)

// ErrAlreadyRunning means another daemon holds the lock file.
var ErrAlreadyRunning = errors.New("another postured instance is already running")

// Daemon coordinates the background services.
type Daemon struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store

	lockPath string
	lock     *flock.Flock
	hub      *stream.Hub
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, st *store.Store) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "postured.lock")
	return &Daemon{
		cfg:      cfg,
		log:      logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    st,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockFilePath returns the single-instance lock location.
func (d *Daemon) LockFilePath() string { return d.lockPath }

// Hub returns the status hub shared by the watcher and the stream relay.
func (d *Daemon) Hub() *stream.Hub { return d.hub }

// Run acquires the instance lock and serves until the context is canceled or
// a service fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Watch.User == "" && !d.cfg.Stream.Enabled {
		return errors.New("daemon has nothing to run: set watch.user or enable the stream relay")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.log.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	publisher, err := notify.New(d.cfg, d.log)
	if err != nil {
		d.log.Warn("event publisher unavailable", logging.Error(err))
		publisher = notify.Nop()
	}
	defer publisher.Close()

	d.hub = stream.NewHub()

	errCh := make(chan error, 2)
	services := 0

	if d.cfg.Stream.Enabled {
		server := stream.NewServer(d.cfg.Stream, d.hub, d.log)
		services++
		go func() {
			errCh <- server.Run(runCtx)
		}()
	}

	if d.cfg.Watch.User != "" {
		session, err := detector.NewSession(d.cfg, d.log, d.store, d.cfg.Watch.User)
		if err != nil {
			return err
		}
		watcher := watch.New(d.cfg, session, d.hub, publisher, d.log)
		services++
		go func() {
			errCh <- watcher.Run(runCtx)
		}()
	}

	d.log.Info("postured started", logging.String("lock", d.lockPath))

	var firstErr error
	for i := 0; i < services; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	d.log.Info("postured stopped")
	return firstErr
}
