package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"posture/internal/daemon"
	"posture/internal/testsupport"
)

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, nil, nil); err == nil {
		t.Fatalf("New accepted a nil store")
	}
	if _, err := daemon.New(nil, nil, nil); err == nil {
		t.Fatalf("New accepted a nil config")
	}
}

func TestRunRequiresWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, nil, st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Fatalf("Run succeeded with neither watch.user nor stream enabled")
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Stream.Enabled = true
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, nil, st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	holder := flock.New(d.LockFilePath())
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Run(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Stream.Enabled = true
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, nil, st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
