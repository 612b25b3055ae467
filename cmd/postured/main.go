// Command postured runs the posture background services: the capture watcher
// and the stream relay, guarded by a single-instance lock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"posture/internal/config"
	"posture/internal/daemon"
	"posture/internal/logging"
	"posture/internal/store"
)

func main() {
	var configPath string
	var user string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&user, "user", "", "override the watched user")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if user != "" {
		cfg.Watch.User = user
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	d, err := daemon.New(cfg, logger, st)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Error("daemon exited", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("postured shutting down")
}
