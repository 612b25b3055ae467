// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, capture payload builders, and store helpers.
package testsupport

import (
	"path/filepath"
	"testing"

	"posture/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.TrainDir = filepath.Join(base, "train")
	cfg.Paths.BaseReference = filepath.Join(base, "train", "reference_posture.json")
	cfg.Paths.ProfilesDir = filepath.Join(base, "profiles")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Stream.Bind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWatchUser sets the watched user on the test config.
func WithWatchUser(user string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Watch.User = user
	}
}

// WithNeighbors overrides the classifier neighbor count.
func WithNeighbors(k int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Analysis.NeighborCount = k
	}
}
