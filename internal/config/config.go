package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for capture data and profiles.
type Paths struct {
	TrainDir      string `toml:"train_dir"`
	BaseReference string `toml:"base_reference"`
	ProfilesDir   string `toml:"profiles_dir"`
	LogDir        string `toml:"log_dir"`
}

// Analysis contains thresholds for keypoint-based angle extraction.
type Analysis struct {
	// ConfidenceThreshold is the minimum keypoint confidence required for
	// geometric angle extraction. Keypoints below it are treated as missing.
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	// NeighborCount is the k used by the deviation classifier.
	NeighborCount int `toml:"neighbor_count"`
}

// Watch contains configuration for the capture folder watcher.
type Watch struct {
	User                string `toml:"user"`
	PollInterval        int    `toml:"poll_interval"`
	ErrorRetryInterval  int    `toml:"error_retry_interval"`
	IncrementalTraining bool   `toml:"incremental_training"`
}

// Stream contains configuration for the MJPEG frame relay.
type Stream struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	// FrameIntervalMillis throttles the MJPEG feed; 33 approximates 30 FPS.
	FrameIntervalMillis int `toml:"frame_interval_millis"`
}

// MQTT contains configuration for posture event publishing.
type MQTT struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the posture engine.
//
// Configuration sections by subsystem:
//   - Paths: training corpus, baseline reference, profile root, log directory
//   - Analysis: keypoint confidence threshold and classifier neighbors
//   - Watch: capture folder polling for live prediction
//   - Stream: MJPEG frame relay server
//   - MQTT: posture event publishing
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Analysis Analysis `toml:"analysis"`
	Watch    Watch    `toml:"watch"`
	Stream   Stream   `toml:"stream"`
	MQTT     MQTT     `toml:"mqtt"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/posture/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("posture.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	pathFields := []struct {
		name  string
		value *string
	}{
		{"paths.train_dir", &c.Paths.TrainDir},
		{"paths.base_reference", &c.Paths.BaseReference},
		{"paths.profiles_dir", &c.Paths.ProfilesDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range pathFields {
		if strings.TrimSpace(*field.value) == "" {
			continue
		}
		expanded, err := expandPath(*field.value)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", field.name, err)
		}
		*field.value = expanded
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Watch.User = strings.TrimSpace(c.Watch.User)
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	c.MQTT.Topic = strings.TrimSpace(c.MQTT.Topic)
	return nil
}

// EnsureDirectories creates required directories for engine operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TrainDir, c.Paths.ProfilesDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
