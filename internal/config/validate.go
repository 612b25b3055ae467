package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.TrainDir == "" {
		return errors.New("paths.train_dir must be set")
	}
	if c.Paths.BaseReference == "" {
		return errors.New("paths.base_reference must be set")
	}
	if c.Paths.ProfilesDir == "" {
		return errors.New("paths.profiles_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.ConfidenceThreshold < 0 || c.Analysis.ConfidenceThreshold > 1 {
		return errors.New("analysis.confidence_threshold must be between 0 and 1")
	}
	if c.Analysis.NeighborCount < 1 {
		return errors.New("analysis.neighbor_count must be at least 1")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.PollInterval < 1 {
		return errors.New("watch.poll_interval must be at least 1 second")
	}
	if c.Watch.ErrorRetryInterval < 1 {
		return errors.New("watch.error_retry_interval must be at least 1 second")
	}
	return nil
}

func (c *Config) validateStream() error {
	if !c.Stream.Enabled {
		return nil
	}
	if c.Stream.Bind == "" {
		return errors.New("stream.bind must be set when stream.enabled is true")
	}
	if c.Stream.FrameIntervalMillis < 1 {
		return errors.New("stream.frame_interval_millis must be at least 1")
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker must be set when mqtt.enabled is true")
	}
	if c.MQTT.Topic == "" {
		return errors.New("mqtt.topic must be set when mqtt.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
