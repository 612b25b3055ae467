package config

const (
	defaultTrainDir            = "~/.local/share/posture/train"
	defaultBaseReference       = "~/.local/share/posture/train/reference_posture.json"
	defaultProfilesDir         = "~/.local/share/posture/user_profiles"
	defaultLogDir              = "~/.local/share/posture/logs"
	defaultConfidenceThreshold = 0.75
	defaultNeighborCount       = 5
	defaultPollInterval        = 1
	defaultErrorRetryInterval  = 10
	defaultStreamBind          = "0.0.0.0:5000"
	defaultFrameIntervalMillis = 33
	defaultMQTTBroker          = "tcp://localhost:1883"
	defaultMQTTClientID        = "posture-watcher"
	defaultMQTTTopic           = "posture/events"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TrainDir:      defaultTrainDir,
			BaseReference: defaultBaseReference,
			ProfilesDir:   defaultProfilesDir,
			LogDir:        defaultLogDir,
		},
		Analysis: Analysis{
			ConfidenceThreshold: defaultConfidenceThreshold,
			NeighborCount:       defaultNeighborCount,
		},
		Watch: Watch{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Stream: Stream{
			Bind:                defaultStreamBind,
			FrameIntervalMillis: defaultFrameIntervalMillis,
		},
		MQTT: MQTT{
			Broker:   defaultMQTTBroker,
			ClientID: defaultMQTTClientID,
			Topic:    defaultMQTTTopic,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
