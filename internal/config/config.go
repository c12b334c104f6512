package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Provision   ProvisionConfig  `yaml:"provision"`
	Stream      StreamConfig     `yaml:"stream"`
	Audio       AudioConfig      `yaml:"audio"`
	Interview   InterviewConfig  `yaml:"interview"`
	Generate    GenerateConfig   `yaml:"generate"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Feedback    FeedbackConfig   `yaml:"feedback"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// ProvisionConfig describes the session provisioning call made once per
// interview attempt.
type ProvisionConfig struct {
	Endpoint              string  `yaml:"endpoint"`
	Voice                 string  `yaml:"voice"`
	Locale                string  `yaml:"locale"`
	SpeakingRate          float64 `yaml:"speaking_rate"`
	Tone                  string  `yaml:"tone"`
	NoiseSuppression      bool    `yaml:"noise_suppression"`
	EchoCancellation      bool    `yaml:"echo_cancellation"`
	InterruptionDetection bool    `yaml:"interruption_detection"`
	SampleRate            int     `yaml:"sample_rate"`
	TimeoutMS             int     `yaml:"timeout_ms"`
}

// StreamConfig controls the websocket stream to the speech service,
// including the reconnect policy.
type StreamConfig struct {
	ProtocolVersion    string  `yaml:"protocol_version"`
	Deployment         string  `yaml:"deployment"`
	HandshakeTimeoutMS int     `yaml:"handshake_timeout_ms"`
	WriteTimeoutMS     int     `yaml:"write_timeout_ms"`
	BaseRetryDelayMS   int     `yaml:"base_retry_delay_ms"`
	BackoffFactor      float64 `yaml:"backoff_factor"`
	MaxRetryDelayMS    int     `yaml:"max_retry_delay_ms"`
	RetryJitterMS      int     `yaml:"retry_jitter_ms"`
	MaxRetries         int     `yaml:"max_retries"`
}

type AudioConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	CaptureCommand  string `yaml:"capture_command"`
	PlaybackCommand string `yaml:"playback_command"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	LevelIntervalMS int    `yaml:"level_interval_ms"`
	SilenceRMS      int    `yaml:"silence_rms"`
	SilenceWindowMS int    `yaml:"silence_window_ms"`
	MaxRecordingMS  int    `yaml:"max_recording_ms"`
}

type InterviewConfig struct {
	Type                string `yaml:"type"`
	Position            string `yaml:"position"`
	Company             string `yaml:"company"`
	Difficulty          string `yaml:"difficulty"`
	DefaultMaxQuestions int    `yaml:"default_max_questions"`
	MinQuestions        int    `yaml:"min_questions"`
	MaxQuestions        int    `yaml:"max_questions"`
}

type GenerateConfig struct {
	Mode        string  `yaml:"mode"` // mock, http
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type FeedbackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxprep-engine",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Provision: ProvisionConfig{
			Endpoint:              "http://localhost:8090/v1/sessions",
			Voice:                 "alloy",
			Locale:                "en-US",
			SpeakingRate:          1.0,
			Tone:                  "professional",
			NoiseSuppression:      true,
			EchoCancellation:      true,
			InterruptionDetection: true,
			SampleRate:            16000,
			TimeoutMS:             10000,
		},
		Stream: StreamConfig{
			ProtocolVersion:    "2024-10-01",
			Deployment:         "default",
			HandshakeTimeoutMS: 15000,
			WriteTimeoutMS:     5000,
			BaseRetryDelayMS:   1000,
			BackoffFactor:      2.0,
			MaxRetryDelayMS:    30000,
			RetryJitterMS:      1000,
			MaxRetries:         5,
		},
		Audio: AudioConfig{
			Mode:            "mock",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
			LevelIntervalMS: 100,
			SilenceRMS:      500,
			SilenceWindowMS: 2000,
			MaxRecordingMS:  30000,
		},
		Interview: InterviewConfig{
			Type:                "technical",
			Difficulty:          "mid",
			DefaultMaxQuestions: 10,
			MinQuestions:        5,
			MaxQuestions:        20,
		},
		Generate: GenerateConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   256,
			Temperature: 0.7,
			TimeoutMS:   30000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voxprep-sessions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Feedback: FeedbackConfig{
			Enabled:   false,
			Endpoint:  "http://localhost:8091/v1/feedback",
			TimeoutMS: 10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXPREP_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXPREP_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXPREP_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXPREP_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXPREP_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXPREP_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXPREP_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXPREP_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOXPREP_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXPREP_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXPREP_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXPREP_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXPREP_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXPREP_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXPREP_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXPREP_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXPREP_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Provision.Endpoint, "VOXPREP_PROVISION_ENDPOINT")
	overrideString(&cfg.Provision.Voice, "VOXPREP_PROVISION_VOICE")
	overrideString(&cfg.Provision.Locale, "VOXPREP_PROVISION_LOCALE")
	overrideFloat(&cfg.Provision.SpeakingRate, "VOXPREP_PROVISION_SPEAKING_RATE")
	overrideString(&cfg.Provision.Tone, "VOXPREP_PROVISION_TONE")
	overrideBool(&cfg.Provision.NoiseSuppression, "VOXPREP_PROVISION_NOISE_SUPPRESSION")
	overrideBool(&cfg.Provision.EchoCancellation, "VOXPREP_PROVISION_ECHO_CANCELLATION")
	overrideBool(&cfg.Provision.InterruptionDetection, "VOXPREP_PROVISION_INTERRUPTION_DETECTION")
	overrideInt(&cfg.Provision.SampleRate, "VOXPREP_PROVISION_SAMPLE_RATE")
	overrideInt(&cfg.Provision.TimeoutMS, "VOXPREP_PROVISION_TIMEOUT_MS")
	overrideString(&cfg.Stream.ProtocolVersion, "VOXPREP_STREAM_PROTOCOL_VERSION")
	overrideString(&cfg.Stream.Deployment, "VOXPREP_STREAM_DEPLOYMENT")
	overrideInt(&cfg.Stream.HandshakeTimeoutMS, "VOXPREP_STREAM_HANDSHAKE_TIMEOUT_MS")
	overrideInt(&cfg.Stream.WriteTimeoutMS, "VOXPREP_STREAM_WRITE_TIMEOUT_MS")
	overrideInt(&cfg.Stream.BaseRetryDelayMS, "VOXPREP_STREAM_BASE_RETRY_DELAY_MS")
	overrideFloat(&cfg.Stream.BackoffFactor, "VOXPREP_STREAM_BACKOFF_FACTOR")
	overrideInt(&cfg.Stream.MaxRetryDelayMS, "VOXPREP_STREAM_MAX_RETRY_DELAY_MS")
	overrideInt(&cfg.Stream.RetryJitterMS, "VOXPREP_STREAM_RETRY_JITTER_MS")
	overrideInt(&cfg.Stream.MaxRetries, "VOXPREP_STREAM_MAX_RETRIES")
	overrideString(&cfg.Audio.Mode, "VOXPREP_AUDIO_MODE")
	overrideString(&cfg.Audio.CaptureCommand, "VOXPREP_AUDIO_CAPTURE_COMMAND")
	overrideString(&cfg.Audio.PlaybackCommand, "VOXPREP_AUDIO_PLAYBACK_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "VOXPREP_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "VOXPREP_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "VOXPREP_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.Audio.LevelIntervalMS, "VOXPREP_AUDIO_LEVEL_INTERVAL_MS")
	overrideInt(&cfg.Audio.SilenceRMS, "VOXPREP_AUDIO_SILENCE_RMS")
	overrideInt(&cfg.Audio.SilenceWindowMS, "VOXPREP_AUDIO_SILENCE_WINDOW_MS")
	overrideInt(&cfg.Audio.MaxRecordingMS, "VOXPREP_AUDIO_MAX_RECORDING_MS")
	overrideString(&cfg.Interview.Type, "VOXPREP_INTERVIEW_TYPE")
	overrideString(&cfg.Interview.Position, "VOXPREP_INTERVIEW_POSITION")
	overrideString(&cfg.Interview.Company, "VOXPREP_INTERVIEW_COMPANY")
	overrideString(&cfg.Interview.Difficulty, "VOXPREP_INTERVIEW_DIFFICULTY")
	overrideInt(&cfg.Interview.DefaultMaxQuestions, "VOXPREP_INTERVIEW_DEFAULT_MAX_QUESTIONS")
	overrideInt(&cfg.Interview.MinQuestions, "VOXPREP_INTERVIEW_MIN_QUESTIONS")
	overrideInt(&cfg.Interview.MaxQuestions, "VOXPREP_INTERVIEW_MAX_QUESTIONS")
	overrideString(&cfg.Generate.Mode, "VOXPREP_GENERATE_MODE")
	overrideString(&cfg.Generate.Endpoint, "VOXPREP_GENERATE_ENDPOINT")
	overrideString(&cfg.Generate.Model, "VOXPREP_GENERATE_MODEL")
	overrideInt(&cfg.Generate.MaxTokens, "VOXPREP_GENERATE_MAX_TOKENS")
	overrideFloat(&cfg.Generate.Temperature, "VOXPREP_GENERATE_TEMPERATURE")
	overrideInt(&cfg.Generate.TimeoutMS, "VOXPREP_GENERATE_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOXPREP_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOXPREP_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOXPREP_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOXPREP_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOXPREP_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Feedback.Enabled, "VOXPREP_FEEDBACK_ENABLED")
	overrideString(&cfg.Feedback.Endpoint, "VOXPREP_FEEDBACK_ENDPOINT")
	overrideInt(&cfg.Feedback.TimeoutMS, "VOXPREP_FEEDBACK_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Provision.Endpoint == "" {
		return errors.New("provision.endpoint must not be empty")
	}
	if cfg.Provision.SampleRate <= 0 {
		return errors.New("provision.sample_rate must be positive")
	}
	if cfg.Provision.SpeakingRate <= 0 || cfg.Provision.SpeakingRate > 4 {
		return errors.New("provision.speaking_rate must be in (0, 4]")
	}
	if cfg.Stream.BaseRetryDelayMS <= 0 {
		return errors.New("stream.base_retry_delay_ms must be positive")
	}
	if cfg.Stream.BackoffFactor < 1 {
		return errors.New("stream.backoff_factor must be >= 1")
	}
	if cfg.Stream.MaxRetryDelayMS < cfg.Stream.BaseRetryDelayMS {
		return errors.New("stream.max_retry_delay_ms must be >= base_retry_delay_ms")
	}
	if cfg.Stream.RetryJitterMS < 0 {
		return errors.New("stream.retry_jitter_ms must be >= 0")
	}
	if cfg.Stream.MaxRetries < 0 {
		return errors.New("stream.max_retries must be >= 0")
	}
	switch cfg.Audio.Mode {
	case "mock", "exec":
	default:
		return errors.New("audio.mode must be one of mock|exec")
	}
	if cfg.Audio.Mode == "exec" && cfg.Audio.CaptureCommand == "" {
		return errors.New("audio.capture_command must be set when mode=exec")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	if cfg.Audio.SilenceWindowMS <= 0 {
		return errors.New("audio.silence_window_ms must be positive")
	}
	if cfg.Audio.MaxRecordingMS <= cfg.Audio.SilenceWindowMS {
		return errors.New("audio.max_recording_ms must be greater than silence_window_ms")
	}
	if cfg.Interview.MinQuestions <= 0 {
		return errors.New("interview.min_questions must be positive")
	}
	if cfg.Interview.MaxQuestions < cfg.Interview.MinQuestions {
		return errors.New("interview.max_questions must be >= min_questions")
	}
	if cfg.Interview.DefaultMaxQuestions < cfg.Interview.MinQuestions ||
		cfg.Interview.DefaultMaxQuestions > cfg.Interview.MaxQuestions {
		return errors.New("interview.default_max_questions must fall within [min_questions, max_questions]")
	}
	switch cfg.Generate.Mode {
	case "mock", "http":
	default:
		return errors.New("generate.mode must be one of mock|http")
	}
	if cfg.Generate.Mode == "http" && cfg.Generate.Endpoint == "" {
		return errors.New("generate.endpoint must be set when mode=http")
	}
	if cfg.Generate.MaxTokens < 0 {
		return errors.New("generate.max_tokens must be >= 0")
	}
	if cfg.Generate.Temperature < 0 || cfg.Generate.Temperature > 2 {
		return errors.New("generate.temperature must be in [0, 2]")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Feedback.Enabled && cfg.Feedback.Endpoint == "" {
		return errors.New("feedback.endpoint must not be empty when feedback is enabled")
	}
	return nil
}
