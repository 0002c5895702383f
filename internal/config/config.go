package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parlalabs/parla-core/internal/languages"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type RecognitionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	DefaultLanguage string `yaml:"default_language"`
	InterimResults  bool   `yaml:"interim_results"`
}

type TranslationConfig struct {
	Mode          string `yaml:"mode"` // http, mock
	Endpoint      string `yaml:"endpoint"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	DefaultTarget string `yaml:"default_target"`
}

type SpeechConfig struct {
	Enabled bool    `yaml:"enabled"`
	Mode    string  `yaml:"mode"` // mock, exec
	Command string  `yaml:"command"`
	Rate    float64 `yaml:"rate"`
	Pitch   float64 `yaml:"pitch"`
}

type ClipboardConfig struct {
	Command string `yaml:"command"`
}

type TimelineConfig struct {
	Path             string `yaml:"path"`
	RetentionMode    string `yaml:"retention_mode"`
	MaxConversations int    `yaml:"max_conversations"`
}

type GatewayConfig struct {
	Path           string `yaml:"path"`
	AllowAnyOrigin bool   `yaml:"allow_any_origin"`
}

type CapabilityConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout_ms"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Translation TranslationConfig `yaml:"translation"`
	Speech      SpeechConfig      `yaml:"speech"`
	Clipboard   ClipboardConfig   `yaml:"clipboard"`
	Timeline    TimelineConfig    `yaml:"timeline"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Capability  CapabilityConfig  `yaml:"capability"`
}

func Default() Config {
	return Config{
		RuntimeName: "parla-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Recognition: RecognitionConfig{
			Enabled:         true,
			Mode:            "mock",
			DefaultLanguage: "th",
			InterimResults:  true,
		},
		Translation: TranslationConfig{
			Mode:          "http",
			Endpoint:      "https://api.mymemory.translated.net/get",
			TimeoutMS:     10000,
			DefaultTarget: "en",
		},
		Speech: SpeechConfig{
			Enabled: true,
			Mode:    "mock",
			Rate:    0.8,
			Pitch:   1.0,
		},
		Timeline: TimelineConfig{
			Path:             "./data/parla-timeline.db",
			RetentionMode:    "ephemeral",
			MaxConversations: 1000,
		},
		Gateway: GatewayConfig{
			Path:           "/ws",
			AllowAnyOrigin: true,
		},
		Capability: CapabilityConfig{
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
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
	overrideString(&cfg.RuntimeName, "PARLA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PARLA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PARLA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PARLA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PARLA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PARLA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PARLA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "PARLA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PARLA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PARLA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PARLA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PARLA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PARLA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PARLA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PARLA_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Recognition.Enabled, "PARLA_RECOGNITION_ENABLED")
	overrideString(&cfg.Recognition.Mode, "PARLA_RECOGNITION_MODE")
	overrideString(&cfg.Recognition.Command, "PARLA_RECOGNITION_COMMAND")
	overrideString(&cfg.Recognition.DefaultLanguage, "PARLA_RECOGNITION_DEFAULT_LANGUAGE")
	overrideBool(&cfg.Recognition.InterimResults, "PARLA_RECOGNITION_INTERIM_RESULTS")
	overrideString(&cfg.Translation.Mode, "PARLA_TRANSLATION_MODE")
	overrideString(&cfg.Translation.Endpoint, "PARLA_TRANSLATION_ENDPOINT")
	overrideInt(&cfg.Translation.TimeoutMS, "PARLA_TRANSLATION_TIMEOUT_MS")
	overrideString(&cfg.Translation.DefaultTarget, "PARLA_TRANSLATION_DEFAULT_TARGET")
	overrideBool(&cfg.Speech.Enabled, "PARLA_SPEECH_ENABLED")
	overrideString(&cfg.Speech.Mode, "PARLA_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "PARLA_SPEECH_COMMAND")
	overrideFloat(&cfg.Speech.Rate, "PARLA_SPEECH_RATE")
	overrideFloat(&cfg.Speech.Pitch, "PARLA_SPEECH_PITCH")
	overrideString(&cfg.Clipboard.Command, "PARLA_CLIPBOARD_COMMAND")
	overrideString(&cfg.Timeline.Path, "PARLA_TIMELINE_PATH")
	overrideString(&cfg.Timeline.RetentionMode, "PARLA_TIMELINE_RETENTION_MODE")
	overrideInt(&cfg.Timeline.MaxConversations, "PARLA_TIMELINE_MAX_CONVERSATIONS")
	overrideString(&cfg.Gateway.Path, "PARLA_GATEWAY_PATH")
	overrideBool(&cfg.Gateway.AllowAnyOrigin, "PARLA_GATEWAY_ALLOW_ANY_ORIGIN")
	overrideInt(&cfg.Capability.HeartbeatInterval, "PARLA_CAPABILITY_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Capability.HeartbeatTimeout, "PARLA_CAPABILITY_HEARTBEAT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Recognition.Enabled {
		switch cfg.Recognition.Mode {
		case "mock", "exec":
		default:
			return errors.New("recognition.mode must be one of mock|exec")
		}
		if cfg.Recognition.Mode == "exec" && cfg.Recognition.Command == "" {
			return errors.New("recognition.command must be set when mode=exec")
		}
		if !languages.IsSupported(cfg.Recognition.DefaultLanguage) {
			return fmt.Errorf("recognition.default_language %q is not a supported language code", cfg.Recognition.DefaultLanguage)
		}
	}
	switch cfg.Translation.Mode {
	case "http", "mock":
	default:
		return errors.New("translation.mode must be one of http|mock")
	}
	if cfg.Translation.Mode == "http" && cfg.Translation.Endpoint == "" {
		return errors.New("translation.endpoint must be set when mode=http")
	}
	if cfg.Translation.TimeoutMS <= 0 {
		return errors.New("translation.timeout_ms must be positive")
	}
	if !languages.IsSupported(cfg.Translation.DefaultTarget) {
		return fmt.Errorf("translation.default_target %q is not a supported language code", cfg.Translation.DefaultTarget)
	}
	if cfg.Speech.Enabled {
		switch cfg.Speech.Mode {
		case "mock", "exec":
		default:
			return errors.New("speech.mode must be one of mock|exec")
		}
		if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
		if cfg.Speech.Rate <= 0 {
			return errors.New("speech.rate must be positive")
		}
		if cfg.Speech.Pitch <= 0 {
			return errors.New("speech.pitch must be positive")
		}
	}
	switch cfg.Timeline.RetentionMode {
	case "ephemeral", "session":
		// ok
	default:
		return errors.New("timeline.retention_mode must be one of ephemeral|session")
	}
	if cfg.Timeline.RetentionMode != "ephemeral" && cfg.Timeline.Path == "" {
		return errors.New("timeline.path must not be empty when retention is enabled")
	}
	if cfg.Timeline.MaxConversations < 0 {
		return errors.New("timeline.max_conversations must be >= 0")
	}
	if cfg.Gateway.Path == "" || !strings.HasPrefix(cfg.Gateway.Path, "/") {
		return errors.New("gateway.path must start with /")
	}
	if cfg.Capability.HeartbeatInterval <= 0 {
		return errors.New("capability.heartbeat_interval_ms must be positive")
	}
	if cfg.Capability.HeartbeatTimeout <= cfg.Capability.HeartbeatInterval {
		return errors.New("capability.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	return nil
}
