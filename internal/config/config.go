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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Synth       SynthConfig     `yaml:"synth"`
	Pitch       PitchConfig     `yaml:"pitch"`
	Output      OutputConfig    `yaml:"output"`
	Mapping     MappingConfig   `yaml:"mapping"`
	Display     DisplayConfig   `yaml:"display"`
	Bus         BusConfig       `yaml:"bus"`
	EventLog    EventLogConfig  `yaml:"event_log"`
}

type SynthConfig struct {
	Mode         string   `yaml:"mode"` // espeak, exec, none
	Voice        string   `yaml:"voice"`
	Rate         int      `yaml:"rate"`   // words per minute, 80-450
	Pitch        int      `yaml:"pitch"`  // 0-99
	Volume       int      `yaml:"volume"` // 0-200
	SampleRate   int      `yaml:"sample_rate"`
	LibraryPaths []string `yaml:"library_paths"`
	Command      string   `yaml:"command"`
}

type PitchConfig struct {
	Mode          string  `yaml:"mode"` // vocoder, resample, off
	FramePeriodMS float64 `yaml:"frame_period_ms"`
	F0Floor       float64 `yaml:"f0_floor"`
	F0Ceil        float64 `yaml:"f0_ceil"`
	ReferenceHz   float64 `yaml:"reference_hz"`
	OctaveOffset  int     `yaml:"octave_offset"` // -3..+3
}

type OutputConfig struct {
	Device       string `yaml:"device"` // empty = system default
	BufferMS     int    `yaml:"buffer_ms"`
	SampleFormat string `yaml:"sample_format"` // float32, int16
}

type MappingConfig struct {
	Path string `yaml:"path"`
}

type DisplayConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	OffsetX        int    `yaml:"offset_x"`
	OffsetY        int    `yaml:"offset_y"`
	Layer          int    `yaml:"layer"`
	FontScale      int    `yaml:"font_scale"`
	FlipHorizontal bool   `yaml:"flip_horizontal"`
	ColorR         int    `yaml:"color_r"`
	ColorG         int    `yaml:"color_g"`
	ColorB         int    `yaml:"color_b"`
	BgColorR       int    `yaml:"bg_color_r"`
	BgColorG       int    `yaml:"bg_color_g"`
	BgColorB       int    `yaml:"bg_color_b"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	EmbeddedPort   int      `yaml:"embedded_port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	Subject        string   `yaml:"subject"`
}

type EventLogConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "notevox",
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
		Synth: SynthConfig{
			Mode:       "espeak",
			Voice:      "en",
			Rate:       120,
			Pitch:      50,
			Volume:     100,
			SampleRate: 22050,
		},
		Pitch: PitchConfig{
			Mode:          "vocoder",
			FramePeriodMS: 5.0,
			F0Floor:       71.0,
			F0Ceil:        800.0,
			ReferenceHz:   261.63,
			OctaveOffset:  0,
		},
		Output: OutputConfig{
			Device:       "",
			BufferMS:     20,
			SampleFormat: "float32",
		},
		Mapping: MappingConfig{
			Path: "./mapping.xml",
		},
		Display: DisplayConfig{
			Enabled:   false,
			Host:      "127.0.0.1",
			Port:      1337,
			Width:     45,
			Height:    35,
			Layer:     1,
			FontScale: 2,
			ColorR:    255,
			ColorG:    255,
			ColorB:    0,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			EmbeddedPort:   4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			Subject:        "notevox.trigger",
		},
		EventLog: EventLogConfig{
			Enabled:       false,
			Path:          "./data/notevox-utterances.db",
			RetentionDays: 30,
			MaxUtterances: 10000,
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
	overrideString(&cfg.RuntimeName, "NOTEVOX_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NOTEVOX_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NOTEVOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NOTEVOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NOTEVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NOTEVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NOTEVOX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Synth.Mode, "NOTEVOX_SYNTH_MODE")
	overrideString(&cfg.Synth.Voice, "NOTEVOX_SYNTH_VOICE")
	overrideInt(&cfg.Synth.Rate, "NOTEVOX_SYNTH_RATE")
	overrideInt(&cfg.Synth.Pitch, "NOTEVOX_SYNTH_PITCH")
	overrideInt(&cfg.Synth.Volume, "NOTEVOX_SYNTH_VOLUME")
	overrideInt(&cfg.Synth.SampleRate, "NOTEVOX_SYNTH_SAMPLE_RATE")
	overrideStringSlice(&cfg.Synth.LibraryPaths, "NOTEVOX_SYNTH_LIBRARY_PATHS")
	overrideString(&cfg.Synth.Command, "NOTEVOX_SYNTH_COMMAND")
	overrideString(&cfg.Pitch.Mode, "NOTEVOX_PITCH_MODE")
	overrideFloat(&cfg.Pitch.FramePeriodMS, "NOTEVOX_PITCH_FRAME_PERIOD_MS")
	overrideFloat(&cfg.Pitch.F0Floor, "NOTEVOX_PITCH_F0_FLOOR")
	overrideFloat(&cfg.Pitch.F0Ceil, "NOTEVOX_PITCH_F0_CEIL")
	overrideFloat(&cfg.Pitch.ReferenceHz, "NOTEVOX_PITCH_REFERENCE_HZ")
	overrideInt(&cfg.Pitch.OctaveOffset, "NOTEVOX_PITCH_OCTAVE_OFFSET")
	overrideString(&cfg.Output.Device, "NOTEVOX_OUTPUT_DEVICE")
	overrideInt(&cfg.Output.BufferMS, "NOTEVOX_OUTPUT_BUFFER_MS")
	overrideString(&cfg.Output.SampleFormat, "NOTEVOX_OUTPUT_SAMPLE_FORMAT")
	overrideString(&cfg.Mapping.Path, "NOTEVOX_MAPPING_PATH")
	overrideBool(&cfg.Display.Enabled, "NOTEVOX_DISPLAY_ENABLED")
	overrideString(&cfg.Display.Host, "NOTEVOX_DISPLAY_HOST")
	overrideInt(&cfg.Display.Port, "NOTEVOX_DISPLAY_PORT")
	overrideInt(&cfg.Display.Width, "NOTEVOX_DISPLAY_WIDTH")
	overrideInt(&cfg.Display.Height, "NOTEVOX_DISPLAY_HEIGHT")
	overrideBool(&cfg.Bus.Enabled, "NOTEVOX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NOTEVOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.EmbeddedPort, "NOTEVOX_BUS_EMBEDDED_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "NOTEVOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NOTEVOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NOTEVOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NOTEVOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NOTEVOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NOTEVOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.Subject, "NOTEVOX_BUS_SUBJECT")
	overrideBool(&cfg.EventLog.Enabled, "NOTEVOX_EVENT_LOG_ENABLED")
	overrideString(&cfg.EventLog.Path, "NOTEVOX_EVENT_LOG_PATH")
	overrideInt(&cfg.EventLog.RetentionDays, "NOTEVOX_EVENT_LOG_RETENTION_DAYS")
	overrideInt(&cfg.EventLog.MaxUtterances, "NOTEVOX_EVENT_LOG_MAX_UTTERANCES")
	overrideBool(&cfg.EventLog.VacuumOnStart, "NOTEVOX_EVENT_LOG_VACUUM_ON_START")
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
	switch cfg.Synth.Mode {
	case "espeak", "exec", "none":
	default:
		return errors.New("synth.mode must be one of espeak|exec|none")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	switch cfg.Pitch.Mode {
	case "vocoder", "resample", "off":
	default:
		return errors.New("pitch.mode must be one of vocoder|resample|off")
	}
	if cfg.Pitch.FramePeriodMS <= 0 {
		return errors.New("pitch.frame_period_ms must be positive")
	}
	if cfg.Pitch.F0Floor <= 0 || cfg.Pitch.F0Ceil <= cfg.Pitch.F0Floor {
		return errors.New("pitch.f0_ceil must be greater than pitch.f0_floor, both positive")
	}
	if cfg.Pitch.ReferenceHz <= 0 {
		return errors.New("pitch.reference_hz must be positive")
	}
	if cfg.Pitch.OctaveOffset < -3 || cfg.Pitch.OctaveOffset > 3 {
		return errors.New("pitch.octave_offset must be between -3 and 3")
	}
	if cfg.Output.BufferMS < 1 || cfg.Output.BufferMS > 500 {
		return errors.New("output.buffer_ms must be between 1 and 500")
	}
	switch cfg.Output.SampleFormat {
	case "float32", "int16":
	default:
		return errors.New("output.sample_format must be one of float32|int16")
	}
	if cfg.Display.Enabled {
		if cfg.Display.Host == "" {
			return errors.New("display.host must not be empty when display is enabled")
		}
		if cfg.Display.Port <= 0 || cfg.Display.Port > 65535 {
			return errors.New("display.port must be between 1 and 65535")
		}
		if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
			return errors.New("display.width and display.height must be positive")
		}
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when bus trigger is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when bus trigger is enabled")
		}
	}
	if cfg.EventLog.Enabled {
		if cfg.EventLog.Path == "" {
			return errors.New("event_log.path must not be empty when event log is enabled")
		}
		if cfg.EventLog.RetentionDays < 0 {
			return errors.New("event_log.retention_days must be >= 0")
		}
	}
	return nil
}
