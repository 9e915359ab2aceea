package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synth.Mode != "espeak" {
		t.Fatalf("expected default synth mode espeak, got %q", cfg.Synth.Mode)
	}
	if cfg.Pitch.ReferenceHz != 261.63 {
		t.Fatalf("expected middle-C reference, got %v", cfg.Pitch.ReferenceHz)
	}
	if cfg.Output.BufferMS != 20 {
		t.Fatalf("expected default 20ms buffer, got %d", cfg.Output.BufferMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NOTEVOX_SYNTH_MODE", "none")
	t.Setenv("NOTEVOX_SYNTH_RATE", "200")
	t.Setenv("NOTEVOX_PITCH_MODE", "resample")
	t.Setenv("NOTEVOX_PITCH_OCTAVE_OFFSET", "-2")
	t.Setenv("NOTEVOX_OUTPUT_DEVICE", "USB Audio")
	t.Setenv("NOTEVOX_OUTPUT_BUFFER_MS", "50")
	t.Setenv("NOTEVOX_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synth.Mode != "none" {
		t.Fatalf("expected synth mode override, got %q", cfg.Synth.Mode)
	}
	if cfg.Synth.Rate != 200 {
		t.Fatalf("expected rate 200, got %d", cfg.Synth.Rate)
	}
	if cfg.Pitch.Mode != "resample" {
		t.Fatalf("expected pitch mode override, got %q", cfg.Pitch.Mode)
	}
	if cfg.Pitch.OctaveOffset != -2 {
		t.Fatalf("expected octave offset -2, got %d", cfg.Pitch.OctaveOffset)
	}
	if cfg.Output.Device != "USB Audio" {
		t.Fatalf("expected device override, got %q", cfg.Output.Device)
	}
	if cfg.Output.BufferMS != 50 {
		t.Fatalf("expected buffer 50, got %d", cfg.Output.BufferMS)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad synth mode", func(c *Config) { c.Synth.Mode = "festival" }},
		{"exec without command", func(c *Config) { c.Synth.Mode = "exec"; c.Synth.Command = "" }},
		{"bad pitch mode", func(c *Config) { c.Pitch.Mode = "psola" }},
		{"inverted f0 bounds", func(c *Config) { c.Pitch.F0Floor = 900; c.Pitch.F0Ceil = 800 }},
		{"octave out of range", func(c *Config) { c.Pitch.OctaveOffset = 4 }},
		{"buffer too large", func(c *Config) { c.Output.BufferMS = 600 }},
		{"bad sample format", func(c *Config) { c.Output.SampleFormat = "int24" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
