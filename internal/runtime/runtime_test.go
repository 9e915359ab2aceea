package runtime

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stratojets/notevox/internal/config"
)

const overrideXML = `<?xml version="1.0"?>
<Mapping>
  <Global>
    <Server host="matrix.local" port="1338"/>
    <Display width="64" height="32" fontScale="3" flipHorizontal="true"/>
    <TTS voice="de" rate="150" pitch="40" volume="180"/>
    <Audio device="usb" bufferMs="10"/>
  </Global>
  <Syllables>
    <S id="do" text="doh"/>
  </Syllables>
  <Notes>
    <Note midi="60" syllable="do"/>
  </Notes>
</Mapping>`

func TestLoadMappingFoldsGlobalOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.xml")
	if err := os.WriteFile(path, []byte(overrideXML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.Default()
	cfg.Mapping.Path = path
	r := New(cfg, slog.Default())
	if err := r.loadMapping(); err != nil {
		t.Fatalf("load mapping: %v", err)
	}

	if r.cfg.Synth.Voice != "de" || r.cfg.Synth.Rate != 150 || r.cfg.Synth.Pitch != 40 || r.cfg.Synth.Volume != 180 {
		t.Fatalf("tts overrides not applied: %+v", r.cfg.Synth)
	}
	if r.cfg.Output.Device != "usb" || r.cfg.Output.BufferMS != 10 {
		t.Fatalf("audio overrides not applied: %+v", r.cfg.Output)
	}
	if r.cfg.Display.Host != "matrix.local" || r.cfg.Display.Port != 1338 {
		t.Fatalf("server overrides not applied: %+v", r.cfg.Display)
	}
	if r.cfg.Display.Width != 64 || r.cfg.Display.Height != 32 || r.cfg.Display.FontScale != 3 || !r.cfg.Display.FlipHorizontal {
		t.Fatalf("display overrides not applied: %+v", r.cfg.Display)
	}
	if r.notes == nil || r.notes.SyllableForNote(60) != "doh" {
		t.Fatal("note table not loaded")
	}
}

func TestLoadMappingSkippedWithoutPath(t *testing.T) {
	cfg := config.Default()
	cfg.Mapping.Path = ""
	r := New(cfg, slog.Default())
	if err := r.loadMapping(); err != nil {
		t.Fatalf("empty path must not error: %v", err)
	}
	if r.notes != nil {
		t.Fatal("no table should be loaded without a path")
	}
}

func TestLoadMappingReportsMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Mapping.Path = filepath.Join(t.TempDir(), "missing.xml")
	r := New(cfg, slog.Default())
	if err := r.loadMapping(); err == nil {
		t.Fatal("expected an error for a missing mapping file")
	}
}
