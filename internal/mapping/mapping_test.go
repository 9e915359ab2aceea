package mapping

import (
	"os"
	"path/filepath"
	"testing"
)

const scaleXML = `<?xml version="1.0"?>
<Mapping>
  <Global>
    <Server host="ft.example" port="1337"/>
    <Display width="45" height="35" fontScale="2" flipHorizontal="true"/>
    <TTS voice="en" rate="120" pitch="50" volume="100"/>
    <Audio bufferMs="20"/>
  </Global>
  <Syllables>
    <S id="do" text="doh"/>
    <S id="re" text="ray"/>
    <S id="mi" text="mee"/>
    <S id="fa" text="fah"/>
    <S id="sol" text="soh"/>
    <S id="la" text="lah"/>
    <S id="ti" text="tee"/>
  </Syllables>
  <Notes>
    <Note midi="60" syllable="do"/>
    <Note midi="62" syllable="re"/>
    <Note midi="64" syllable="mi"/>
    <Note midi="65" syllable="fa"/>
    <Note midi="67" syllable="sol"/>
    <Note midi="69" syllable="la"/>
    <Note midi="71" syllable="ti"/>
    <Note midi="72" syllable="do"/>
  </Notes>
</Mapping>`

func TestParseScaleMapping(t *testing.T) {
	m, err := Parse([]byte(scaleXML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.NoteCount() != 8 {
		t.Fatalf("note count: got %d, want 8", m.NoteCount())
	}

	cases := map[int]string{
		60: "doh",
		62: "ray",
		71: "tee",
		72: "doh",
	}
	for note, want := range cases {
		if got := m.SyllableForNote(note); got != want {
			t.Fatalf("note %d: got %q, want %q", note, got, want)
		}
	}
	if got := m.SyllableForNote(61); got != "" {
		t.Fatalf("unmapped note should return empty, got %q", got)
	}
}

func TestParseGlobalOverrides(t *testing.T) {
	m, err := Parse([]byte(scaleXML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Global.Server == nil || m.Global.Server.Host != "ft.example" || m.Global.Server.Port != 1337 {
		t.Fatalf("server override not parsed: %+v", m.Global.Server)
	}
	if m.Global.Display == nil || !m.Global.Display.FlipHorizontal || m.Global.Display.FontScale != 2 {
		t.Fatalf("display override not parsed: %+v", m.Global.Display)
	}
	if m.Global.TTS == nil || m.Global.TTS.Rate != 120 {
		t.Fatalf("tts override not parsed: %+v", m.Global.TTS)
	}
	if m.Global.Audio == nil || m.Global.Audio.BufferMS != 20 {
		t.Fatalf("audio override not parsed: %+v", m.Global.Audio)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"no syllables": `<Mapping><Notes><Note midi="60" syllable="do"/></Notes></Mapping>`,
		"no notes":     `<Mapping><Syllables><S id="do" text="doh"/></Syllables></Mapping>`,
		"unknown ref": `<Mapping><Syllables><S id="do" text="doh"/></Syllables>
			<Notes><Note midi="60" syllable="nope"/></Notes></Mapping>`,
		"duplicate id": `<Mapping><Syllables><S id="do" text="doh"/><S id="do" text="dup"/></Syllables>
			<Notes><Note midi="60" syllable="do"/></Notes></Mapping>`,
		"out of range": `<Mapping><Syllables><S id="do" text="doh"/></Syllables>
			<Notes><Note midi="200" syllable="do"/></Notes></Mapping>`,
		"not xml": `{}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.xml")
	if err := os.WriteFile(path, []byte(scaleXML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.SyllableForNote(67); got != "soh" {
		t.Fatalf("note 67: got %q, want soh", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
