// Package mapping loads the note-to-syllable table. The file is XML so
// tables can be shared with other tooling that already speaks this schema:
// a flat syllable dictionary plus a note index into it, with optional
// global overrides for the server, display, voice, and audio sections.
package mapping

import (
	"encoding/xml"
	"fmt"
	"os"
)

// Mapping is the root document.
type Mapping struct {
	XMLName   xml.Name   `xml:"Mapping"`
	Global    Global     `xml:"Global"`
	Syllables []Syllable `xml:"Syllables>S"`
	Notes     []Note     `xml:"Notes>Note"`

	byNote map[int]string
}

// Global carries optional overrides applied on top of the runtime config.
type Global struct {
	Server  *Server  `xml:"Server"`
	Display *Display `xml:"Display"`
	TTS     *TTS     `xml:"TTS"`
	Audio   *Audio   `xml:"Audio"`
}

type Server struct {
	Host string `xml:"host,attr"`
	Port int    `xml:"port,attr"`
}

type Display struct {
	Width          int  `xml:"width,attr"`
	Height         int  `xml:"height,attr"`
	OffsetX        int  `xml:"offsetX,attr"`
	OffsetY        int  `xml:"offsetY,attr"`
	Layer          int  `xml:"layer,attr"`
	FontScale      int  `xml:"fontScale,attr"`
	FlipHorizontal bool `xml:"flipHorizontal,attr"`
}

type TTS struct {
	Voice  string `xml:"voice,attr"`
	Rate   int    `xml:"rate,attr"`
	Pitch  int    `xml:"pitch,attr"`
	Volume int    `xml:"volume,attr"`
}

type Audio struct {
	Device   string `xml:"device,attr"`
	BufferMS int    `xml:"bufferMs,attr"`
}

// Syllable is one dictionary entry. Text is what gets synthesized; ID is
// how notes refer to it.
type Syllable struct {
	ID   string `xml:"id,attr"`
	Text string `xml:"text,attr"`
}

// Note binds a MIDI note number to a syllable ID.
type Note struct {
	MIDI     int    `xml:"midi,attr"`
	Syllable string `xml:"syllable,attr"`
}

// Load reads and validates a mapping file.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates mapping XML.
func Parse(data []byte) (*Mapping, error) {
	var m Mapping
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	byID := make(map[string]string, len(m.Syllables))
	for _, s := range m.Syllables {
		byID[s.ID] = s.Text
	}
	m.byNote = make(map[int]string, len(m.Notes))
	for _, n := range m.Notes {
		text, ok := byID[n.Syllable]
		if !ok {
			return nil, fmt.Errorf("note %d references unknown syllable %q", n.MIDI, n.Syllable)
		}
		m.byNote[n.MIDI] = text
	}
	return &m, nil
}

func (m *Mapping) validate() error {
	if len(m.Syllables) == 0 {
		return fmt.Errorf("mapping defines no syllables")
	}
	if len(m.Notes) == 0 {
		return fmt.Errorf("mapping defines no note bindings")
	}
	seen := make(map[string]bool, len(m.Syllables))
	for _, s := range m.Syllables {
		if s.ID == "" {
			return fmt.Errorf("syllable with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate syllable id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, n := range m.Notes {
		if n.MIDI < 0 || n.MIDI > 127 {
			return fmt.Errorf("note %d outside the MIDI range", n.MIDI)
		}
	}
	return nil
}

// SyllableForNote returns the text bound to a MIDI note, or "" when the
// note is unmapped.
func (m *Mapping) SyllableForNote(note int) string {
	return m.byNote[note]
}

// NoteCount reports how many notes are bound.
func (m *Mapping) NoteCount() int {
	return len(m.byNote)
}
