package synth

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/audio"
)

func TestNewExecEngineParsesCommand(t *testing.T) {
	e, err := newExecEngine(`espeak-ng --stdout -v "en us"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"espeak-ng", "--stdout", "-v", "en us"}
	if len(e.base) != len(want) {
		t.Fatalf("args: got %v", e.base)
	}
	for i := range want {
		if e.base[i] != want[i] {
			t.Fatalf("arg %d: got %q, want %q", i, e.base[i], want[i])
		}
	}

	if _, err := newExecEngine(`unbalanced "quote`); err == nil {
		t.Fatal("expected a parse error")
	}
}

// wavBytes builds a minimal 16-bit mono PCM RIFF file.
func wavBytes(t *testing.T, rate int, samples []int16) []byte {
	t.Helper()
	var buf bytes.Buffer
	dataLen := uint32(len(samples) * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

func TestDecodeWAVReportsHeaderRate(t *testing.T) {
	data := wavBytes(t, 8000, []int16{100, -100, 200, -200})
	samples, rate, err := decodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 8000 {
		t.Fatalf("rate: got %d, want the header's 8000", rate)
	}
	if len(samples) != 4 {
		t.Fatalf("samples: got %d, want 4", len(samples))
	}
}

func TestMonoFloatMixesChannels(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 22050},
		Data:   []int{16384, -16384, 8192, 8192},
	}
	got := monoFloat(buf, 16)
	if len(got) != 2 {
		t.Fatalf("frame count: got %d, want 2", len(got))
	}
	if got[0] != 0 {
		t.Fatalf("opposing channels must cancel, got %v", got[0])
	}
	if got[1] != 0.25 {
		t.Fatalf("averaged frame: got %v, want 0.25", got[1])
	}
}

func TestMonoFloatScalesByBitDepth(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 22050},
		Data:   []int{64, -128},
	}
	got := monoFloat(buf, 8)
	if got[0] != 0.5 || got[1] != -1 {
		t.Fatalf("8-bit scaling wrong: %v", got)
	}
}
