package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/voiceqa/pkg/audio/wav"
)

func TestWriteThenParse(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	var buf bytes.Buffer
	if err := wav.Write(&buf, pcm, wav.Format{SampleRate: 16000}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", buf.Len(), 44+len(pcm))
	}

	got, f, err := wav.PCM(buf.Bytes())
	if err != nil {
		t.Fatalf("PCM: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Errorf("format = %+v", f)
	}
}

func TestParse_SkipsExtraChunks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := wav.Write(&buf, []byte{9, 9}, wav.Format{SampleRate: 22050}); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()

	// Splice an odd-sized LIST chunk between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0) // padded to even
	spliced := append(append(append([]byte{}, b[:36]...), list...), b[36:]...)

	info, err := wav.Parse(spliced)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.DataOffset != 36+len(list)+8 {
		t.Errorf("DataOffset = %d, want %d", info.DataOffset, 36+len(list)+8)
	}
	if info.SampleRate != 22050 {
		t.Errorf("SampleRate = %d", info.SampleRate)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"short", []byte("RIFF"), wav.ErrTooShort},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE"), wav.ErrNotRIFF},
		{"no data", []byte("RIFF\x04\x00\x00\x00WAVE"), wav.ErrMissingData},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := wav.Parse(tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Parse() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 0, 8)
	for _, s := range []int16{0, 100, 200, 300} {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}

	if got := wav.ResampleMono16(pcm, 16000, 16000); !bytes.Equal(got, pcm) {
		t.Error("equal rates should return input unchanged")
	}

	up := wav.ResampleMono16(pcm, 8000, 16000)
	if len(up) != 16 {
		t.Fatalf("upsampled len = %d, want 16", len(up))
	}
	if s := int16(binary.LittleEndian.Uint16(up[2:])); s != 50 {
		t.Errorf("interpolated sample = %d, want 50", s)
	}

	down := wav.ResampleMono16(pcm, 16000, 8000)
	if len(down) != 4 {
		t.Fatalf("downsampled len = %d, want 4", len(down))
	}
	if s := int16(binary.LittleEndian.Uint16(down[2:])); s != 200 {
		t.Errorf("downsampled sample = %d, want 200", s)
	}
}
