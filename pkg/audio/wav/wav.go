// Package wav reads and writes the RIFF/WAVE container around 16-bit PCM.
//
// Speech backends return WAV files while the rest of voiceqa moves raw
// little-endian PCM around, so only the subset needed to cross that boundary
// is implemented: locating the fmt and data chunks, writing a canonical
// 44-byte header, and linear resampling of mono audio.
package wav

import (
	"encoding/binary"
	"errors"
	"io"
)

// Format describes PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Info is the result of [Parse].
type Info struct {
	Format
	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int
	// DataLen is the declared size of the data chunk, clamped to the input.
	DataLen int
}

var (
	ErrTooShort    = errors.New("wav: input too short for a RIFF header")
	ErrNotRIFF     = errors.New("wav: missing RIFF/WAVE identifier")
	ErrMissingData = errors.New("wav: missing data chunk")
)

// Parse walks the RIFF chunks of b and returns the audio format and the
// location of the PCM payload. The fmt chunk size is honoured rather than
// assuming a fixed 44-byte header. When no fmt chunk precedes the data chunk,
// 22050 Hz mono 16-bit is assumed.
func Parse(b []byte) (Info, error) {
	if len(b) < 12 {
		return Info{}, ErrTooShort
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Info{}, ErrNotRIFF
	}

	info := Info{Format: Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}}
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size >= 16 && body+16 <= len(b) {
				info.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			}
		case "data":
			info.DataOffset = body
			info.DataLen = min(size, len(b)-body)
			return info, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}
	return Info{}, ErrMissingData
}

// PCM returns the raw samples of a WAV file together with their format.
func PCM(b []byte) ([]byte, Format, error) {
	info, err := Parse(b)
	if err != nil {
		return nil, Format{}, err
	}
	return b[info.DataOffset : info.DataOffset+info.DataLen], info.Format, nil
}

// Write emits a canonical 44-byte header followed by pcm.
func Write(w io.Writer, pcm []byte, f Format) error {
	if f.BitsPerSample == 0 {
		f.BitsPerSample = 16
	}
	if f.Channels == 0 {
		f.Channels = 1
	}
	blockAlign := f.Channels * f.BitsPerSample / 8
	hdr := make([]byte, 44)
	le := binary.LittleEndian

	copy(hdr[0:4], "RIFF")
	le.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	le.PutUint32(hdr[16:20], 16)
	le.PutUint16(hdr[20:22], 1) // linear PCM
	le.PutUint16(hdr[22:24], uint16(f.Channels))
	le.PutUint32(hdr[24:28], uint32(f.SampleRate))
	le.PutUint32(hdr[28:32], uint32(f.SampleRate*blockAlign))
	le.PutUint16(hdr[32:34], uint16(blockAlign))
	le.PutUint16(hdr[34:36], uint16(f.BitsPerSample))
	copy(hdr[36:40], "data")
	le.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// ResampleMono16 converts 16-bit mono PCM from one sample rate to another by
// linear interpolation. Equal rates return pcm unchanged.
func ResampleMono16(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	outN := int(int64(n) * int64(to) / int64(from))
	if outN == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, outN*2)
	step := float64(from) / float64(to)
	for i := range outN {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		s0 := sample(j)
		s1 := s0
		if j+1 < n {
			s1 = sample(j + 1)
		}
		v := int16(s0 + (s1-s0)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
