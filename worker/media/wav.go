package media

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// IsWAV checks the RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV reads the whole PCM payload.
func DecodeWAV(data []byte) (*audio.IntBuffer, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav header")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("wav has no samples")
	}
	return buf, int(dec.BitDepth), nil
}

// EncodeWAV writes PCM samples as a WAV file. The encoder needs a seekable writer, so
// it goes through a temp file.
func EncodeWAV(buf *audio.IntBuffer, bitDepth int, tempDir string) ([]byte, error) {
	if buf == nil || buf.Format == nil {
		return nil, errors.New("nil pcm buffer")
	}
	if bitDepth == 0 {
		bitDepth = 16
	}

	f, err := os.CreateTemp(tempDir, "pcm-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}

// Slice returns the frames [start, end) as a new buffer sharing the format.
func Slice(buf *audio.IntBuffer, start, end int) *audio.IntBuffer {
	ch := buf.Format.NumChannels
	total := len(buf.Data) / ch
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if start >= end {
		return &audio.IntBuffer{Format: buf.Format, SourceBitDepth: buf.SourceBitDepth}
	}
	data := append([]int(nil), buf.Data[start*ch:end*ch]...)
	return &audio.IntBuffer{Format: buf.Format, Data: data, SourceBitDepth: buf.SourceBitDepth}
}
