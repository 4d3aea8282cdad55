package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/faiface/beep"
)

// DefaultSampleRate is the rate of narration PCM returned by the speech model.
const DefaultSampleRate = 24000

// DecodeError reports a malformed locally-held audio payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode audio: %s: %v", e.Reason, e.Err)
	}
	return "decode audio: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Buffer is decoded mono audio with samples in [-1, 1).
type Buffer struct {
	SampleRate int
	Samples    []float64
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return beep.SampleRate(b.SampleRate).D(len(b.Samples))
}

func (b *Buffer) Format() beep.Format {
	return beep.Format{SampleRate: beep.SampleRate(b.SampleRate), NumChannels: 1, Precision: 2}
}

// Streamer returns a fresh seekable stream over the buffer; every call starts
// a new, independent source.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &bufferStreamer{samples: b.Samples}
}

// Decode converts base64 little-endian signed 16-bit mono PCM into a Buffer.
// Empty input yields a nil buffer and no error.
func Decode(data string, sampleRate int) (*Buffer, error) {
	if data == "" {
		return nil, nil
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64", Err: err}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd PCM length %d", len(raw))}
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float64(v) / 32768.0
	}

	return &Buffer{SampleRate: sampleRate, Samples: samples}, nil
}

type bufferStreamer struct {
	samples []float64
	pos     int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	for n < len(samples) && s.pos < len(s.samples) {
		v := s.samples[s.pos]
		samples[n][0] = v
		samples[n][1] = v
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error { return nil }

func (s *bufferStreamer) Len() int { return len(s.samples) }

func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > len(s.samples) {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, len(s.samples))
	}
	s.pos = p
	return nil
}
