package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

const resampleQuality = 4

// EncodePCM drains s and returns little-endian signed 16-bit mono PCM at
// targetRate. Stereo input is averaged down to one channel.
func EncodePCM(s beep.Streamer, format beep.Format, targetRate int) ([]byte, error) {
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}

	src := s
	if format.SampleRate != beep.SampleRate(targetRate) {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetRate), s)
	}

	var out bytes.Buffer
	frame := make([][2]float64, 512)
	pcm := make([]byte, 2)
	for {
		n, ok := src.Stream(frame)
		for i := 0; i < n; i++ {
			mono := (frame[i][0] + frame[i][1]) / 2
			v := math.Round(mono * 32768)
			if v > math.MaxInt16 {
				v = math.MaxInt16
			}
			if v < math.MinInt16 {
				v = math.MinInt16
			}
			binary.LittleEndian.PutUint16(pcm, uint16(int16(v)))
			out.Write(pcm)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}
	return out.Bytes(), nil
}

// WAVToPCMBase64 converts a WAV file into the base64 PCM payload shape used
// for scene narration.
func WAVToPCMBase64(data []byte, targetRate int) (string, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	pcm, err := EncodePCM(streamer, format, targetRate)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}
