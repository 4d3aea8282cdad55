package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
)

// Output is the playback context of one chapter session. Play supersedes any
// in-progress playback with a new source.
type Output interface {
	Play(buf *Buffer)
	Stop()
	Close() error
}

// Play decodes data and starts it on out. Decode failures are logged and
// treated as silence. It reports whether playback was started.
func Play(out Output, data string, sampleRate int) bool {
	if out == nil {
		return false
	}
	buf, err := Decode(data, sampleRate)
	if err != nil {
		logrus.WithError(err).Warn("Skipping undecodable scene audio")
		return false
	}
	if buf.Len() == 0 {
		return false
	}
	out.Play(buf)
	return true
}

// SpeakerOutput plays through the system audio device.
type SpeakerOutput struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	ctrl   *beep.Ctrl
	closed bool
}

func NewSpeakerOutput(sampleRate int) (*SpeakerOutput, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &SpeakerOutput{rate: sr}, nil
}

func (o *SpeakerOutput) Play(buf *Buffer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || buf.Len() == 0 {
		return
	}
	o.stopLocked()

	var s beep.Streamer = buf.Streamer()
	if beep.SampleRate(buf.SampleRate) != o.rate {
		s = beep.Resample(resampleQuality, beep.SampleRate(buf.SampleRate), o.rate, s)
	}
	ctrl := &beep.Ctrl{Streamer: s}
	o.ctrl = ctrl
	speaker.Play(ctrl)

	logrus.WithField("duration", buf.Duration().Round(time.Millisecond)).Debug("Playing scene audio")
}

func (o *SpeakerOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

func (o *SpeakerOutput) stopLocked() {
	if o.ctrl == nil {
		return
	}
	// A nil streamer makes the mixer drop the source.
	speaker.Lock()
	o.ctrl.Streamer = nil
	speaker.Unlock()
	o.ctrl = nil
}

func (o *SpeakerOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.stopLocked()
	o.closed = true
	speaker.Clear()
	speaker.Close()
	return nil
}

// DiscardOutput is used when no audio device is available.
type DiscardOutput struct{}

func (DiscardOutput) Play(buf *Buffer) {
	logrus.WithField("samples", buf.Len()).Debug("Discarding scene audio (no audio device)")
}

func (DiscardOutput) Stop()        {}
func (DiscardOutput) Close() error { return nil }

// NewOutput opens the configured device: "speaker" or "none".
func NewOutput(device string, sampleRate int) (Output, error) {
	switch device {
	case "", "speaker":
		return NewSpeakerOutput(sampleRate)
	case "none":
		return DiscardOutput{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio device: %s", device)
	}
}
