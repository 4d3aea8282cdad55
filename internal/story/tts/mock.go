package tts

import (
	"context"
	"encoding/base64"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"storyreel/internal/story/audio"
)

// MockEngine produces silence sized to the text, for offline runs and tests.
type MockEngine struct {
	mu         sync.Mutex
	sampleRate int
	calls      []MockCall
}

type MockCall struct {
	Text  string
	Voice string
}

func NewMockEngine(c Config) *MockEngine {
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &MockEngine{sampleRate: sampleRate}
}

func (m *MockEngine) Name() string { return EngineTypeMock.String() }

func (m *MockEngine) Synthesize(ctx context.Context, text, voice string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Voice: voice})
	m.mu.Unlock()

	// Roughly six characters per second of speech
	samples := m.sampleRate * (utf8.RuneCountInString(text)/6 + 1) / 10
	logrus.WithFields(logrus.Fields{
		"voice":   voice,
		"samples": samples,
	}).Debug("Mock narration generated")

	return base64.StdEncoding.EncodeToString(make([]byte, 2*samples)), nil
}

func (m *MockEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	return prebuiltVoiceNames(), nil
}

// Calls returns the synthesis requests seen so far.
func (m *MockEngine) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
