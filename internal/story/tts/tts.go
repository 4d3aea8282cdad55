// internal/story/tts/tts.go
package tts

import (
	"context"
	"errors"
)

// ErrNoAudio is returned when a synthesis reply carries no audio payload.
var ErrNoAudio = errors.New("no audio data returned")

type Config struct {
	Type        string
	Language    string
	Model       string
	Speed       float64
	SampleRate  int
	EspeakVoice string
	// EspeakVariants maps prebuilt voice names to eSpeak voice variants.
	EspeakVariants map[string]string
}

// Synthesizer turns one narration line into base64 little-endian 16-bit
// mono PCM at the configured sample rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
	Name() string
	GetAvailableVoices(ctx context.Context) ([]string, error)
}

// VoiceInfo provides detailed information about available voices
type VoiceInfo struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	Gender       string `json:"gender"`
	Natural      bool   `json:"natural"`
	Description  string `json:"description"`
}

// PrebuiltVoices are the narration voices used by default. Cloud engines
// derive their own voice names from these.
var PrebuiltVoices = []VoiceInfo{
	{Name: "Kore", Gender: "female", Natural: true, Description: "Firm narrator"},
	{Name: "Fenrir", Gender: "male", Natural: true, Description: "Excitable lead"},
	{Name: "Puck", Gender: "male", Natural: true, Description: "Upbeat, used for children"},
	{Name: "Charon", Gender: "male", Natural: true, Description: "Informative"},
	{Name: "Aoede", Gender: "female", Natural: true, Description: "Breezy"},
}

func prebuiltVoiceNames() []string {
	names := make([]string, 0, len(PrebuiltVoices))
	for _, v := range PrebuiltVoices {
		names = append(names, v.Name)
	}
	return names
}
