package tts

import (
	"context"

	"github.com/sirupsen/logrus"

	"storyreel/internal/remote/gemini"
)

const DefaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"

// ContentGenerator is the generateContent surface of the Gemini client.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error)
}

// GeminiEngine synthesizes narration with a Gemini speech model. The model
// returns 24 kHz mono PCM, which is passed through untouched.
type GeminiEngine struct {
	content ContentGenerator
	model   string
}

func NewGeminiEngine(content ContentGenerator, config Config) *GeminiEngine {
	model := config.Model
	if model == "" {
		model = DefaultGeminiSpeechModel
	}
	return &GeminiEngine{content: content, model: model}
}

func (g *GeminiEngine) Name() string { return EngineTypeGemini.String() }

func (g *GeminiEngine) Synthesize(ctx context.Context, text, voice string) (string, error) {
	req := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: text}}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{gemini.ModalityAudio},
			SpeechConfig: &gemini.SpeechConfig{
				VoiceConfig: &gemini.VoiceConfig{
					PrebuiltVoiceConfig: &gemini.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}

	resp, err := g.content.GenerateContent(ctx, g.model, req)
	if err != nil {
		return "", err
	}

	blob := resp.InlineData()
	if blob == nil {
		return "", ErrNoAudio
	}

	logrus.WithFields(logrus.Fields{
		"voice":     voice,
		"mime_type": blob.MimeType,
		"bytes":     len(blob.Data) * 3 / 4,
	}).Debug("Synthesized scene narration")

	return blob.Data, nil
}

func (g *GeminiEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	return prebuiltVoiceNames(), nil
}
