package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"

	"storyreel/internal/story/audio"
)

const defaultGoogleLanguage = "cmn-CN"

// speechClient is the part of the Cloud TTS client the engine uses.
type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
}

// GoogleClassicEngine synthesizes through Google Cloud Text-to-Speech with
// Chirp3-HD voices that share their names with the Gemini prebuilt voices.
type GoogleClassicEngine struct {
	client     speechClient
	language   string
	speed      float64
	sampleRate int
}

func newGoogleClassicEngine(ctx context.Context, config Config) (*GoogleClassicEngine, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return newGoogleClassicEngineWithClient(client, config), nil
}

func newGoogleClassicEngineWithClient(client speechClient, config Config) *GoogleClassicEngine {
	language := config.Language
	if language == "" {
		language = defaultGoogleLanguage
	}
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &GoogleClassicEngine{
		client:     client,
		language:   language,
		speed:      config.Speed,
		sampleRate: sampleRate,
	}
}

func (g *GoogleClassicEngine) Name() string { return EngineTypeGoogleClassic.String() }

// voiceName maps a prebuilt voice onto the Chirp3-HD catalogue. Full Cloud
// voice names are passed through.
func (g *GoogleClassicEngine) voiceName(voice string) string {
	if strings.Contains(voice, "-") {
		return voice
	}
	return fmt.Sprintf("%s-Chirp3-HD-%s", g.language, voice)
}

func (g *GoogleClassicEngine) Synthesize(ctx context.Context, text, voice string) (string, error) {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
		SampleRateHertz: int32(g.sampleRate),
	}

	name := g.voiceName(voice)
	// Chirp voices don't support speakingRate
	if !strings.Contains(strings.ToLower(name), "chirp") && g.speed > 0 {
		audioCfg.SpeakingRate = g.speed
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         name,
		},
		AudioConfig: audioCfg,
	}

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return "", ErrNoAudio
	}

	// LINEAR16 replies carry a WAV header.
	pcm, err := audio.WAVToPCMBase64(resp.AudioContent, g.sampleRate)
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"voice": name,
		"bytes": len(resp.AudioContent),
	}).Debug("Synthesized scene narration with Cloud TTS")

	return pcm, nil
}

func (g *GoogleClassicEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: g.language})
	if err != nil {
		return nil, err
	}
	voices := []string{}
	for _, v := range resp.Voices {
		voices = append(voices, v.Name)
	}
	return voices, nil
}
