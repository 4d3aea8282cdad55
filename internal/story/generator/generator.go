package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
	"storyreel/internal/remote"
	"storyreel/internal/remote/gemini"
	"storyreel/internal/story/tts"
)

const (
	DefaultTextModel    = "gemini-2.5-flash"
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultChapterCount = 8

	outlineTemperature = 0.8
	scriptTemperature  = 0.7
)

var (
	// ErrNotConfigured is returned when the client has no content service.
	ErrNotConfigured = errors.New("content generator not configured")
	ErrNoImage       = errors.New("no image data returned")
)

type StoryGenerator interface {
	GenerateOutline(ctx context.Context) ([]story.Chapter, error)
	GenerateScript(ctx context.Context, chapter story.Chapter) ([]story.Scene, error)
}

type AssetGenerator interface {
	GenerateSceneImage(ctx context.Context, prompt string) (string, error)
	GenerateSceneSpeech(ctx context.Context, text, speaker string) (string, error)
}

// Generator is everything a story session needs from the content service.
type Generator interface {
	StoryGenerator
	AssetGenerator
}

var _ Generator = (*Client)(nil)

// GenerationError is a failed outline or script request.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generate %s: %v", e.Op, e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// AssetError is a failed image or speech request for one scene.
type AssetError struct {
	Asset string
	Err   error
}

func (e *AssetError) Error() string { return fmt.Sprintf("generate %s: %v", e.Asset, e.Err) }
func (e *AssetError) Unwrap() error { return e.Err }

type Options struct {
	TextModel         string
	ImageModel        string
	ChapterCount      int
	NarrativeContext  string
	SystemInstruction string

	TextPolicy   remote.Policy
	ImagePolicy  remote.Policy
	SpeechPolicy remote.Policy
}

// DefaultOptions mirrors the stock models and retry budgets.
func DefaultOptions() Options {
	return Options{
		TextModel:         DefaultTextModel,
		ImageModel:        DefaultImageModel,
		ChapterCount:      DefaultChapterCount,
		NarrativeContext:  DefaultNarrativeContext,
		SystemInstruction: DefaultSystemInstruction,
		TextPolicy:        remote.Policy{Name: "text", MaxRetries: 3, BaseDelay: remote.DefaultBaseDelay},
		ImagePolicy:       remote.Policy{Name: "image", MaxRetries: 3, BaseDelay: 3 * time.Second},
		SpeechPolicy:      remote.Policy{Name: "speech", MaxRetries: 3, BaseDelay: remote.DefaultBaseDelay},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TextModel == "" {
		o.TextModel = d.TextModel
	}
	if o.ImageModel == "" {
		o.ImageModel = d.ImageModel
	}
	if o.ChapterCount <= 0 {
		o.ChapterCount = d.ChapterCount
	}
	if o.NarrativeContext == "" {
		o.NarrativeContext = d.NarrativeContext
	}
	if o.SystemInstruction == "" {
		o.SystemInstruction = d.SystemInstruction
	}
	if o.TextPolicy.Name == "" {
		o.TextPolicy.Name = d.TextPolicy.Name
	}
	if o.ImagePolicy.Name == "" {
		o.ImagePolicy.Name = d.ImagePolicy.Name
	}
	if o.SpeechPolicy.Name == "" {
		o.SpeechPolicy.Name = d.SpeechPolicy.Name
	}
	return o
}

// Client produces outlines, scripts and scene assets. Every remote call runs
// under its own retry policy.
type Client struct {
	content tts.ContentGenerator
	speech  tts.Synthesizer
	voices  *VoiceRegistry
	opts    Options
}

// New builds a client. content may be nil when only offline speech is
// available; text and image operations then fail with ErrNotConfigured.
func New(content tts.ContentGenerator, speech tts.Synthesizer, voices *VoiceRegistry, opts Options) *Client {
	if voices == nil {
		voices = DefaultVoiceRegistry()
	}
	return &Client{
		content: content,
		speech:  speech,
		voices:  voices,
		opts:    opts.withDefaults(),
	}
}

func (c *Client) Voices() *VoiceRegistry { return c.voices }

func (c *Client) GenerateOutline(ctx context.Context) ([]story.Chapter, error) {
	if c.content == nil {
		return nil, &GenerationError{Op: "outline", Err: ErrNotConfigured}
	}

	req := &gemini.Request{
		Contents:          gemini.UserText(outlinePrompt(c.opts.NarrativeContext, c.opts.ChapterCount)),
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: c.opts.SystemInstruction}}},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:      gemini.Float32(outlineTemperature),
			ResponseMimeType: "application/json",
			ResponseSchema:   outlineSchema,
		},
	}

	chapters, err := remote.Do(ctx, c.opts.TextPolicy, func(ctx context.Context) ([]story.Chapter, error) {
		resp, err := c.content.GenerateContent(ctx, c.opts.TextModel, req)
		if err != nil {
			return nil, err
		}
		return parseOutline(resp.Text())
	})
	if err != nil {
		return nil, &GenerationError{Op: "outline", Err: err}
	}

	logrus.WithField("chapters", len(chapters)).Info("Outline generated")
	return chapters, nil
}

func (c *Client) GenerateScript(ctx context.Context, chapter story.Chapter) ([]story.Scene, error) {
	if c.content == nil {
		return nil, &GenerationError{Op: "script", Err: ErrNotConfigured}
	}

	req := &gemini.Request{
		Contents: gemini.UserText(scriptPrompt(c.opts.NarrativeContext, chapter)),
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:      gemini.Float32(scriptTemperature),
			ResponseMimeType: "application/json",
			ResponseSchema:   scriptSchema,
		},
	}

	scenes, err := remote.Do(ctx, c.opts.TextPolicy, func(ctx context.Context) ([]story.Scene, error) {
		resp, err := c.content.GenerateContent(ctx, c.opts.TextModel, req)
		if err != nil {
			return nil, err
		}
		return parseScript(resp.Text())
	})
	if err != nil {
		return nil, &GenerationError{Op: "script", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"chapter": chapter.Number,
		"scenes":  len(scenes),
	}).Info("Script generated")
	return scenes, nil
}

// GenerateSceneImage returns the base64 image for a visual prompt.
func (c *Client) GenerateSceneImage(ctx context.Context, prompt string) (string, error) {
	if c.content == nil {
		return "", &AssetError{Asset: "image", Err: ErrNotConfigured}
	}

	req := &gemini.Request{Contents: gemini.UserText(prompt)}
	image, err := remote.Do(ctx, c.opts.ImagePolicy, func(ctx context.Context) (string, error) {
		resp, err := c.content.GenerateContent(ctx, c.opts.ImageModel, req)
		if err != nil {
			return "", err
		}
		blob := resp.InlineData()
		if blob == nil {
			return "", ErrNoImage
		}
		return blob.Data, nil
	})
	if err != nil {
		return "", &AssetError{Asset: "image", Err: err}
	}
	return image, nil
}

// GenerateSceneSpeech returns base64 24 kHz mono PCM narration for text, in
// the voice mapped to speaker.
func (c *Client) GenerateSceneSpeech(ctx context.Context, text, speaker string) (string, error) {
	if c.speech == nil {
		return "", &AssetError{Asset: "speech", Err: ErrNotConfigured}
	}

	voice := c.voices.VoiceFor(speaker)
	pcm, err := remote.Do(ctx, c.opts.SpeechPolicy, func(ctx context.Context) (string, error) {
		return c.speech.Synthesize(ctx, text, voice)
	})
	if err != nil {
		return "", &AssetError{Asset: "speech", Err: err}
	}
	return pcm, nil
}
