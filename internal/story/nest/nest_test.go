package nest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"

	"storyreel/internal/config"
	"storyreel/internal/domain/story"
	"storyreel/internal/story/generator"
	"storyreel/internal/story/session"
	"storyreel/internal/story/tts"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeGenerator struct {
	outlineErr error
}

func (f *fakeGenerator) GenerateOutline(ctx context.Context) ([]story.Chapter, error) {
	if f.outlineErr != nil {
		return nil, f.outlineErr
	}
	return []story.Chapter{
		{Number: 1, Title: "開端", Summary: "葉凡歸來"},
		{Number: 2, Title: "重逢", Summary: "女兒賣花"},
	}, nil
}

func (f *fakeGenerator) GenerateScript(ctx context.Context, chapter story.Chapter) ([]story.Scene, error) {
	return []story.Scene{
		{ID: 1, Text: "雨夜。", Speaker: story.Narrator, Image: "SU1H", Audio: "AAAAAA=="},
		{ID: 2, Text: "我回來了。", Speaker: "葉凡", Image: "SU1H", Audio: "AAAAAA=="},
	}, nil
}

func (f *fakeGenerator) GenerateSceneImage(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("offline")
}

func (f *fakeGenerator) GenerateSceneSpeech(ctx context.Context, text, speaker string) (string, error) {
	return "", errors.New("offline")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Story.Title = "都市修仙"
	cfg.Audio.Device = "none"
	cfg.Audio.SampleRate = 24000
	cfg.Player.PrefetchDelay = time.Hour
	cfg.Voices.Narrator = "Kore"
	cfg.Voices.Aliases = []config.VoiceAlias{{Match: "葉凡", Voice: "Fenrir"}}
	return cfg
}

func newTestApp(t *testing.T, gen *fakeGenerator, input string) (*StoryReel, *syncBuffer) {
	t.Helper()
	color.NoColor = true

	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	voices := generator.NewVoiceRegistry("Kore", nil, []generator.Alias{{Match: "葉凡", Voice: "Fenrir"}})
	out := &syncBuffer{}

	sr := newStoryReel(ctx, cancel, cfg, gen, tts.NewMockEngine(tts.Config{}), voices, strings.NewReader(input), out)
	t.Cleanup(sr.Close)
	return sr, out
}

func TestRenderScene(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name  string
		scene session.SceneStatus
		want  []string
		not   []string
	}{
		{
			name:  "dialogue",
			scene: session.SceneStatus{Text: "我回來了。", Speaker: "葉凡", ShowSpeaker: true, Status: story.StatusReady},
			want:  []string{"第3章 • 2/5", "【葉凡】", "我回來了。"},
			not:   []string{sceneLoadingText},
		},
		{
			name:  "narration loading",
			scene: session.SceneStatus{Text: "雨夜。", Speaker: story.Narrator, Status: story.StatusLoading},
			want:  []string{sceneLoadingText, "雨夜。"},
			not:   []string{"【"},
		},
		{
			name:  "failed image",
			scene: session.SceneStatus{Text: "雨夜。", Status: story.StatusFailed},
			want:  []string{sceneFailedText},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderScene(&buf, 3, 1, 5, tt.scene)
			got := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output %q missing %q", got, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("output %q should not contain %q", got, n)
				}
			}
		})
	}
}

func TestPlayNavigatesScenes(t *testing.T) {
	sr, out := newTestApp(t, &fakeGenerator{}, "n\nq\n")

	if err := sr.play(context.Background(), []string{"1"}); err != nil {
		t.Fatalf("play() error = %v", err)
	}

	got := out.String()
	for _, w := range []string{"第1章 • 1/2", "雨夜。", "第1章 • 2/2", "【葉凡】", "See you next chapter"} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(got, "【Narrator】") {
		t.Error("narration should not show a speaker badge")
	}
}

func TestPlayPromptsForChapter(t *testing.T) {
	sr, out := newTestApp(t, &fakeGenerator{}, "x\n2\nq\n")

	if err := sr.play(context.Background(), nil); err != nil {
		t.Fatalf("play() error = %v", err)
	}

	got := out.String()
	for _, w := range []string{"1. 開端", "2. 重逢", "Invalid selection", "第2章 • 1/2"} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}

func TestPlayOutlineFailure(t *testing.T) {
	sr, out := newTestApp(t, &fakeGenerator{outlineErr: errors.New("quota")}, "")

	if err := sr.play(context.Background(), []string{"1"}); err == nil {
		t.Fatal("play() should fail without an outline")
	}
	if !strings.Contains(out.String(), session.BannerOutlineFailed) {
		t.Errorf("banner not shown:\n%s", out.String())
	}
}

func TestListVoices(t *testing.T) {
	sr, out := newTestApp(t, &fakeGenerator{}, "")
	sr.engines = []tts.EngineType{tts.EngineTypeMock, tts.EngineTypeESpeak}

	sr.ListVoices(nil, nil)

	got := out.String()
	for _, w := range []string{"mock engine", "Narrator → Kore", "*葉凡* → Fenrir", "mock, espeak", "Puck"} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}
