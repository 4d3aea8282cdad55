package nest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storyreel/internal/api"
	"storyreel/internal/cli/scheme/colours"
	"storyreel/internal/config"
	"storyreel/internal/domain/story"
	"storyreel/internal/remote"
	"storyreel/internal/remote/gemini"
	"storyreel/internal/story/audio"
	"storyreel/internal/story/generator"
	"storyreel/internal/story/player"
	"storyreel/internal/story/session"
	"storyreel/internal/story/tts"
)

const (
	sceneLoadingText = "場景生成中..."
	sceneFailedText  = "載入失敗"
)

// StoryReel is the terminal front end. It owns the session and renders its
// events as they arrive.
type StoryReel struct {
	cfg     *config.Config
	speech  tts.Synthesizer
	engines []tts.EngineType
	voices  *generator.VoiceRegistry
	session *session.Session

	in *bufio.Reader

	mu      sync.Mutex
	out     io.Writer
	chapter *story.Chapter
	cursor  int
	total   int

	ctx    context.Context
	Cancel context.CancelFunc
}

// New wires the remote client, speech engine, generator and session from
// cfg. Without an API key the app still starts; generation then fails with
// a clear error.
func New(cfg *config.Config) (*StoryReel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var content tts.ContentGenerator
	client, err := gemini.NewClient(cfg.Gemini.APIKey,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithRateLimit(cfg.Gemini.RequestsPerMinute),
	)
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		logrus.Warn("No Gemini API key configured, set GEMINI_API_KEY to generate stories")
	case err != nil:
		cancel()
		return nil, err
	default:
		content = client
	}

	speech, err := tts.NewEngine(ctx, tts.Config{
		Type:           cfg.TTS.Type,
		Language:       cfg.TTS.Language,
		Model:          cfg.Gemini.SpeechModel,
		Speed:          cfg.TTS.Speed,
		SampleRate:     cfg.Audio.SampleRate,
		EspeakVoice:    cfg.TTS.EspeakVoice,
		EspeakVariants: cfg.TTS.EspeakVariants,
	}, content)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create speech engine: %w", err)
	}

	aliases := make([]generator.Alias, 0, len(cfg.Voices.Aliases))
	for _, a := range cfg.Voices.Aliases {
		aliases = append(aliases, generator.Alias{Match: a.Match, Voice: a.Voice})
	}
	voices := generator.NewVoiceRegistry(cfg.Voices.Narrator, cfg.Voices.Speakers, aliases)

	gen := generator.New(content, speech, voices, generator.Options{
		TextModel:        cfg.Gemini.TextModel,
		ImageModel:       cfg.Gemini.ImageModel,
		ChapterCount:     cfg.Story.ChapterCount,
		NarrativeContext: cfg.Story.NarrativeContext,
		TextPolicy:       policy(cfg.Retry.Text),
		ImagePolicy:      policy(cfg.Retry.Image),
		SpeechPolicy:     policy(cfg.Retry.Speech),
	})

	sr := newStoryReel(ctx, cancel, cfg, gen, speech, voices, os.Stdin, os.Stdout)
	sr.engines = tts.GetAvailableEngines(content)
	return sr, nil
}

func policy(r config.Retry) remote.Policy {
	return remote.Policy{MaxRetries: r.MaxRetries, BaseDelay: r.BaseDelay}
}

func newStoryReel(ctx context.Context, cancel context.CancelFunc, cfg *config.Config,
	gen generator.Generator, speech tts.Synthesizer, voices *generator.VoiceRegistry,
	in io.Reader, out io.Writer) *StoryReel {

	sr := &StoryReel{
		cfg:    cfg,
		speech: speech,
		voices: voices,
		in:     bufio.NewReader(in),
		out:    out,
		ctx:    ctx,
		Cancel: cancel,
	}
	sr.session = session.New(ctx, gen, player.Config{
		Fetcher: gen,
		NewOutput: func() (audio.Output, error) {
			return audio.NewOutput(cfg.Audio.Device, cfg.Audio.SampleRate)
		},
		PrefetchDelay:  cfg.Player.PrefetchDelay,
		SwipeThreshold: cfg.Player.SwipeThreshold,
		SampleRate:     cfg.Audio.SampleRate,
	})
	sr.session.Subscribe(sr.onEvent)
	return sr
}

// Close ends playback and cancels outstanding requests.
func (sr *StoryReel) Close() {
	sr.Cancel()
	sr.session.Close()
}

func (sr *StoryReel) ShowWelcome() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	fmt.Fprintln(sr.out)
	colours.Title.Fprintf(sr.out, "🎬 %s 🎬\n", sr.cfg.Story.Title)
	fmt.Fprintln(sr.out)
	colours.Info.Fprintln(sr.out, "📚 Available commands:")
	fmt.Fprintln(sr.out, "  • storyreel outline        - Generate the chapter list")
	fmt.Fprintln(sr.out, "  • storyreel play [chapter] - Play a chapter in the terminal")
	fmt.Fprintln(sr.out, "  • storyreel serve          - Start the HTTP/WebSocket control server")
	fmt.Fprintln(sr.out, "  • storyreel voices         - Show the speaker voice mapping")
	fmt.Fprintln(sr.out)
	colours.Prompt.Fprintln(sr.out, "✨ Ready for the next chapter? ✨")
}

func (sr *StoryReel) ShowOutline(cmd *cobra.Command, args []string) {
	if err := sr.ensureOutline(sr.ctx); err != nil {
		sr.printError(err)
		return
	}
	sr.renderOutline(sr.session.Status().Chapters)
}

// Play generates the outline, starts the requested chapter and hands the
// terminal to the interactive player.
func (sr *StoryReel) Play(cmd *cobra.Command, args []string) {
	if err := sr.play(sr.ctx, args); err != nil {
		sr.printError(err)
	}
}

func (sr *StoryReel) play(ctx context.Context, args []string) error {
	if err := sr.ensureOutline(ctx); err != nil {
		return err
	}

	chapters := sr.session.Status().Chapters
	var number int
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid chapter number %q", args[0])
		}
		number = n
	} else {
		sr.renderOutline(chapters)
		n, ok := sr.chooseChapter()
		if !ok {
			sr.goodbye()
			return nil
		}
		number = n
	}

	if err := sr.session.SelectChapter(ctx, number); err != nil {
		return err
	}
	return sr.loop(ctx)
}

func (sr *StoryReel) ensureOutline(ctx context.Context) error {
	if st := sr.session.Status(); len(st.Chapters) > 0 {
		return nil
	}
	sr.println(colours.Info, "🪄 Generating the chapter list...")
	return sr.session.GenerateOutline(ctx)
}

func (sr *StoryReel) chooseChapter() (int, bool) {
	for {
		sr.print(colours.Prompt, "🌟 Enter a chapter number (or 'q' to quit): ")
		line, err := sr.in.ReadString('\n')
		input := strings.TrimSpace(strings.ToLower(line))
		if input == "q" || input == "quit" || (err != nil && input == "") {
			return 0, false
		}
		if n, convErr := strconv.Atoi(input); convErr == nil {
			return n, true
		}
		sr.println(colours.Error, "❌ Invalid selection! Please try again.")
	}
}

// loop reads navigation commands until the user quits or input ends.
func (sr *StoryReel) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		sr.print(colours.Prompt, "\n⏯️  [Enter/n] next  [p] previous  [b] chapters  [number] jump  [q] quit: ")
		line, readErr := sr.in.ReadString('\n')
		input := strings.TrimSpace(strings.ToLower(line))
		if readErr != nil && input == "" {
			return nil
		}

		switch input {
		case "", "n", "next":
			sr.navigate((*player.Playback).Next)
		case "p", "prev":
			sr.navigate((*player.Playback).Prev)
		case "b", "back":
			sr.session.BackToOutline()
			sr.renderOutline(sr.session.Status().Chapters)
		case "q", "quit":
			sr.goodbye()
			return nil
		default:
			n, err := strconv.Atoi(input)
			if err != nil {
				sr.println(colours.Info, "ℹ️  Use n, p, b, q or a chapter number")
				break
			}
			if err := sr.session.SelectChapter(ctx, n); err != nil {
				sr.printError(err)
			}
		}

		if readErr != nil {
			return nil
		}
	}
	return nil
}

func (sr *StoryReel) navigate(fn func(*player.Playback) player.Move) {
	pb, err := sr.session.Playback()
	if err != nil {
		sr.println(colours.Warning, "📖 Pick a chapter first")
		return
	}
	if fn(pb) == player.MoveNone {
		sr.println(colours.Warning, "🚧 No more scenes that way")
	}
}

func (sr *StoryReel) ListVoices(cmd *cobra.Command, args []string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	fmt.Fprintln(sr.out)
	colours.Title.Fprintf(sr.out, "🎤 Voices (%s engine) 🎤\n", sr.speech.Name())
	fmt.Fprintln(sr.out)
	colours.Info.Fprintf(sr.out, "  Narrator → %s\n", sr.voices.Narrator())
	for _, a := range sr.cfg.Voices.Aliases {
		colours.Speaker.Fprintf(sr.out, "  *%s* → %s\n", a.Match, a.Voice)
	}
	for speaker, voice := range sr.cfg.Voices.Speakers {
		colours.Speaker.Fprintf(sr.out, "  %s → %s\n", speaker, voice)
	}

	if len(sr.engines) > 0 {
		names := make([]string, 0, len(sr.engines))
		for _, e := range sr.engines {
			names = append(names, e.String())
		}
		colours.Info.Fprintf(sr.out, "  Engines available: %s\n", strings.Join(names, ", "))
	}

	available, err := sr.speech.GetAvailableVoices(sr.ctx)
	if err != nil {
		colours.Warning.Fprintf(sr.out, "⚠️ Could not list engine voices: %v\n", err)
		return
	}
	fmt.Fprintln(sr.out)
	colours.Success.Fprintf(sr.out, "✨ %d voices available: %s\n", len(available), strings.Join(available, ", "))
}

// Serve runs the control server until the app is cancelled.
func (sr *StoryReel) Serve(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = sr.cfg.Server.Addr
	}

	sr.println(colours.Success, fmt.Sprintf("🌐 Control server on http://%s (WebSocket at /ws)", addr))
	if err := api.NewServer(sr.session).Run(sr.ctx, addr); err != nil {
		sr.printError(err)
	}
}

func (sr *StoryReel) onEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventState:
		sr.onState(ev.State)
	case session.EventCursor:
		sr.mu.Lock()
		sr.cursor, sr.total = ev.Cursor.Cursor, ev.Cursor.Total
		sr.renderSceneLocked(ev.Cursor.Cursor, ev.Cursor.Total, ev.Cursor.Scene)
		sr.mu.Unlock()
	case session.EventScene:
		sr.mu.Lock()
		if ev.Scene.Index == sr.cursor && sr.chapter != nil {
			sr.renderSceneLocked(ev.Scene.Index, sr.total, ev.Scene.Scene)
		}
		sr.mu.Unlock()
	}
}

func (sr *StoryReel) onState(st *session.Status) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.chapter = st.Chapter
	switch {
	case st.Banner != "":
		colours.Error.Fprintf(sr.out, "❌ %s\n", st.Banner)
	case st.State == session.StateLoadingScript && st.Chapter != nil:
		colours.Info.Fprintf(sr.out, "📜 Writing chapter %d: %s...\n", st.Chapter.Number, st.Chapter.Title)
	}
}

func (sr *StoryReel) renderSceneLocked(index, total int, sc session.SceneStatus) {
	number := 0
	if sr.chapter != nil {
		number = sr.chapter.Number
	}
	renderScene(sr.out, number, index, total, sc)
}

func renderScene(w io.Writer, chapter, index, total int, sc session.SceneStatus) {
	fmt.Fprintln(w)
	colours.Info.Fprintf(w, "第%d章 • %d/%d\n", chapter, index+1, total)

	switch sc.Status {
	case story.StatusLoading:
		colours.Warning.Fprintf(w, "⏳ %s\n", sceneLoadingText)
	case story.StatusFailed:
		colours.Error.Fprintf(w, "🖼  %s\n", sceneFailedText)
	default:
		colours.Success.Fprintln(w, "🖼  image ready")
	}

	if sc.ShowSpeaker {
		colours.Speaker.Fprintf(w, "【%s】\n", sc.Speaker)
	}
	colours.Narration.Fprintln(w, sc.Text)
}

func (sr *StoryReel) renderOutline(chapters []story.Chapter) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	renderOutline(sr.out, chapters)
}

func renderOutline(w io.Writer, chapters []story.Chapter) {
	fmt.Fprintln(w)
	colours.Title.Fprintln(w, "📚 Chapters 📚")
	fmt.Fprintln(w)
	for _, ch := range chapters {
		fmt.Fprintf(w, "%d. ", ch.Number)
		colours.Title.Fprintln(w, ch.Title)
		colours.Info.Fprintf(w, "     %s\n", ch.Summary)
	}
	fmt.Fprintln(w)
	colours.Success.Fprintf(w, "✨ %d chapters ready ✨\n", len(chapters))
}

func (sr *StoryReel) goodbye() {
	sr.println(colours.Warning, "👋 See you next chapter!")
}

func (sr *StoryReel) printError(err error) {
	sr.println(colours.Error, fmt.Sprintf("❌ Error: %v", err))
}

type printer interface {
	Fprint(w io.Writer, a ...interface{}) (int, error)
	Fprintln(w io.Writer, a ...interface{}) (int, error)
}

func (sr *StoryReel) print(c printer, msg string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	c.Fprint(sr.out, msg)
}

func (sr *StoryReel) println(c printer, msg string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	c.Fprintln(sr.out, msg)
}
