package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
	"storyreel/internal/story/assets"
	"storyreel/internal/story/generator"
	"storyreel/internal/story/player"
)

type State string

const (
	StateIdle              State = "idle"
	StateGeneratingOutline State = "generating_outline"
	StateOutlineReady      State = "outline_ready"
	StateLoadingScript     State = "loading_script"
	StatePlaying           State = "playing"
)

const (
	BannerOutlineFailed = "outline generation failed"
	BannerScriptFailed  = "script generation failed"
)

var (
	ErrBusy           = errors.New("outline generation already in progress")
	ErrUnknownChapter = errors.New("unknown chapter")
	ErrNoNextChapter  = errors.New("no next chapter")
	ErrNotPlaying     = errors.New("no chapter is playing")
	ErrSuperseded     = errors.New("chapter selection superseded")
	ErrClosed         = errors.New("session closed")
)

// Session drives the app from outline generation to chapter playback. Only
// one chapter plays at a time; selecting another ends the current one.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    generator.StoryGenerator
	player player.Config
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	banner   string
	chapters []story.Chapter
	chapter  *story.Chapter
	playback *player.Playback
	token    uint64
	closed   bool

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// New creates an idle session. cfg is the template for every chapter
// playback; its OnNextChapter is managed by the session.
func New(ctx context.Context, gen generator.StoryGenerator, cfg player.Config) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ctx:       ctx,
		cancel:    cancel,
		gen:       gen,
		player:    cfg,
		state:     StateIdle,
		listeners: make(map[int]func(Event)),
	}
}

// GenerateOutline requests a fresh chapter list. Any playing chapter is
// ended first.
func (s *Session) GenerateOutline(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateGeneratingOutline {
		s.mu.Unlock()
		return ErrBusy
	}
	s.token++
	pb := s.detachLocked()
	s.state = StateGeneratingOutline
	s.banner = ""
	s.mu.Unlock()

	endPlayback(pb)
	s.emitState()

	chapters, err := s.gen.GenerateOutline(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateIdle
		s.banner = BannerOutlineFailed
	} else {
		s.chapters = chapters
		s.state = StateOutlineReady
	}
	s.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Error("Outline generation failed")
	}
	s.emitState()
	return err
}

// SelectChapter loads the script of chapter number and starts playing it.
// A later selection supersedes one whose script is still loading.
func (s *Session) SelectChapter(ctx context.Context, number int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateGeneratingOutline {
		s.mu.Unlock()
		return ErrBusy
	}
	idx := s.indexLocked(number)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownChapter, number)
	}
	chapter := s.chapters[idx]
	s.token++
	token := s.token
	pb := s.detachLocked()
	s.chapter = &chapter
	s.state = StateLoadingScript
	s.banner = ""
	s.mu.Unlock()

	endPlayback(pb)
	s.emitState()

	logrus.WithFields(logrus.Fields{
		"chapter": chapter.Number,
		"title":   chapter.Title,
	}).Info("Loading chapter script")

	scenes, err := s.gen.GenerateScript(ctx, chapter)

	s.mu.Lock()
	if token != s.token || s.closed {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err == nil {
		cfg := s.player
		cfg.OnNextChapter = nil
		if idx+1 < len(s.chapters) {
			cfg.OnNextChapter = func() { s.nextChapterAsync(token) }
		}
		pb, err = player.Begin(s.ctx, chapter, scenes, cfg)
	}
	if err != nil {
		s.state = StateOutlineReady
		s.banner = BannerScriptFailed
		s.chapter = nil
		s.mu.Unlock()

		logrus.WithError(err).WithField("chapter", chapter.Number).Error("Script generation failed")
		s.emitState()
		return err
	}
	s.playback = pb
	s.state = StatePlaying
	s.mu.Unlock()

	pb.Subscribe(func(ev player.Event) {
		s.emit(Event{Kind: EventCursor, Cursor: &CursorEvent{
			Cursor: ev.Cursor,
			Total:  ev.Total,
			Move:   ev.Move,
			Scene:  sceneStatus(ev.Scene),
		}})
	})
	pb.SubscribeScenes(func(u assets.Update) {
		s.emit(Event{Kind: EventScene, Scene: &SceneEvent{
			Index:   u.Index,
			Version: u.Version,
			Scene:   sceneStatus(u.Scene),
		}})
	})

	s.emitState()
	pb.Start()
	return nil
}

// NextChapter plays the chapter after the current one in outline order.
func (s *Session) NextChapter(ctx context.Context) error {
	s.mu.Lock()
	if s.chapter == nil {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	idx := s.indexLocked(s.chapter.Number)
	if idx < 0 || idx+1 >= len(s.chapters) {
		s.mu.Unlock()
		return ErrNoNextChapter
	}
	next := s.chapters[idx+1].Number
	s.mu.Unlock()

	return s.SelectChapter(ctx, next)
}

// nextChapterAsync is the end-of-chapter hook. It runs off the caller's
// goroutine since selecting a chapter ends the playback that invoked it.
func (s *Session) nextChapterAsync(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.token {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.NextChapter(s.ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			logrus.WithError(err).Warn("Could not move to the next chapter")
		}
	}()
}

// BackToOutline ends the current chapter and returns to the chapter list.
func (s *Session) BackToOutline() {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StateLoadingScript {
		s.mu.Unlock()
		return
	}
	s.token++
	pb := s.detachLocked()
	s.chapter = nil
	s.state = StateOutlineReady
	s.mu.Unlock()

	endPlayback(pb)
	s.emitState()
}

// Playback returns the chapter currently playing.
func (s *Session) Playback() (*player.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playback == nil {
		return nil, ErrNotPlaying
	}
	return s.playback, nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Close ends playback and waits for background work.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.token++
	pb := s.detachLocked()
	s.mu.Unlock()

	s.cancel()
	endPlayback(pb)
	s.wg.Wait()
}

func (s *Session) indexLocked(number int) int {
	for i, ch := range s.chapters {
		if ch.Number == number {
			return i
		}
	}
	return -1
}

func (s *Session) detachLocked() *player.Playback {
	pb := s.playback
	s.playback = nil
	return pb
}

func endPlayback(pb *player.Playback) {
	if pb != nil {
		pb.End()
	}
}
