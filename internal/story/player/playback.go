package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
	"storyreel/internal/story/assets"
	"storyreel/internal/story/audio"
)

type Config struct {
	Fetcher assets.Fetcher
	// NewOutput opens the audio output of one playback.
	NewOutput      func() (audio.Output, error)
	PrefetchDelay  time.Duration
	SwipeThreshold float64
	SampleRate     int
	OnNextChapter  func()
}

// Snapshot is a point-in-time view of a playback.
type Snapshot struct {
	ID      string        `json:"id"`
	Chapter story.Chapter `json:"chapter"`
	Cursor  int           `json:"cursor"`
	Scenes  []story.Scene `json:"scenes"`
}

// Playback is one chapter being played: its asset cache, cursor and audio
// output live and die together.
type Playback struct {
	ID      string
	Chapter story.Chapter

	cache   *assets.Cache
	seq     *Sequencer
	gesture *Gesture
	out     audio.Output

	endOnce sync.Once
}

func Begin(ctx context.Context, chapter story.Chapter, scenes []story.Scene, cfg Config) (*Playback, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("chapter %d has no scenes", chapter.Number)
	}

	var out audio.Output = audio.DiscardOutput{}
	if cfg.NewOutput != nil {
		o, err := cfg.NewOutput()
		if err != nil {
			return nil, fmt.Errorf("open audio output: %w", err)
		}
		out = o
	}

	id := uuid.NewString()
	cache := assets.New(ctx, scenes, cfg.Fetcher, assets.Options{
		PrefetchDelay: cfg.PrefetchDelay,
		Session:       id,
	})
	seq := NewSequencer(cache, out, SequencerOptions{
		SwipeThreshold: cfg.SwipeThreshold,
		SampleRate:     cfg.SampleRate,
		OnNextChapter:  cfg.OnNextChapter,
		Session:        id,
	})

	logrus.WithFields(logrus.Fields{
		"session": id,
		"chapter": chapter.Number,
		"scenes":  len(scenes),
	}).Info("Chapter playback started")

	return &Playback{
		ID:      id,
		Chapter: chapter,
		cache:   cache,
		seq:     seq,
		gesture: NewGesture(seq),
		out:     out,
	}, nil
}

// Start arrives at the first scene. Subscribe before calling it.
func (p *Playback) Start() { p.seq.Start() }

func (p *Playback) Subscribe(fn func(Event)) { p.seq.Subscribe(fn) }

// SubscribeScenes reports asset merges for every scene, not just the
// current one.
func (p *Playback) SubscribeScenes(fn func(assets.Update)) func() {
	return p.cache.Subscribe(fn)
}

func (p *Playback) Next() Move { return p.seq.Advance() }

func (p *Playback) Prev() Move { return p.seq.Retreat() }

func (p *Playback) Swipe(startX, endX float64) Move {
	return p.seq.Swipe(startX, endX)
}

func (p *Playback) Current() Event { return p.seq.Current() }

// Touch feeds one touch phase ("start", "move" or "end") to the gesture
// tracker.
func (p *Playback) Touch(phase string, x float64) (Move, error) {
	switch phase {
	case "start":
		p.gesture.Begin(x)
	case "move":
		p.gesture.Move(x)
	case "end":
		return p.gesture.End(), nil
	default:
		return MoveNone, fmt.Errorf("unknown touch phase %q", phase)
	}
	return MoveNone, nil
}

func (p *Playback) Scene(i int) (story.Scene, bool) { return p.cache.Scene(i) }

func (p *Playback) Snapshot() Snapshot {
	return Snapshot{
		ID:      p.ID,
		Chapter: p.Chapter,
		Cursor:  p.seq.Cursor(),
		Scenes:  p.cache.Scenes(),
	}
}

// End stops playback, drops pending prefetches and releases the audio
// output. It is safe to call more than once.
func (p *Playback) End() {
	p.endOnce.Do(func() {
		p.seq.Stop()
		p.cache.Close()
		if err := p.out.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close audio output")
		}
		logrus.WithField("session", p.ID).Info("Chapter playback ended")
	})
}
