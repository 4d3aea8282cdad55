package player

import (
	"sync"

	"github.com/sirupsen/logrus"

	"storyreel/internal/domain/story"
	"storyreel/internal/story/assets"
	"storyreel/internal/story/audio"
)

const DefaultSwipeThreshold = 50

type Move int

const (
	MoveNone Move = iota
	MoveForward
	MoveBack
	MoveNextChapter
)

func (m Move) String() string {
	switch m {
	case MoveForward:
		return "forward"
	case MoveBack:
		return "back"
	case MoveNextChapter:
		return "next_chapter"
	default:
		return "none"
	}
}

// Event describes the scene under the cursor after a move or a merge.
type Event struct {
	Cursor int         `json:"cursor"`
	Total  int         `json:"total"`
	Move   string      `json:"move"`
	Scene  story.Scene `json:"scene"`
}

type SequencerOptions struct {
	SwipeThreshold float64
	SampleRate     int
	// OnNextChapter runs when advancing past the last scene.
	OnNextChapter func()
	Session       string
}

// Sequencer owns the playback cursor. Audio for the scene under the cursor
// plays at most once per arrival, either on arrival or when the cache later
// resolves it.
type Sequencer struct {
	cache *assets.Cache
	out   audio.Output
	opts  SequencerOptions

	mu          sync.Mutex
	cursor      int
	arrival     uint64
	played      bool
	started     bool
	stopped     bool
	listeners   []func(Event)
	unsubscribe func()
}

func NewSequencer(cache *assets.Cache, out audio.Output, opts SequencerOptions) *Sequencer {
	if opts.SwipeThreshold <= 0 {
		opts.SwipeThreshold = DefaultSwipeThreshold
	}
	if out == nil {
		out = audio.DiscardOutput{}
	}
	s := &Sequencer{cache: cache, out: out, opts: opts}
	s.unsubscribe = cache.Subscribe(s.onUpdate)
	return s
}

// Subscribe registers fn for every cursor move and every change to the
// current scene. It must be called before Start to see the first arrival.
func (s *Sequencer) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start arrives at the first scene.
func (s *Sequencer) Start() {
	s.mu.Lock()
	if s.started || s.stopped || s.cache.Len() == 0 {
		s.mu.Unlock()
		return
	}
	s.started = true
	ev, listeners := s.moveLocked(0, MoveNone)
	s.mu.Unlock()

	emit(listeners, ev)
}

func (s *Sequencer) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Current returns the event for the scene under the cursor.
func (s *Sequencer) Current() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventLocked(MoveNone)
}

// Advance moves to the next scene, or hands over to the next chapter from
// the last one.
func (s *Sequencer) Advance() Move {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return MoveNone
	}
	if s.cursor < s.cache.Len()-1 {
		ev, listeners := s.moveLocked(s.cursor+1, MoveForward)
		s.mu.Unlock()
		emit(listeners, ev)
		return MoveForward
	}
	hook := s.opts.OnNextChapter
	s.mu.Unlock()

	if hook == nil {
		return MoveNone
	}
	logrus.WithField("session", s.opts.Session).Info("End of chapter reached, moving to the next one")
	hook()
	return MoveNextChapter
}

func (s *Sequencer) Retreat() Move {
	s.mu.Lock()
	if s.stopped || s.cursor == 0 {
		s.mu.Unlock()
		return MoveNone
	}
	ev, listeners := s.moveLocked(s.cursor-1, MoveBack)
	s.mu.Unlock()

	emit(listeners, ev)
	return MoveBack
}

// Swipe turns a horizontal drag into a move. A leftward drag longer than
// the threshold advances, a rightward one retreats.
func (s *Sequencer) Swipe(startX, endX float64) Move {
	distance := startX - endX
	switch {
	case distance > s.opts.SwipeThreshold:
		return s.Advance()
	case distance < -s.opts.SwipeThreshold:
		return s.Retreat()
	default:
		return MoveNone
	}
}

// Stop detaches the sequencer from the cache and silences the output.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.listeners = nil
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	s.out.Stop()
}

func (s *Sequencer) moveLocked(i int, move Move) (Event, []func(Event)) {
	s.cursor = i
	s.arrival++
	s.played = false

	s.out.Stop()
	s.cache.Arrive(i)
	s.maybePlayLocked()

	logrus.WithFields(logrus.Fields{
		"session": s.opts.Session,
		"cursor":  i,
		"move":    move.String(),
	}).Debug("Cursor moved")

	return s.eventLocked(move), append(([]func(Event))(nil), s.listeners...)
}

func (s *Sequencer) maybePlayLocked() {
	if s.played {
		return
	}
	sc, ok := s.cache.Scene(s.cursor)
	if !ok || sc.Loading || sc.Audio == "" {
		return
	}
	s.played = true
	audio.Play(s.out, sc.Audio, s.opts.SampleRate)
}

func (s *Sequencer) onUpdate(u assets.Update) {
	s.mu.Lock()
	if s.stopped || !s.started || u.Index != s.cursor {
		s.mu.Unlock()
		return
	}
	s.maybePlayLocked()
	ev := s.eventLocked(MoveNone)
	listeners := append(([]func(Event))(nil), s.listeners...)
	s.mu.Unlock()

	emit(listeners, ev)
}

func (s *Sequencer) eventLocked(move Move) Event {
	sc, _ := s.cache.Scene(s.cursor)
	return Event{
		Cursor: s.cursor,
		Total:  s.cache.Len(),
		Move:   move.String(),
		Scene:  sc,
	}
}

func emit(listeners []func(Event), ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}
