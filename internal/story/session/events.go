package session

import (
	"storyreel/internal/domain/story"
)

type EventKind string

const (
	EventState  EventKind = "state"
	EventCursor EventKind = "cursor"
	EventScene  EventKind = "scene"
)

// Event is one notification for session observers. Exactly one payload is
// set, matching Kind.
type Event struct {
	Kind   EventKind    `json:"type"`
	State  *Status      `json:"state,omitempty"`
	Cursor *CursorEvent `json:"cursor,omitempty"`
	Scene  *SceneEvent  `json:"scene,omitempty"`
}

type CursorEvent struct {
	Cursor int         `json:"cursor"`
	Total  int         `json:"total"`
	Move   string      `json:"move"`
	Scene  SceneStatus `json:"scene"`
}

type SceneEvent struct {
	Index   int         `json:"index"`
	Version uint64      `json:"version"`
	Scene   SceneStatus `json:"scene"`
}

// SceneStatus is a scene without its asset payloads.
type SceneStatus struct {
	ID          int          `json:"id"`
	Speaker     string       `json:"speaker"`
	ShowSpeaker bool         `json:"showSpeaker"`
	Text        string       `json:"text"`
	Status      story.Status `json:"status"`
	HasImage    bool         `json:"hasImage"`
	HasAudio    bool         `json:"hasAudio"`
}

func sceneStatus(sc story.Scene) SceneStatus {
	return SceneStatus{
		ID:          sc.ID,
		Speaker:     sc.Speaker,
		ShowSpeaker: sc.ShowSpeaker(),
		Text:        sc.Text,
		Status:      sc.Status(),
		HasImage:    sc.Image != "",
		HasAudio:    sc.Audio != "",
	}
}

type PlaybackStatus struct {
	ID     string        `json:"id"`
	Cursor int           `json:"cursor"`
	Scenes []SceneStatus `json:"scenes"`
}

type Status struct {
	State    State           `json:"state"`
	Banner   string          `json:"error,omitempty"`
	Chapters []story.Chapter `json:"chapters"`
	Chapter  *story.Chapter  `json:"chapter,omitempty"`
	Playback *PlaybackStatus `json:"playback,omitempty"`
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:    s.state,
		Banner:   s.banner,
		Chapters: append([]story.Chapter{}, s.chapters...),
	}
	if s.chapter != nil {
		ch := *s.chapter
		st.Chapter = &ch
	}
	if s.playback != nil {
		snap := s.playback.Snapshot()
		ps := &PlaybackStatus{ID: snap.ID, Cursor: snap.Cursor}
		for _, sc := range snap.Scenes {
			ps.Scenes = append(ps.Scenes, sceneStatus(sc))
		}
		st.Playback = ps
	}
	return st
}

// Subscribe registers fn for every session event and returns a func that
// removes it. Listeners must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Session) emitState() {
	st := s.Status()
	s.emit(Event{Kind: EventState, State: &st})
}

func (s *Session) emit(ev Event) {
	s.lmu.Lock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.lmu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
