package player

import "sync"

// Gesture tracks one touch at a time and resolves it into a swipe when the
// touch ends. A touch without movement is a tap and never moves the cursor.
type Gesture struct {
	seq *Sequencer

	mu     sync.Mutex
	active bool
	moved  bool
	startX float64
	endX   float64
}

func NewGesture(seq *Sequencer) *Gesture {
	return &Gesture{seq: seq}
}

func (g *Gesture) Begin(x float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	g.moved = false
	g.startX = x
}

func (g *Gesture) Move(x float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	g.moved = true
	g.endX = x
}

func (g *Gesture) End() Move {
	g.mu.Lock()
	active, moved := g.active, g.moved
	start, end := g.startX, g.endX
	g.active = false
	g.moved = false
	g.mu.Unlock()

	if !active || !moved {
		return MoveNone
	}
	return g.seq.Swipe(start, end)
}
