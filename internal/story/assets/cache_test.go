package assets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"storyreel/internal/domain/story"
)

// fakeFetcher answers image and speech requests from fixed tables. A request
// for a key present in gates blocks until that channel is closed.
type fakeFetcher struct {
	mu     sync.Mutex
	images map[string]string
	speech map[string]string
	gates  map[string]chan struct{}
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		images: map[string]string{},
		speech: map[string]string{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakeFetcher) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	gate := f.gates[key]
	f.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFetcher) GenerateSceneImage(ctx context.Context, prompt string) (string, error) {
	if err := f.wait(ctx, "image:"+prompt); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.images[prompt]; ok {
		return v, nil
	}
	return "", errors.New("image generation failed")
}

func (f *fakeFetcher) GenerateSceneSpeech(ctx context.Context, text, speaker string) (string, error) {
	if err := f.wait(ctx, "speech:"+text); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.speech[text]; ok {
		return v, nil
	}
	return "", errors.New("speech generation failed")
}

func (f *fakeFetcher) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) count(key string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == key {
			n++
		}
	}
	return n
}

func testScenes() []story.Scene {
	return []story.Scene{
		{ID: 1, Description: "p1", Text: "t1", Speaker: story.Narrator, Loading: true},
		{ID: 2, Description: "p2", Text: "t2", Speaker: "葉凡", Loading: true},
		{ID: 3, Description: "p3", Text: "t3", Speaker: "平平", Loading: true},
	}
}

// updates collects cache updates on a channel.
func updates(c *Cache) <-chan Update {
	ch := make(chan Update, 16)
	c.Subscribe(func(u Update) { ch <- u })
	return ch
}

func waitUpdate(t *testing.T, ch <-chan Update, index int) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Index == index {
				return u
			}
		case <-timeout:
			t.Fatalf("no update for scene %d", index)
		}
	}
}

const neverPrefetch = time.Hour

func TestArriveFetchesMissingAssets(t *testing.T) {
	f := newFakeFetcher()
	f.images["p1"] = "IMG1"
	f.speech["t1"] = "PCM1"
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: neverPrefetch})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	u := waitUpdate(t, ch, 0)

	want := story.Scene{ID: 1, Description: "p1", Text: "t1", Speaker: story.Narrator, Image: "IMG1", Audio: "PCM1"}
	if diff := cmp.Diff(want, u.Scene); diff != "" {
		t.Errorf("scene mismatch (-want +got):\n%s", diff)
	}
	if got, _ := c.Scene(0); got.Status() != story.StatusReady {
		t.Errorf("status = %q, want ready", got.Status())
	}
}

func TestArriveFailedImageKeepsSpeech(t *testing.T) {
	f := newFakeFetcher()
	f.speech["t1"] = "PCM1"
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: neverPrefetch})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	u := waitUpdate(t, ch, 0)

	if u.Scene.Loading || u.Scene.Image != "" || u.Scene.Audio != "PCM1" {
		t.Errorf("scene = %+v, want speech only and not loading", u.Scene)
	}
	if u.Scene.Status() != story.StatusFailed {
		t.Errorf("status = %q, want failed", u.Scene.Status())
	}

	// Settled scenes are not fetched again on re-arrival.
	c.Arrive(0)
	time.Sleep(20 * time.Millisecond)
	if n := f.count("image:p1"); n != 1 {
		t.Errorf("image requested %d times, want 1", n)
	}
}

func TestArriveDoesNotDuplicateInFlightFetch(t *testing.T) {
	f := newFakeFetcher()
	f.images["p1"] = "IMG1"
	f.speech["t1"] = "PCM1"
	gate := f.gate("image:p1")
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: neverPrefetch})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	c.Arrive(0)
	c.Arrive(0)
	close(gate)
	waitUpdate(t, ch, 0)

	if n := f.count("image:p1"); n != 1 {
		t.Errorf("image requested %d times, want 1", n)
	}
	if n := f.count("speech:t1"); n != 1 {
		t.Errorf("speech requested %d times, want 1", n)
	}
}

func TestMergeIsCommutative(t *testing.T) {
	final := func(first string) story.Scene {
		f := newFakeFetcher()
		f.images["p1"] = "IMG1"
		f.speech["t1"] = "PCM1"
		imageGate := f.gate("image:p1")
		speechGate := f.gate("speech:t1")
		c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: neverPrefetch})
		defer c.Close()
		ch := updates(c)

		c.Arrive(0)
		if first == "image" {
			close(imageGate)
			time.Sleep(10 * time.Millisecond)
			close(speechGate)
		} else {
			close(speechGate)
			time.Sleep(10 * time.Millisecond)
			close(imageGate)
		}
		return waitUpdate(t, ch, 0).Scene
	}

	if diff := cmp.Diff(final("image"), final("speech")); diff != "" {
		t.Errorf("merge order changed the result (-image first +speech first):\n%s", diff)
	}
}

func TestPrefetchNextScene(t *testing.T) {
	f := newFakeFetcher()
	f.images["p1"] = "IMG1"
	f.speech["t1"] = "PCM1"
	f.images["p2"] = "IMG2"
	f.speech["t2"] = "PCM2"
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: 10 * time.Millisecond})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	u := waitUpdate(t, ch, 1)

	if u.Scene.Image != "IMG2" || u.Scene.Audio != "PCM2" || u.Scene.Loading {
		t.Errorf("prefetched scene = %+v, want both assets and not loading", u.Scene)
	}

	var order []string
	for _, call := range f.Calls() {
		if call == "image:p2" || call == "speech:t2" {
			order = append(order, call)
		}
	}
	if diff := cmp.Diff([]string{"image:p2", "speech:t2"}, order); diff != "" {
		t.Errorf("prefetch order mismatch (-want +got):\n%s", diff)
	}

	// The prefetched scene needs nothing on arrival.
	c.Arrive(1)
	time.Sleep(20 * time.Millisecond)
	if n := f.count("image:p2"); n != 1 {
		t.Errorf("image p2 requested %d times, want 1", n)
	}
}

// waitCall blocks until the fetcher has seen key.
func waitCall(t *testing.T, f *fakeFetcher, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.count(key) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%s never requested; calls %v", key, f.Calls())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestArrivalDuringPrefetchRequestsSpeechOnce(t *testing.T) {
	f := newFakeFetcher()
	f.images["p1"] = "IMG1"
	f.speech["t1"] = "PCM1"
	f.images["p2"] = "IMG2"
	f.speech["t2"] = "PCM2"
	gate := f.gate("image:p2")
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: 5 * time.Millisecond})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	waitCall(t, f, "image:p2")

	// The arrival joins the prefetch's image request and asks for speech itself.
	c.Arrive(1)
	waitCall(t, f, "speech:t2")
	close(gate)

	deadline := time.After(2 * time.Second)
	for {
		u := waitUpdate(t, ch, 1)
		if u.Scene.Image == "IMG2" && u.Scene.Audio == "PCM2" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("scene 1 never settled: %+v", u.Scene)
		default:
		}
	}
	time.Sleep(30 * time.Millisecond)

	if n := f.count("speech:t2"); n != 1 {
		t.Errorf("speech for scene 1 requested %d times, want 1; calls %v", n, f.Calls())
	}
	if n := f.count("image:p2"); n != 1 {
		t.Errorf("image for scene 1 requested %d times, want 1; calls %v", n, f.Calls())
	}
}

func TestPrefetchImageFailureLeavesSceneLoading(t *testing.T) {
	f := newFakeFetcher()
	f.speech["t2"] = "PCM2"
	c := New(context.Background(), testScenes()[1:], f, Options{PrefetchDelay: 5 * time.Millisecond})
	defer c.Close()

	// Arrive at a scene that already has its assets, so only the prefetch runs.
	c.merge(0, "IMG", "PCM", true)
	c.Arrive(0)
	time.Sleep(50 * time.Millisecond)

	got, _ := c.Scene(1)
	if !got.Loading || got.Image != "" || got.Audio != "" {
		t.Errorf("scene after failed prefetch = %+v, want untouched and loading", got)
	}
	if n := f.count("speech:t3"); n != 0 {
		t.Errorf("speech fetched %d times after image failure, want 0", n)
	}
}

func TestPrefetchScheduledOncePerTarget(t *testing.T) {
	f := newFakeFetcher()
	f.images["p2"] = "IMG2"
	f.speech["t2"] = "PCM2"
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: 20 * time.Millisecond})
	defer c.Close()
	ch := updates(c)

	c.Arrive(0)
	c.Arrive(0)
	c.Arrive(0)
	waitUpdate(t, ch, 1)
	time.Sleep(50 * time.Millisecond)

	if n := f.count("image:p2"); n != 1 {
		t.Errorf("image p2 requested %d times, want 1", n)
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	f := newFakeFetcher()
	f.images["p1"] = "IMG1"
	f.speech["t1"] = "PCM1"
	f.gate("image:p1")
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: neverPrefetch})

	var mu sync.Mutex
	merged := 0
	c.Subscribe(func(Update) {
		mu.Lock()
		merged++
		mu.Unlock()
	})

	c.Arrive(0)
	time.Sleep(10 * time.Millisecond)
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	if merged != 0 {
		t.Errorf("%d merges after close, want 0", merged)
	}
	if got, _ := c.Scene(0); got.Audio != "" || !got.Loading {
		t.Errorf("scene after close = %+v, want untouched", got)
	}
}

func TestCloseStopsPendingPrefetch(t *testing.T) {
	f := newFakeFetcher()
	c := New(context.Background(), testScenes(), f, Options{PrefetchDelay: 30 * time.Millisecond})
	c.merge(0, "IMG", "PCM", true)

	c.Arrive(0)
	c.Close()
	time.Sleep(60 * time.Millisecond)

	if calls := f.Calls(); len(calls) != 0 {
		t.Errorf("calls after close = %v, want none", calls)
	}

	c.Arrive(1)
	if calls := f.Calls(); len(calls) != 0 {
		t.Errorf("arrival after close started fetches: %v", calls)
	}
}

func TestScenesReturnsCopies(t *testing.T) {
	c := New(context.Background(), testScenes(), newFakeFetcher(), Options{PrefetchDelay: neverPrefetch})
	defer c.Close()

	scenes := c.Scenes()
	scenes[0].Image = "tampered"

	if got, _ := c.Scene(0); got.Image != "" {
		t.Errorf("cache scene changed through a copy: %+v", got)
	}
	if _, ok := c.Scene(5); ok {
		t.Error("Scene(5) should be out of range")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}
