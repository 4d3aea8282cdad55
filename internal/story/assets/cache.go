package assets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"storyreel/internal/domain/story"
)

const DefaultPrefetchDelay = 2500 * time.Millisecond

// Fetcher resolves the two assets of a scene.
type Fetcher interface {
	GenerateSceneImage(ctx context.Context, prompt string) (string, error)
	GenerateSceneSpeech(ctx context.Context, text, speaker string) (string, error)
}

type Options struct {
	// PrefetchDelay is how long after arriving at a scene the next one is
	// fetched speculatively.
	PrefetchDelay time.Duration
	// Session tags log lines.
	Session string
}

// Update is published after every merge into a scene.
type Update struct {
	Index   int
	Scene   story.Scene
	Version uint64
}

// Cache owns the scene sequence of one chapter playback and populates scene
// assets as the cursor moves. All mutations happen under mu and are dropped
// once the cache is closed.
type Cache struct {
	ctx     context.Context
	cancel  context.CancelFunc
	fetcher Fetcher
	opts    Options
	group   singleflight.Group
	wg      sync.WaitGroup

	mu        sync.Mutex
	scenes    []story.Scene
	fetching  map[int]bool
	timers    map[int]*time.Timer
	listeners map[int]func(Update)
	nextID    int
	version   uint64
	closed    bool
}

func New(ctx context.Context, scenes []story.Scene, fetcher Fetcher, opts Options) *Cache {
	if opts.PrefetchDelay <= 0 {
		opts.PrefetchDelay = DefaultPrefetchDelay
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Cache{
		ctx:       ctx,
		cancel:    cancel,
		fetcher:   fetcher,
		opts:      opts,
		scenes:    append([]story.Scene(nil), scenes...),
		fetching:  make(map[int]bool),
		timers:    make(map[int]*time.Timer),
		listeners: make(map[int]func(Update)),
	}
}

func (c *Cache) log(index int) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session": c.opts.Session,
		"scene":   index,
	})
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scenes)
}

func (c *Cache) Scene(i int) (story.Scene, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.scenes) {
		return story.Scene{}, false
	}
	return c.scenes[i], true
}

func (c *Cache) Scenes() []story.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]story.Scene(nil), c.scenes...)
}

// Subscribe registers fn for every merge. Listeners run outside the cache
// lock on the goroutine that settled the fetch. The returned func removes
// the listener.
func (c *Cache) Subscribe(fn func(Update)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Arrive records that the cursor reached scene i. Missing assets of a
// loading scene are fetched in parallel, and scene i+1 is scheduled for
// prefetch.
func (c *Cache) Arrive(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || i < 0 || i >= len(c.scenes) {
		return
	}

	sc := c.scenes[i]
	if sc.Loading && sc.MissingAssets() && !c.fetching[i] {
		c.fetching[i] = true
		c.wg.Add(1)
		go c.fetchCurrent(i, sc)
	}

	next := i + 1
	if next < len(c.scenes) && c.timers[next] == nil {
		c.wg.Add(1)
		c.timers[next] = time.AfterFunc(c.opts.PrefetchDelay, func() { c.prefetch(next) })
	}
}

func (c *Cache) fetchCurrent(i int, sc story.Scene) {
	defer c.wg.Done()

	var (
		wg            sync.WaitGroup
		image, speech string
	)
	if sc.Image == "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			image, _ = c.fetchImage(i, sc)
		}()
	}
	if sc.Audio == "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			speech, _ = c.fetchSpeech(i, sc)
		}()
	}
	wg.Wait()

	c.merge(i, image, speech, true)

	c.mu.Lock()
	delete(c.fetching, i)
	c.mu.Unlock()
}

// prefetch fetches the missing assets of scene i one after the other.
func (c *Cache) prefetch(i int) {
	defer c.wg.Done()

	c.mu.Lock()
	delete(c.timers, i)
	if c.closed {
		c.mu.Unlock()
		return
	}
	sc := c.scenes[i]
	c.mu.Unlock()

	if !sc.MissingAssets() {
		return
	}

	c.log(i).Debug("Prefetching next scene")

	image := ""
	if sc.Image == "" {
		var err error
		if image, err = c.fetchImage(i, sc); err != nil {
			return
		}
	}

	speech := ""
	if sc.Audio == "" && c.needsSpeech(i) {
		speech, _ = c.fetchSpeech(i, sc)
	}

	c.merge(i, image, speech, false)
}

// needsSpeech reports whether a prefetch should still request speech for
// scene i. An arrival fetch that started while the image was in flight owns
// the speech request.
func (c *Cache) needsSpeech(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.scenes[i]
	return !c.closed && !c.fetching[i] && sc.Loading && sc.Audio == ""
}

func (c *Cache) fetchImage(i int, sc story.Scene) (string, error) {
	return c.fetch(i, "image", func(ctx context.Context) (string, error) {
		return c.fetcher.GenerateSceneImage(ctx, sc.Description)
	})
}

func (c *Cache) fetchSpeech(i int, sc story.Scene) (string, error) {
	return c.fetch(i, "speech", func(ctx context.Context) (string, error) {
		return c.fetcher.GenerateSceneSpeech(ctx, sc.Text, sc.Speaker)
	})
}

// fetch runs one asset request, sharing it with any concurrent request for
// the same asset of the same scene.
func (c *Cache) fetch(i int, asset string, fn func(context.Context) (string, error)) (string, error) {
	key := fmt.Sprintf("%s/%d", asset, i)
	v, err, shared := c.group.Do(key, func() (any, error) {
		return fn(c.ctx)
	})
	if err != nil {
		if c.ctx.Err() == nil {
			c.log(i).WithField("asset", asset).WithError(err).Warn("Scene asset fetch failed")
		}
		return "", err
	}
	if shared {
		c.log(i).WithField("asset", asset).Debug("Joined in-flight asset fetch")
	}
	return v.(string), nil
}

// merge attaches resolved assets to scene i. settle clears the loading flag
// unconditionally; otherwise it clears only once both assets are present.
func (c *Cache) merge(i int, image, speech string, settle bool) {
	c.mu.Lock()
	if c.closed || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}

	sc := &c.scenes[i]
	before := *sc
	sc.Merge(image, speech)
	if settle || !sc.MissingAssets() {
		sc.Loading = false
	}
	if *sc == before {
		c.mu.Unlock()
		return
	}

	c.version++
	update := Update{Index: i, Scene: *sc, Version: c.version}
	listeners := make([]func(Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	c.log(i).WithFields(logrus.Fields{
		"image":   update.Scene.Image != "",
		"speech":  update.Scene.Audio != "",
		"loading": update.Scene.Loading,
	}).Debug("Scene assets merged")

	for _, fn := range listeners {
		fn(update)
	}
}

// Close stops pending prefetches and waits for in-flight fetches. Anything
// that settles afterwards is discarded.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	for i, t := range c.timers {
		if t.Stop() {
			c.wg.Done()
		}
		delete(c.timers, i)
	}
	c.listeners = make(map[int]func(Update))
	c.mu.Unlock()

	c.wg.Wait()
}
