package carousel

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultAutoPlayDelay = 5 * time.Second

var ErrIndexOutOfRange = errors.New("carousel index out of range")

// Listener is called with the new index after every change of position.
type Listener func(index int)

// Cursor is a cyclic position over a fixed number of items.
type Cursor struct {
	// moveMu serializes a position change with its notification, so
	// listeners observe positions in the order they were taken.
	moveMu sync.Mutex

	mu        sync.Mutex
	count     int
	index     int
	listeners []Listener

	delay   time.Duration
	playing bool
	stop    chan struct{}
	closed  bool
}

func NewCursor(count int, autoPlayDelay time.Duration) *Cursor {
	if autoPlayDelay <= 0 {
		autoPlayDelay = DefaultAutoPlayDelay
	}
	return &Cursor{count: count, delay: autoPlayDelay}
}

// OnChange registers l. Listeners run synchronously in registration order
// and must not move the cursor themselves.
func (c *Cursor) OnChange(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Cursor) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Cursor) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *Cursor) Next() int {
	return c.move(func(index, count int) int {
		if index == count-1 {
			return 0
		}
		return index + 1
	})
}

func (c *Cursor) Previous() int {
	return c.move(func(index, count int) int {
		if index == 0 {
			return count - 1
		}
		return index - 1
	})
}

func (c *Cursor) GoTo(index int) (int, error) {
	c.mu.Lock()
	if index < 0 || index >= c.count {
		count := c.count
		c.mu.Unlock()
		return c.Current(), fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, count)
	}
	c.mu.Unlock()
	return c.move(func(int, int) int { return index }), nil
}

// SetItemCount changes the number of items, clamping the position.
func (c *Cursor) SetItemCount(count int) {
	if count < 0 {
		count = 0
	}
	c.mu.Lock()
	c.count = count
	c.mu.Unlock()
	c.move(func(index, count int) int {
		if index >= count {
			return max(count-1, 0)
		}
		return index
	})
}

func (c *Cursor) move(next func(index, count int) int) int {
	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	c.mu.Lock()
	if c.count == 0 {
		c.mu.Unlock()
		return 0
	}
	prev := c.index
	c.index = next(c.index, c.count)
	index := c.index
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if index != prev {
		for _, l := range listeners {
			l(index)
		}
	}
	return index
}

// ------------------------------
// Autoplay
// ------------------------------

func (c *Cursor) AutoPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// ResumeAutoPlay advances the cursor every autoplay delay until paused.
func (c *Cursor) ResumeAutoPlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.closed {
		return
	}
	c.playing = true
	c.stop = make(chan struct{})
	go c.autoplay(c.stop, c.delay)
}

func (c *Cursor) PauseAutoPlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pause()
}

func (c *Cursor) pause() {
	if !c.playing {
		return
	}
	c.playing = false
	close(c.stop)
}

// Close stops autoplay for good.
func (c *Cursor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pause()
	c.closed = true
}

func (c *Cursor) autoplay(stop <-chan struct{}, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Next()
		}
	}
}
