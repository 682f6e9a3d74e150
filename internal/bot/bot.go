package bot

import (
	"sync"
	"time"
)

// Thinker delays the computer's reply so it feels deliberate.
// The delay is presentation only: a zero delay runs the reply inline.
type Thinker struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewThinker creates a Thinker that waits delay before each reply.
func NewThinker(delay time.Duration) *Thinker {
	return &Thinker{
		delay:   delay,
		pending: make(map[string]*time.Timer),
	}
}

// Delay returns the configured thinking time.
func (t *Thinker) Delay() time.Duration {
	return t.delay
}

// Think runs reply for key after the thinking delay. A reply already pending
// for the same key is replaced.
func (t *Thinker) Think(key string, reply func()) {
	if t.delay <= 0 {
		reply()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.pending[key]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		if t.pending[key] == timer {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		reply()
	})
	t.pending[key] = timer
}

// Cancel drops a pending reply for key, if any.
func (t *Thinker) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.pending[key]
	if !ok {
		return false
	}
	delete(t.pending, key)
	return timer.Stop()
}

// Thinking reports whether a reply for key is waiting to fire.
func (t *Thinker) Thinking(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Pending reports how many replies are waiting to fire.
func (t *Thinker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels every pending reply.
func (t *Thinker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.pending {
		timer.Stop()
		delete(t.pending, key)
	}
}
