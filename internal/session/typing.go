package session

import (
	"sync"
	"time"
)

// typist debounces the local typing signal. The first keystroke emits
// typing=true and arms the auto-clear timer; every further keystroke
// re-arms it; send or blur clears immediately. The emit function is
// advisory delivery (over the channel when live) and may silently do
// nothing.
type typist struct {
	mu      sync.Mutex
	active  bool
	timer   *time.Timer
	timeout time.Duration
	emit    func(typing bool)
}

func newTypist(timeout time.Duration, emit func(bool)) *typist {
	return &typist{timeout: timeout, emit: emit}
}

// keystroke marks typing activity.
func (t *typist) keystroke() {
	t.mu.Lock()
	wasActive := t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, t.autoClear)
	t.mu.Unlock()

	if !wasActive {
		t.emit(true)
	}
}

// clear stops typing immediately (successful send or blur).
func (t *typist) clear() {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if wasActive {
		t.emit(false)
	}
}

func (t *typist) autoClear() {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.timer = nil
	t.mu.Unlock()

	if wasActive {
		t.emit(false)
	}
}

// typing reports whether the local user currently counts as typing.
func (t *typist) typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
