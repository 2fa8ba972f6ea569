package session

import (
	"sync"
	"time"
)

// View tracks the scroll reconciliation state of a message panel.
// A snapshot replacement auto-scrolls only when the viewer was
// already at the bottom and is not actively scrolling; active
// scrolling is a debounce flag cleared after the configured idle
// delay.
type View struct {
	mu        sync.Mutex
	pinned    bool
	scrolling bool
	timer     *time.Timer
	idleDelay time.Duration
}

// NewView creates a view pinned to the bottom, the state of a freshly
// opened panel.
func NewView(idleDelay time.Duration) *View {
	return &View{pinned: true, idleDelay: idleDelay}
}

// OnScroll records a scroll event and whether it left the viewer at
// the bottom. The active-scrolling flag clears after the idle delay.
func (v *View) OnScroll(atBottom bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pinned = atBottom
	v.scrolling = true
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(v.idleDelay, func() {
		v.mu.Lock()
		v.scrolling = false
		v.mu.Unlock()
	})
}

// AutoScroll reports whether an incoming update may move the viewport
// to the new bottom.
func (v *View) AutoScroll() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pinned && !v.scrolling
}

// Pinned reports whether the viewer sits at the bottom.
func (v *View) Pinned() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pinned
}

func (v *View) teardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}
