package session

import (
	"testing"
	"time"
)

func TestViewStartsPinnedToBottom(t *testing.T) {
	v := NewView(20 * time.Millisecond)
	if !v.AutoScroll() {
		t.Error("a fresh panel should follow new messages")
	}
}

func TestScrollingUpSuppressesAutoScroll(t *testing.T) {
	v := NewView(20 * time.Millisecond)

	v.OnScroll(false)
	if v.AutoScroll() {
		t.Error("reading history must not be yanked to the bottom")
	}
	// The suppression outlasts the debounce: the viewer is unpinned.
	time.Sleep(30 * time.Millisecond)
	if v.AutoScroll() {
		t.Error("still unpinned after the debounce, auto-scroll must stay off")
	}
}

func TestReturningToBottomRestoresAutoScroll(t *testing.T) {
	v := NewView(20 * time.Millisecond)

	v.OnScroll(false)
	v.OnScroll(true)
	// At the bottom but mid-gesture: wait out the idle delay.
	if v.AutoScroll() {
		t.Error("auto-scroll must wait for the scroll gesture to settle")
	}
	waitUntil(t, "auto-scroll restored", v.AutoScroll)
}
