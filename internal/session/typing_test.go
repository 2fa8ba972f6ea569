package session

import (
	"sync"
	"testing"
	"time"
)

type emitRecorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *emitRecorder) emit(typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, typing)
}

func (r *emitRecorder) recorded() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func TestTypistEmitsOnceWhileTyping(t *testing.T) {
	rec := &emitRecorder{}
	ty := newTypist(50*time.Millisecond, rec.emit)

	ty.keystroke()
	ty.keystroke()
	ty.keystroke()

	if got := rec.recorded(); len(got) != 1 || !got[0] {
		t.Fatalf("emissions = %v, want a single true", got)
	}

	waitUntil(t, "auto clear", func() bool {
		return len(rec.recorded()) == 2
	})
	if got := rec.recorded(); got[1] {
		t.Errorf("second emission = %v, want false", got[1])
	}
	if ty.typing() {
		t.Error("still typing after the timeout elapsed")
	}
}

func TestTypistKeystrokeResetsTheTimer(t *testing.T) {
	rec := &emitRecorder{}
	ty := newTypist(60*time.Millisecond, rec.emit)

	ty.keystroke()
	time.Sleep(40 * time.Millisecond)
	ty.keystroke()
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first keystroke but only 40ms after the second:
	// the indicator must still be up.
	if !ty.typing() {
		t.Error("keystroke failed to re-arm the clear timer")
	}
	if got := rec.recorded(); len(got) != 1 {
		t.Errorf("emissions = %v, want only the initial true", got)
	}

	waitUntil(t, "auto clear", func() bool { return !ty.typing() })
}

func TestTypistClearIsImmediate(t *testing.T) {
	rec := &emitRecorder{}
	ty := newTypist(time.Hour, rec.emit)

	ty.keystroke()
	ty.clear()

	got := rec.recorded()
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("emissions = %v, want [true false]", got)
	}

	// Clearing when already clear emits nothing.
	ty.clear()
	if got := rec.recorded(); len(got) != 2 {
		t.Errorf("redundant clear emitted: %v", got)
	}
}
