package engine

import (
	"testing"
	"time"
)

func TestSignalWatcherStop(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewSignalWatcher(dir)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer sw.Close()

	if sw.ShouldStop() {
		t.Fatal("no stop signal expected yet")
	}

	if err := sw.SendStop(); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	// ShouldStop checks the file directly, so no need to wait for the
	// watcher event.
	if !sw.ShouldStop() {
		t.Error("stop signal not seen")
	}

	if err := sw.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if sw.ShouldStop() {
		t.Error("stop signal should be cleared")
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEmitter(1, nil)

	e.Emit(Event{Type: EventRunStarted})
	start := time.Now()
	e.Emit(Event{Type: EventRunStarted}) // buffer full, dropped after grace period
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("emit blocked too long: %s", elapsed)
	}

	if e.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped event, got %d", e.DroppedCount())
	}

	// The first event is still deliverable.
	select {
	case ev := <-e.Events():
		if ev.Type != EventRunStarted {
			t.Errorf("unexpected event %s", ev.Type)
		}
	default:
		t.Error("buffered event lost")
	}
}
