package main

import (
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	db := newDebouncer(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		db.Hit()
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-db.C:
	case <-time.After(time.Second):
		t.Fatalf("no signal after burst")
	}

	// The burst must produce exactly one signal.
	select {
	case <-db.C:
		t.Fatalf("burst produced a second signal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_SeparateBurstsSignalSeparately(t *testing.T) {
	db := newDebouncer(10 * time.Millisecond)
	for i := 0; i < 2; i++ {
		db.Hit()
		select {
		case <-db.C:
		case <-time.After(time.Second):
			t.Fatalf("burst %d: no signal", i)
		}
	}
}
