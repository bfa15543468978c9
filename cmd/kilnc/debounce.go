package main

import (
	"sync"
	"time"
)

// debouncer coalesces a burst of hits into a single signal on C after a
// quiet period. Editors often write a saved file in several steps; a
// recompile per step would be wasted work.
type debouncer struct {
	C chan struct{}

	d  time.Duration
	mu sync.Mutex
	t  *time.Timer
}

func newDebouncer(d time.Duration) *debouncer {
	return &debouncer{C: make(chan struct{}, 1), d: d}
}

// Hit restarts the quiet-period timer. C fires once d elapses with no
// further hits; a signal not yet consumed is never duplicated.
func (db *debouncer) Hit() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.t != nil {
		db.t.Stop()
	}
	db.t = time.AfterFunc(db.d, func() {
		select {
		case db.C <- struct{}{}:
		default:
		}
	})
}
