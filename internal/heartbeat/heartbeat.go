// Package heartbeat provides the cancellable periodic ticker every
// presence publisher runs on.
package heartbeat

import (
	"sync"
	"time"
)

// Timer invokes a callback at a fixed interval until stopped.
// Re-Start without Stop replaces the running timer instead of stacking a
// second one. Stop is idempotent and safe before Start. A tick already
// dispatched may still run concurrently with Stop, so tick bodies must
// re-check their own liveness.
type Timer struct {
	mu    sync.Mutex
	gen   uint64
	stopc chan struct{}
}

func (t *Timer) Start(interval time.Duration, onTick func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopc != nil {
		close(t.stopc)
	}
	t.gen++
	stopc := make(chan struct{})
	t.stopc = stopc
	go t.run(t.gen, interval, onTick, stopc)
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopc != nil {
		close(t.stopc)
		t.stopc = nil
	}
}

// Running reports whether a timer is currently scheduled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopc != nil
}

func (t *Timer) run(gen uint64, interval time.Duration, onTick func(), stopc chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopc:
			return
		case <-ticker.C:
			if !t.current(gen) {
				return
			}
			onTick()
		}
	}
}

// current guards against a replaced timer firing one last tick after a
// racing re-Start.
func (t *Timer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopc != nil && gen == t.gen
}
