package ordering

import (
	"context"
	"sync"
)

// Watcher broadcasts the committed blocks to the channels of the watchers.
// A slow watcher delays the next notification until it reads its event or its
// context is done.
type Watcher struct {
	sync.Mutex

	watches map[*watch]struct{}
}

type watch struct {
	ctx    context.Context
	events chan Event
}

// NewWatcher creates a new watcher without any subscriber.
func NewWatcher() *Watcher {
	return &Watcher{
		watches: make(map[*watch]struct{}),
	}
}

// Watch returns a channel populated with the events notified until the context
// is done.
func (w *Watcher) Watch(ctx context.Context) <-chan Event {
	wt := &watch{
		ctx:    ctx,
		events: make(chan Event, 1),
	}

	w.Lock()
	w.watches[wt] = struct{}{}
	w.Unlock()

	go func() {
		<-ctx.Done()

		w.Lock()
		delete(w.watches, wt)
		w.Unlock()
	}()

	return wt.events
}

// Len returns the number of active watchers.
func (w *Watcher) Len() int {
	w.Lock()
	defer w.Unlock()

	return len(w.watches)
}

// Notify delivers the event to every watcher, one after each other.
func (w *Watcher) Notify(evt Event) {
	w.Lock()
	watches := make([]*watch, 0, len(w.watches))
	for wt := range w.watches {
		watches = append(watches, wt)
	}
	w.Unlock()

	for _, wt := range watches {
		select {
		case wt.events <- evt:
		case <-wt.ctx.Done():
		}
	}
}
