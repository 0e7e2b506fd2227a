// Package device holds the platform collaborators the recorder consumes when
// it runs as a service: fixes pushed over HTTP, a fixed permission answer,
// wake lock leases and a crash log.
package device

import (
	"sync"

	"backend-triplog/internal/recorder"
)

type positionEvent struct {
	pos recorder.Position
	err error
}

type watcher struct {
	onPosition func(recorder.Position)
	onError    func(error)
	events     chan positionEvent
	done       chan struct{}
}

// PushGeolocator fans pushed fixes out to every armed watch. Each watch
// delivers on its own goroutine, in push order.
type PushGeolocator struct {
	mu       sync.RWMutex
	watchers map[recorder.WatchID]*watcher
	nextID   recorder.WatchID
}

func NewPushGeolocator() *PushGeolocator {
	return &PushGeolocator{watchers: map[recorder.WatchID]*watcher{}}
}

func (g *PushGeolocator) Watch(onPosition func(recorder.Position), onError func(error), _ recorder.WatchOptions) (recorder.WatchID, error) {
	w := &watcher{
		onPosition: onPosition,
		onError:    onError,
		events:     make(chan positionEvent, 64),
		done:       make(chan struct{}),
	}

	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.watchers[id] = w
	g.mu.Unlock()

	go w.run()
	return id, nil
}

func (g *PushGeolocator) ClearWatch(id recorder.WatchID) {
	g.mu.Lock()
	w, ok := g.watchers[id]
	delete(g.watchers, id)
	g.mu.Unlock()
	if ok {
		close(w.done)
	}
}

// Push hands p to every watch and returns how many accepted it. A watch
// whose buffer is full drops the fix.
func (g *PushGeolocator) Push(p recorder.Position) int {
	return g.dispatch(positionEvent{pos: p})
}

func (g *PushGeolocator) PushError(err error) int {
	return g.dispatch(positionEvent{err: err})
}

func (g *PushGeolocator) Watchers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.watchers)
}

func (g *PushGeolocator) dispatch(ev positionEvent) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	delivered := 0
	for _, w := range g.watchers {
		select {
		case w.events <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev := <-w.events:
			if ev.err != nil {
				if w.onError != nil {
					w.onError(ev.err)
				}
				continue
			}
			w.onPosition(ev.pos)
		}
	}
}
