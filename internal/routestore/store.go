// Package routestore owns completed routes, the active draft, edit drafts,
// undo history and the outbound sync queue.
//
// Every mutation updates the in-memory copy first, then persists it through
// the kv facade, mirrors a snapshot to the background channel and notifies
// subscribers. A failed write is logged by the facade and does not roll the
// mutation back.
package routestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"backend-triplog/internal/kv"
	"backend-triplog/internal/route"
)

const (
	KeyRoutes      = "triplog.routes"
	KeyActiveDraft = "triplog.activeDraft"
	KeyEditDrafts  = "triplog.editDrafts"
	KeyUndo        = "triplog.undoStates"
	KeySyncQueue   = "triplog.syncQueue"
)

// Mirror is the background channel as seen by the store.
type Mirror interface {
	MirrorState(state route.State)
	RequestState(ctx context.Context) *route.State
	RegisterSync(ctx context.Context) bool
}

type EventKind string

const (
	EventChange     EventKind = "change"
	EventSyncQueued EventKind = "sync-queued"
)

type Event struct {
	Kind  EventKind
	Route *route.Route
	Task  *route.SyncTask
}

type SetOptions struct {
	SkipSyncEnqueue bool
}

type Store struct {
	// mirrorMu spans snapshot and MirrorState so snapshots reach the
	// mirror in the order they were taken. Acquired before mu.
	mirrorMu sync.Mutex
	mu       sync.Mutex
	kv     *kv.Store
	mirror Mirror
	now    func() time.Time

	routes     []route.Route
	draft      *route.Route
	editDrafts map[string]route.MetadataPatch
	undo       map[string]route.UndoState
	queue      []route.SyncTask

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads every collection from the facade. mirror may be nil.
func New(store *kv.Store, mirror Mirror, opts ...Option) *Store {
	s := &Store{
		kv:        store,
		mirror:    mirror,
		now:       time.Now,
		listeners: map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes = kv.Get[[]route.Route](store, KeyRoutes, nil)
	s.draft = kv.Get[*route.Route](store, KeyActiveDraft, nil)
	s.editDrafts = kv.Get(store, KeyEditDrafts, map[string]route.MetadataPatch{})
	s.undo = kv.Get(store, KeyUndo, map[string]route.UndoState{})
	s.queue = kv.Get[[]route.SyncTask](store, KeySyncQueue, nil)
	if s.editDrafts == nil {
		s.editDrafts = map[string]route.MetadataPatch{}
	}
	if s.undo == nil {
		s.undo = map[string]route.UndoState{}
	}
	return s
}

// Subscribe registers fn for every event and returns a function removing it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Routes returns completed routes, most recent start first. Equal start
// times keep insertion order.
func (s *Store) Routes() []route.Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]route.Route, 0, len(s.routes))
	for i := range s.routes {
		r := &s.routes[i]
		if r.IsActive() || (s.draft != nil && s.draft.ID == r.ID) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt > out[j].StartAt })
	return out
}

func (s *Store) Route(id string) (route.Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return *s.routes[i].Clone(), true
	}
	return route.Route{}, false
}

// UpsertRoute inserts r or replaces the route with the same id in place.
func (s *Store) UpsertRoute(r route.Route) {
	stored := r.Clone()

	s.mutate(func() []Event {
		if i := s.indexLocked(r.ID); i >= 0 {
			s.routes[i] = *stored
		} else {
			s.routes = append(s.routes, *stored)
		}
		s.kv.Set(KeyRoutes, s.routes)
		task := s.enqueueLocked(route.SyncTask{Type: route.SyncUpsert, RouteID: r.ID, Route: stored.Clone()})
		return []Event{
			{Kind: EventSyncQueued, Task: &task},
			{Kind: EventChange, Route: stored.Clone()},
		}
	})
}

// SetRoutes replaces the whole collection.
func (s *Store) SetRoutes(routes []route.Route, opts SetOptions) {
	s.mutate(func() []Event {
		return s.setRoutesLocked(routes, opts)
	})
}

// RemoveRoute drops the route and queues an explicit delete task.
func (s *Store) RemoveRoute(id string) {
	s.mutate(func() []Event {
		kept := make([]route.Route, 0, len(s.routes))
		var removed *route.Route
		for i := range s.routes {
			if s.routes[i].ID == id {
				removed = s.routes[i].Clone()
				continue
			}
			kept = append(kept, s.routes[i])
		}
		events := s.setRoutesLocked(kept, SetOptions{})
		task := s.enqueueLocked(route.SyncTask{Type: route.SyncDelete, RouteID: id})
		return append(events, Event{Kind: EventSyncQueued, Task: &task}, Event{Kind: EventChange, Route: removed})
	})
}

func (s *Store) ActiveDraft() *route.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// SaveActiveDraft persists the in-progress route; nil clears it. Drafts are
// mirrored but never sync-queued.
func (s *Store) SaveActiveDraft(r *route.Route) {
	s.mutate(func() []Event {
		s.draft = r.Clone()
		if s.draft == nil {
			s.kv.Remove(KeyActiveDraft)
		} else {
			s.kv.Set(KeyActiveDraft, s.draft)
		}
		return []Event{{Kind: EventChange, Route: r.Clone()}}
	})
}

func (s *Store) EditDraft(id string) (route.MetadataPatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.editDrafts[id]
	return p.Clone(), ok
}

// SetEditDraft stores a pending metadata patch for id; nil deletes it.
func (s *Store) SetEditDraft(id string, patch *route.MetadataPatch) {
	s.mutate(func() []Event {
		if patch == nil {
			delete(s.editDrafts, id)
		} else {
			s.editDrafts[id] = patch.Clone()
		}
		s.kv.Set(KeyEditDrafts, s.editDrafts)
		return []Event{{Kind: EventChange}}
	})
}

func (s *Store) UndoState(id string) route.UndoState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo[id].Clone()
}

// SaveUndoState stores both stacks for id, each bounded to MaxUndoDepth.
func (s *Store) SaveUndoState(id string, state route.UndoState) {
	s.mutate(func() []Event {
		s.undo[id] = state.Clone().Trim()
		s.kv.Set(KeyUndo, s.undo)
		return []Event{{Kind: EventChange}}
	})
}

// EnqueueSync appends a timestamped task and asks the agent to retry on
// reconnect.
func (s *Store) EnqueueSync(task route.SyncTask) {
	s.mutate(func() []Event {
		queued := s.enqueueLocked(task)
		return []Event{{Kind: EventSyncQueued, Task: &queued}}
	})
}

func (s *Store) SyncQueue() []route.SyncTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]route.SyncTask, len(s.queue))
	for i, t := range s.queue {
		out[i] = t.Clone()
	}
	return out
}

// MarkSynced removes every queued task for which match returns true and
// reports how many were removed.
func (s *Store) MarkSynced(match func(route.SyncTask) bool) int {
	var removed int
	s.mutate(func() []Event {
		kept := s.queue[:0:0]
		for _, t := range s.queue {
			if !match(t) {
				kept = append(kept, t)
			}
		}
		removed = len(s.queue) - len(kept)
		s.queue = kept
		s.kv.Set(KeySyncQueue, s.queue)
		return []Event{{Kind: EventChange}}
	})
	return removed
}

// FlushSyncQueue clears the queue unconditionally.
func (s *Store) FlushSyncQueue() int {
	return s.MarkSynced(func(route.SyncTask) bool { return true })
}

// Reconnect runs the generic back-online sequence: register background
// sync, treat queued work as flushed, then reconcile with the agent.
func (s *Store) Reconnect(ctx context.Context) int {
	if s.mirror != nil {
		s.mirror.RegisterSync(ctx)
	}
	flushed := s.FlushSyncQueue()
	s.RestoreFromBackground(ctx)
	return flushed
}

// RestoreFromBackground adopts the agent's copy of each collection that is
// empty locally. Non-empty local collections are never overwritten.
func (s *Store) RestoreFromBackground(ctx context.Context) bool {
	if s.mirror == nil {
		return false
	}
	remote := s.mirror.RequestState(ctx)
	if remote == nil || remote.IsEmpty() {
		return false
	}
	theirs := remote.Clone()

	s.mu.Lock()
	adopted := false
	if len(s.routes) == 0 && len(theirs.Routes) > 0 {
		s.routes = theirs.Routes
		s.kv.Set(KeyRoutes, s.routes)
		adopted = true
	}
	if s.draft == nil && theirs.ActiveDraft != nil {
		s.draft = theirs.ActiveDraft
		s.kv.Set(KeyActiveDraft, s.draft)
		adopted = true
	}
	if len(s.editDrafts) == 0 && len(theirs.EditDrafts) > 0 {
		s.editDrafts = theirs.EditDrafts
		s.kv.Set(KeyEditDrafts, s.editDrafts)
		adopted = true
	}
	if len(s.undo) == 0 && len(theirs.Undo) > 0 {
		s.undo = theirs.Undo
		s.kv.Set(KeyUndo, s.undo)
		adopted = true
	}
	if len(s.queue) == 0 && len(theirs.SyncQueue) > 0 {
		s.queue = theirs.SyncQueue
		s.kv.Set(KeySyncQueue, s.queue)
		adopted = true
	}
	s.mu.Unlock()

	if adopted {
		s.emit(Event{Kind: EventChange})
	}
	return adopted
}

// Snapshot returns a deep copy of every collection.
func (s *Store) Snapshot() route.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) setRoutesLocked(routes []route.Route, opts SetOptions) []Event {
	s.routes = route.CloneRoutes(routes)
	if s.routes == nil {
		s.routes = []route.Route{}
	}
	s.kv.Set(KeyRoutes, s.routes)

	events := []Event{{Kind: EventChange}}
	if !opts.SkipSyncEnqueue {
		ids := make([]string, 0, len(s.routes))
		for _, r := range s.routes {
			ids = append(ids, r.ID)
		}
		task := s.enqueueLocked(route.SyncTask{Type: route.SyncReplace, RouteIDs: ids})
		events = append([]Event{{Kind: EventSyncQueued, Task: &task}}, events...)
	}
	return events
}

func (s *Store) enqueueLocked(task route.SyncTask) route.SyncTask {
	task = task.Clone()
	task.QueuedAt = s.now().UnixMilli()
	s.queue = append(s.queue, task)
	s.kv.Set(KeySyncQueue, s.queue)
	return task.Clone()
}

func (s *Store) indexLocked(id string) int {
	for i := range s.routes {
		if s.routes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() route.State {
	return route.State{
		Routes:      s.routes,
		ActiveDraft: s.draft,
		EditDrafts:  s.editDrafts,
		Undo:        s.undo,
		SyncQueue:   s.queue,
	}.Clone()
}

// mutate applies fn under the store lock, mirrors the resulting snapshot
// and then notifies subscribers outside both locks.
func (s *Store) mutate(fn func() []Event) {
	s.mirrorMu.Lock()
	s.mu.Lock()
	events := fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.mirror != nil {
		s.mirror.MirrorState(snap)
	}
	s.mirrorMu.Unlock()

	queued := false
	for _, e := range events {
		if e.Kind == EventSyncQueued {
			queued = true
		}
	}
	if s.mirror != nil && queued {
		s.mirror.RegisterSync(context.Background())
	}
	s.emit(events...)
}

func (s *Store) emit(events ...Event) {
	s.listenersMu.Lock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, e := range events {
		for _, fn := range listeners {
			fn(e)
		}
	}
}
