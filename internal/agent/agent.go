// Package agent is the background context the foreground mirrors its state
// to. It keeps the latest snapshot for state requests and archives every
// sync task it has seen in a snapshot.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"backend-triplog/internal/mirror"
	"backend-triplog/internal/route"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Archiver is where synced routes end up.
type Archiver interface {
	SaveRoute(ctx context.Context, r route.Route) error
	DeleteRoute(ctx context.Context, id string) error
	ReplaceRoutes(ctx context.Context, ids []string, routes []route.Route) error
}

func StateKey(namespace string) string {
	return "triplog:" + namespace + ":state"
}

type Agent struct {
	namespace string
	redis     *redis.Client
	archive   Archiver

	mu        sync.Mutex
	state     *route.State
	watermark int64
	edge      map[string]struct{}
	// pending holds every task seen in a snapshot and not yet archived,
	// so a later snapshot with a flushed queue does not lose it.
	pending []route.SyncTask

	syncMu sync.Mutex
}

func New(namespace string, client *redis.Client, archive Archiver) *Agent {
	return &Agent{namespace: namespace, redis: client, archive: archive, edge: map[string]struct{}{}}
}

// Load restores the last persisted snapshot. A missing key is not an error.
func (a *Agent) Load(ctx context.Context) error {
	data, err := a.redis.Get(ctx, StateKey(a.namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var state route.State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode agent state: %w", err)
	}
	a.mu.Lock()
	a.state = &state
	a.recordLocked(state.SyncQueue)
	a.mu.Unlock()
	return nil
}

func (a *Agent) State() *route.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		return nil
	}
	s := a.state.Clone()
	return &s
}

// Run consumes page messages until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	pubsub := a.redis.Subscribe(ctx, mirror.AgentChannel(a.namespace))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("agent subscribe: %w", err)
	}
	log.Printf("agent listening on %s", mirror.AgentChannel(a.namespace))

	inbound := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			a.Handle(ctx, []byte(msg.Payload))
		}
	}
}

// Handle processes one envelope. Replies go to the page channel; messages
// that fail validation are dropped.
func (a *Agent) Handle(ctx context.Context, data []byte) {
	msg, err := mirror.Decode(a.namespace, data)
	if err != nil {
		if !errors.Is(err, mirror.ErrForeignNamespace) {
			log.Printf("agent dropped message: %v", err)
		}
		return
	}

	switch m := msg.(type) {
	case mirror.StateUpdate:
		a.mu.Lock()
		state := m.State.Clone()
		a.state = &state
		a.recordLocked(state.SyncQueue)
		a.mu.Unlock()
		a.persist(ctx, m.State)
	case mirror.StateRequest:
		a.reply(ctx, mirror.StateResponse{RequestID: m.RequestID, State: a.State()})
	}
}

// Pending returns the tasks recorded from snapshots and not yet archived.
func (a *Agent) Pending() []route.SyncTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]route.SyncTask, len(a.pending))
	for i, t := range a.pending {
		out[i] = t.Clone()
	}
	return out
}

// Sync archives pending tasks and reports the outcome to the page. Tasks
// are processed in the order they were first seen; the first failure stops
// the run and is retried next time.
func (a *Agent) Sync(ctx context.Context) (int, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	pending := a.Pending()
	if len(pending) == 0 {
		return 0, nil
	}
	var state route.State
	if s := a.State(); s != nil {
		state = *s
	}

	processed := 0
	for _, task := range pending {
		if !a.due(task) {
			continue
		}
		if err := a.apply(ctx, state, task); err != nil {
			a.reply(ctx, mirror.SyncError{Error: err.Error()})
			return processed, err
		}
		a.markDone(task)
		processed++
	}
	if processed > 0 {
		a.reply(ctx, mirror.SyncComplete{Processed: processed})
	}
	return processed, nil
}

// Sweep runs Sync when the page registered for background sync and clears
// the registrations once it succeeds.
func (a *Agent) Sweep(ctx context.Context) {
	key := mirror.SyncTagsKey(a.namespace)
	tags, err := a.redis.SMembers(ctx, key).Result()
	if err != nil {
		log.Printf("agent sweep read error: %v", err)
		return
	}
	if len(tags) == 0 {
		return
	}
	n, err := a.Sync(ctx)
	if err != nil {
		log.Printf("agent sync error after %d tasks: %v", n, err)
		return
	}
	members := make([]any, len(tags))
	for i, t := range tags {
		members[i] = t
	}
	if err := a.redis.SRem(ctx, key, members...).Err(); err != nil {
		log.Printf("agent sweep clear error: %v", err)
	}
	log.Printf("agent sweep %s: %d tasks", strings.Join(tags, ","), n)
}

// Schedule returns a stopped cron running Sweep on spec.
func (a *Agent) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { a.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("agent schedule %q: %w", spec, err)
	}
	return c, nil
}

func (a *Agent) apply(ctx context.Context, state route.State, task route.SyncTask) error {
	switch task.Type {
	case route.SyncUpsert:
		r := task.Route
		if r == nil {
			r = findRoute(state.Routes, task.RouteID)
		}
		if r == nil {
			log.Printf("agent skipping upsert of unknown route %s", task.RouteID)
			return nil
		}
		return a.archive.SaveRoute(ctx, *r)
	case route.SyncReplace:
		keep := make([]route.Route, 0, len(task.RouteIDs))
		for _, id := range task.RouteIDs {
			if r := findRoute(state.Routes, id); r != nil {
				keep = append(keep, *r)
			}
		}
		return a.archive.ReplaceRoutes(ctx, task.RouteIDs, keep)
	case route.SyncDelete:
		return a.archive.DeleteRoute(ctx, task.RouteID)
	default:
		log.Printf("agent skipping task of unknown type %q", task.Type)
		return nil
	}
}

// recordLocked appends tasks from queue that are due and not already
// pending.
func (a *Agent) recordLocked(queue []route.SyncTask) {
	known := make(map[string]struct{}, len(a.pending))
	for _, t := range a.pending {
		known[taskKey(t)] = struct{}{}
	}
	for _, t := range queue {
		k := taskKey(t)
		if _, ok := known[k]; ok || !a.dueLocked(t) {
			continue
		}
		known[k] = struct{}{}
		a.pending = append(a.pending, t.Clone())
	}
}

func (a *Agent) due(task route.SyncTask) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dueLocked(task)
}

// dueLocked reports whether task is newer than the watermark. Tasks sharing
// the watermark timestamp are told apart by their key.
func (a *Agent) dueLocked(task route.SyncTask) bool {
	if task.QueuedAt > a.watermark {
		return true
	}
	if task.QueuedAt < a.watermark {
		return false
	}
	_, seen := a.edge[taskKey(task)]
	return !seen
}

func (a *Agent) markDone(task route.SyncTask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if task.QueuedAt > a.watermark {
		a.watermark = task.QueuedAt
		a.edge = map[string]struct{}{}
	}
	a.edge[taskKey(task)] = struct{}{}
	kept := a.pending[:0]
	for _, t := range a.pending {
		if a.dueLocked(t) {
			kept = append(kept, t)
		}
	}
	a.pending = kept
}

func (a *Agent) persist(ctx context.Context, state route.State) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("agent encode state error: %v", err)
		return
	}
	if err := a.redis.Set(ctx, StateKey(a.namespace), data, 0).Err(); err != nil {
		log.Printf("agent persist state error: %v", err)
	}
}

func (a *Agent) reply(ctx context.Context, msg mirror.Message) {
	data, err := mirror.Encode(a.namespace, msg)
	if err != nil {
		log.Printf("agent encode reply error: %v", err)
		return
	}
	if err := a.redis.Publish(ctx, mirror.PageChannel(a.namespace), data).Err(); err != nil {
		log.Printf("agent publish error: %v", err)
	}
}

func findRoute(routes []route.Route, id string) *route.Route {
	for i := range routes {
		if routes[i].ID == id {
			return routes[i].Clone()
		}
	}
	return nil
}

func taskKey(t route.SyncTask) string {
	return fmt.Sprintf("%s|%s|%d|%s", t.Type, t.RouteID, t.QueuedAt, strings.Join(t.RouteIDs, ","))
}
