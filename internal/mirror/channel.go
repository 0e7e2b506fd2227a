// Package mirror relays state to the background agent. Messages posted while
// no controller is attached wait in an ordered outbox and are flushed as soon
// as one attaches.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-triplog/internal/route"
)

const DefaultRequestTimeout = 3 * time.Second

// Controller delivers encoded envelopes to the background agent.
type Controller interface {
	Post(ctx context.Context, data []byte) error
}

// Registrar is implemented by controllers that support retry-on-reconnect
// sync registration.
type Registrar interface {
	RegisterSync(ctx context.Context, tag string) error
}

type pendingRequest struct {
	resolve chan *route.State
}

type Channel struct {
	namespace string
	timeout   time.Duration
	syncTag   string

	outMu      sync.Mutex
	controller Controller
	pending    [][]byte

	reqMu    sync.Mutex
	requests map[string]*pendingRequest
	seq      uint64
}

type Option func(*Channel)

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithSyncTag(tag string) Option {
	return func(c *Channel) {
		if tag != "" {
			c.syncTag = tag
		}
	}
}

func NewChannel(namespace string, opts ...Option) *Channel {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Channel{
		namespace: namespace,
		timeout:   DefaultRequestTimeout,
		syncTag:   "triplog-routes",
		requests:  map[string]*pendingRequest{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Namespace() string {
	return c.namespace
}

// Attach sets the delivery target and flushes the outbox in order.
func (c *Channel) Attach(ctrl Controller) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.controller = ctrl
	c.flushLocked()
}

func (c *Channel) Detach() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.controller = nil
}

func (c *Channel) Attached() bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.controller != nil
}

// Pending reports how many messages wait for a controller.
func (c *Channel) Pending() int {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return len(c.pending)
}

// MirrorState pushes a snapshot. The state is encoded before returning, so
// later mutation of the caller's objects is not observed by the agent.
func (c *Channel) MirrorState(state route.State) {
	data, err := Encode(c.namespace, StateUpdate{State: state})
	if err != nil {
		log.Printf("mirror encode state failed: %v", err)
		return
	}
	c.send(data)
}

// RequestState asks the agent for its copy of the state. It returns nil when
// no response arrives within the timeout; that means nothing to reconcile.
// A request still sitting in the outbox at that point is withdrawn.
func (c *Channel) RequestState(ctx context.Context) *route.State {
	c.reqMu.Lock()
	c.seq++
	id := fmt.Sprintf("req-%d-%d", time.Now().UnixMilli(), c.seq)
	req := &pendingRequest{resolve: make(chan *route.State, 1)}
	c.requests[id] = req
	c.reqMu.Unlock()

	data, err := Encode(c.namespace, StateRequest{RequestID: id})
	if err != nil {
		c.forget(id)
		return nil
	}
	c.send(data)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case state := <-req.resolve:
		return state
	case <-timer.C:
	case <-ctx.Done():
	}
	c.forget(id)
	c.unsend(data)

	// a response may have won the race with the timer
	select {
	case state := <-req.resolve:
		return state
	default:
		return nil
	}
}

// RegisterSync asks the controller to retry sync when connectivity returns.
func (c *Channel) RegisterSync(ctx context.Context) bool {
	c.outMu.Lock()
	ctrl := c.controller
	c.outMu.Unlock()

	registrar, ok := ctrl.(Registrar)
	if !ok {
		return false
	}
	if err := registrar.RegisterSync(ctx, c.syncTag); err != nil {
		log.Printf("mirror sync registration failed: %v", err)
		return false
	}
	return true
}

// HandleMessage processes one inbound envelope from the agent.
func (c *Channel) HandleMessage(data []byte) {
	msg, err := Decode(c.namespace, data)
	if err != nil {
		if !errors.Is(err, ErrForeignNamespace) {
			log.Printf("mirror dropped message: %v", err)
		}
		return
	}

	switch m := msg.(type) {
	case StateResponse:
		c.reqMu.Lock()
		req, ok := c.requests[m.RequestID]
		delete(c.requests, m.RequestID)
		c.reqMu.Unlock()
		if ok {
			req.resolve <- m.State
		}
	case SyncError:
		log.Printf("background sync error: %s", m.Error)
	case SyncComplete:
		log.Printf("background sync complete: %d processed", m.Processed)
	}
}

func (c *Channel) forget(id string) {
	c.reqMu.Lock()
	delete(c.requests, id)
	c.reqMu.Unlock()
}

// unsend drops data from the outbox if it was never delivered.
func (c *Channel) unsend(data []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	for i, queued := range c.pending {
		if bytes.Equal(queued, data) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

func (c *Channel) send(data []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.pending = append(c.pending, data)
	c.flushLocked()
}

func (c *Channel) flushLocked() {
	if c.controller == nil {
		return
	}
	for len(c.pending) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.controller.Post(ctx, c.pending[0])
		cancel()
		if err != nil {
			log.Printf("mirror post failed, detaching controller: %v", err)
			c.controller = nil
			return
		}
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	c.pending = nil
}
