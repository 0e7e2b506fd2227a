package mirror

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// AgentChannel carries page → agent envelopes.
func AgentChannel(namespace string) string {
	return "triplog:" + namespace + ":agent"
}

// PageChannel carries agent → page envelopes.
func PageChannel(namespace string) string {
	return "triplog:" + namespace + ":page"
}

// SyncTagsKey is the set of registered sync tags the agent sweeps.
func SyncTagsKey(namespace string) string {
	return "triplog:" + namespace + ":sync-tags"
}

type RedisController struct {
	client    *redis.Client
	namespace string
}

func NewRedisController(client *redis.Client, namespace string) *RedisController {
	return &RedisController{client: client, namespace: namespace}
}

func (r *RedisController) Post(ctx context.Context, data []byte) error {
	return r.client.Publish(ctx, AgentChannel(r.namespace), data).Err()
}

func (r *RedisController) RegisterSync(ctx context.Context, tag string) error {
	return r.client.SAdd(ctx, SyncTagsKey(r.namespace), tag).Err()
}

// Transport attaches a RedisController to a Channel while Redis is reachable
// and feeds agent replies back into it.
type Transport struct {
	channel      *Channel
	client       *redis.Client
	pingInterval time.Duration
}

func NewTransport(ch *Channel, client *redis.Client, pingInterval time.Duration) *Transport {
	if pingInterval <= 0 {
		pingInterval = 5 * time.Second
	}
	return &Transport{channel: ch, client: client, pingInterval: pingInterval}
}

// Run blocks until ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	ns := t.channel.Namespace()
	pubsub := t.client.Subscribe(ctx, PageChannel(ns))
	defer pubsub.Close()

	// the first Receive confirms the subscription; only then is the agent
	// able to answer, so attach afterwards
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("mirror subscribe failed: %v", err)
	} else {
		t.channel.Attach(NewRedisController(t.client, ns))
	}

	inbound := pubsub.Channel()
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.channel.Detach()
			return nil
		case msg, ok := <-inbound:
			if !ok {
				t.channel.Detach()
				return nil
			}
			t.channel.HandleMessage([]byte(msg.Payload))
		case <-ticker.C:
			t.checkController(ctx, ns)
		}
	}
}

func (t *Transport) checkController(ctx context.Context, ns string) {
	pingCtx, cancel := context.WithTimeout(ctx, t.pingInterval)
	defer cancel()

	err := t.client.Ping(pingCtx).Err()
	attached := t.channel.Attached()
	switch {
	case err != nil && attached:
		log.Printf("mirror redis unreachable: %v", err)
		t.channel.Detach()
	case err == nil && !attached:
		log.Printf("mirror redis reachable again, reattaching")
		t.channel.Attach(NewRedisController(t.client, ns))
	}
}
