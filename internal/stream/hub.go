package stream

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TopicRoutes receives every store event; each route id is also a topic.
const TopicRoutes = "routes"

type Hub struct {
	redis   *redis.Client
	origin  string
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

type Client struct {
	Topic string
	Send  chan []byte
}

// relayed wraps payloads crossing instances so a hub can skip its own.
type relayed struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		ready := make(chan struct{})
		go h.subscribeRedis(ctx, ready)
		<-ready
	}
	return h
}

// Close stops the Redis relay.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[client.Topic]; ok {
		if _, registered := topicClients[client]; !registered {
			return
		}
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, client.Topic)
		}
		close(client.Send)
	}
}

func (h *Hub) Clients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Broadcast delivers payload to local subscribers of topic and relays it to
// other instances. Slow subscribers drop messages.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.deliver(topic, payload)

	if h.redis != nil {
		wrapped, err := json.Marshal(relayed{Origin: h.origin, Payload: payload})
		if err != nil {
			log.Printf("stream encode error: %v", err)
			return
		}
		if err := h.redis.Publish(context.Background(), redisChannel(topic), wrapped).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	pubsub := h.redis.PSubscribe(ctx, "triplog:*:events")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("stream subscribe error: %v", err)
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env relayed
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Origin == h.origin {
				continue
			}
			h.deliver(topicFromChannel(msg.Channel), env.Payload)
		}
	}
}

func redisChannel(topic string) string {
	return "triplog:" + topic + ":events"
}

func topicFromChannel(ch string) string {
	// triplog:{topic}:events
	const prefix = "triplog:"
	const suffix = ":events"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) || len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
