package device

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	crashListCap   = 200
	recentCrashCap = 50
)

type Report struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
	At      int64          `json:"at"`
}

// CrashLog records captured errors in memory and, when a client is set,
// relays them to a capped Redis list.
type CrashLog struct {
	redis *redis.Client
	key   string
	now   func() time.Time

	mu     sync.Mutex
	recent []Report
}

func CrashKey(namespace string) string {
	return "triplog:" + namespace + ":crashes"
}

func NewCrashLog(client *redis.Client, namespace string) *CrashLog {
	return &CrashLog{redis: client, key: CrashKey(namespace), now: time.Now}
}

func (c *CrashLog) Capture(err error, fields map[string]any) {
	if err == nil {
		return
	}
	report := Report{Error: err.Error(), Context: fields, At: c.now().UnixMilli()}
	log.Printf("crash: %s %v", report.Error, fields)

	c.mu.Lock()
	c.recent = append(c.recent, report)
	if len(c.recent) > recentCrashCap {
		c.recent = c.recent[len(c.recent)-recentCrashCap:]
	}
	c.mu.Unlock()

	if c.redis != nil {
		c.relay(report)
	}
}

func (c *CrashLog) Recent() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Report(nil), c.recent...)
}

func (c *CrashLog) relay(report Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("crash encode error: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.redis.TxPipeline()
	pipe.LPush(ctx, c.key, payload)
	pipe.LTrim(ctx, c.key, 0, crashListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("crash relay error: %v", err)
	}
}
