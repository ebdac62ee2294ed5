package notify

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "reliefmap/internal/logger"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so notices reach a
// session whichever process holds its socket.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan Notice]*redis.PubSub
}

func NewRedisBrokerClient(rdb *redis.Client) *RedisBroker {
    return &RedisBroker{rdb: rdb, subs: map[chan Notice]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(topic string) chan Notice {
    ch := make(chan Notice, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(topic))
    // initial consume to ensure subscription
    if _, err := ps.Receive(ctx); err != nil {
        logger.L().Warn("notice_subscribe_error", "topic", topic, "err", err)
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var n Notice
            if err := json.Unmarshal([]byte(msg.Payload), &n); err == nil {
                select { case ch <- n: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the PubSub; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(topic string, ch chan Notice) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(topic string, n Notice) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(n)
    if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
        logger.L().Warn("notice_publish_error", "topic", topic, "err", err)
    }
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) chanName(topic string) string { return "reliefmap:notices:" + topic }
