package notify

import (
    "sync"
)

// EventBroker fans notices out to subscribers of a topic.
type EventBroker interface {
    Subscribe(topic string) chan Notice
    Unsubscribe(topic string, ch chan Notice)
    Publish(topic string, n Notice)
}

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan Notice]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Notice]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Notice {
    ch := make(chan Notice, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Notice]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Notice) {
    b.mu.Lock()
    m := b.subs[topic]
    _, ok := m[ch]
    if ok {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, topic) }
    }
    b.mu.Unlock()
    if ok { close(ch) }
}

// Publish never blocks; a subscriber with a full buffer misses the notice.
func (b *Broker) Publish(topic string, n Notice) {
    b.mu.Lock()
    for ch := range b.subs[topic] {
        select { case ch <- n: default: }
    }
    b.mu.Unlock()
}
