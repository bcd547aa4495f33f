package engine

import (
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/logging"
)

// Topic names a stream of engine notifications.
type Topic string

const (
	// TopicTasks carries task-graph changes.
	TopicTasks Topic = "tasks"
	// TopicAgents carries agent-state changes.
	TopicAgents Topic = "agents"
	// TopicCoordination carries lock, conflict, and deadlock events.
	TopicCoordination Topic = "coordination"
	// TopicEscalations carries escalation lifecycle events.
	TopicEscalations Topic = "escalations"
	// TopicProgress carries recomputed progress summaries.
	TopicProgress Topic = "progress"
)

// Message is one notification delivered to subscribers.
type Message struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

const subscriberBuffer = 64

// Bus fans component notifications out to subscribers by topic. Slow
// subscribers drop messages rather than stall the engine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Message
	all    []chan Message
	closed bool

	log *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Nop()
	}
	return &Bus{subs: make(map[Topic][]chan Message), log: log}
}

// Subscribe returns a channel receiving messages on one topic.
func (b *Bus) Subscribe(topic Topic) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, subscriberBuffer)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving every message.
func (b *Bus) SubscribeAll() <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, subscriberBuffer)
	b.all = append(b.all, ch)
	return ch
}

// Publish delivers a payload to the topic's subscribers and to the
// subscribe-all channels. Never blocks.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	msg := Message{Topic: topic, Payload: payload, Timestamp: time.Now()}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			b.log.Warnf("bus", "subscriber on %s full, dropped message", topic)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- msg:
		default:
			b.log.Warnf("bus", "subscribe-all channel full, dropped message")
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}
