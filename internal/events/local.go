package events

import (
	"context"
	"sync"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Published is one event captured by a MemoryPublisher.
type Published struct {
	Topic string
	Event any
}

// MemoryPublisher keeps published events in memory. Tests use it to assert
// on what a component announced.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Published
	err    error
}

// FailWith makes later Publish calls return err without recording.
func (m *MemoryPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryPublisher) Publish(ctx context.Context, topic string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, Published{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.events...)
}

// Topic returns the events published on one topic.
func (m *MemoryPublisher) Topic(topic string) []Published {
	var out []Published
	for _, p := range m.Events() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MemoryPublisher) Close() error {
	return nil
}
