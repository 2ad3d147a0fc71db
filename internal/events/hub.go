package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tableside/internal/metrics"
	"tableside/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrSubscriberClosed = errors.New("subscriber closed")

// PlaceTopic is the group every staff connection of a place joins.
func PlaceTopic(placeID int64) string {
	return fmt.Sprintf("place:%d", placeID)
}

// Subscriber is one connection's bounded notification queue.
type Subscriber struct {
	id     string
	ch     chan *models.TableNotification
	topics map[string]struct{}
	closed bool
}

func (s *Subscriber) ID() string {
	return s.id
}

// C is closed when the hub drops or removes the subscriber.
func (s *Subscriber) C() <-chan *models.TableNotification {
	return s.ch
}

// Hub fans notifications out to subscribers grouped by topic.
// Publish never blocks; a subscriber whose queue is full is dropped.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	buffer int
	logger *zerolog.Logger
}

func NewHub(buffer int, logger *zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = models.DefaultSubscriberBuffer
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		id:     uuid.NewString(),
		ch:     make(chan *models.TableNotification, h.buffer),
		topics: make(map[string]struct{}),
	}
}

func (h *Hub) Join(s *Subscriber, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	group, ok := h.topics[topic]
	if !ok {
		group = make(map[*Subscriber]struct{})
		h.topics[topic] = group
	}
	group[s] = struct{}{}
	s.topics[topic] = struct{}{}
	return nil
}

func (h *Hub) Leave(s *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, topic)
}

func (h *Hub) leaveLocked(s *Subscriber, topic string) {
	if group, ok := h.topics[topic]; ok {
		delete(group, s)
		if len(group) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// Remove detaches s from every topic and closes its channel. It returns once
// no further sends to s are possible.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	if s.closed {
		return
	}
	for topic := range s.topics {
		h.leaveLocked(s, topic)
	}
	s.closed = true
	close(s.ch)
}

func (h *Hub) Publish(_ context.Context, topic string, n *models.TableNotification) error {
	var full []*Subscriber

	h.mu.RLock()
	for s := range h.topics[topic] {
		select {
		case s.ch <- n:
		default:
			full = append(full, s)
		}
	}
	h.mu.RUnlock()

	if len(full) == 0 {
		return nil
	}

	h.mu.Lock()
	for _, s := range full {
		if s.closed {
			continue
		}
		h.removeLocked(s)
		metrics.IncDropped()
		h.logger.Warn().Str("subscriber", s.id).Str("topic", topic).Msg("dropping slow subscriber")
	}
	h.mu.Unlock()
	return nil
}

// Subscribers reports how many subscribers are joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
