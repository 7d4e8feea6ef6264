// Package realtime fans queue updates out to websocket observers. Events
// travel from the notifier through the message broker so that every API
// instance delivers them to its own clients.
package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

// Topic prefixes observers can join.
const (
	TopicOrganization = "org"
	TopicService      = "service"
	TopicResource     = "resource"
)

func Topic(prefix string, id uuid.UUID) string {
	return prefix + ":" + id.String()
}

// ValidTopic reports whether topic is a known prefix followed by a UUID.
func ValidTopic(topic string) bool {
	prefix, id, ok := strings.Cut(topic, ":")
	if !ok {
		return false
	}
	switch prefix {
	case TopicOrganization, TopicService, TopicResource:
	default:
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Hub tracks which clients joined which topics. It never blocks on a
// client: a client whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}

	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewHub(m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
		metrics: m,
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = make(map[string]struct{})
	h.metrics.RealtimeClients.Inc()
}

// Unregister drops the client from every topic and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for topic := range joined {
		h.removeLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RealtimeClients.Dec()
}

func (h *Hub) Join(c *Client, topic string) bool {
	if !ValidTopic(topic) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	joined[topic] = struct{}{}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	return true
}

func (h *Hub) Leave(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if joined, ok := h.clients[c]; ok {
		delete(joined, topic)
		h.removeLocked(c, topic)
	}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	members := h.topics[topic]
	delete(members, c)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// Broadcast sends payload once to every client that joined at least one of
// topics and returns the number of clients reached.
func (h *Hub) Broadcast(topics []string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	delivered := 0
	for _, topic := range topics {
		for c := range h.topics[topic] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.send <- payload:
				delivered++
				h.metrics.BroadcastsDelivered.Inc()
			default:
				h.metrics.BroadcastsDropped.WithLabelValues("client").Inc()
				h.log.Warn("dropping queue update for slow client", "client_id", c.id)
			}
		}
	}
	return delivered
}

// Subscribers returns how many clients joined topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
