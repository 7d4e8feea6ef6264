package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

// EventName is the message name websocket clients receive.
const EventName = "queue_update"

// Envelope is what travels over the broker channel.
type Envelope struct {
	Topics []string          `json:"topics"`
	Event  *model.QueueEvent `json:"event"`
}

// Message is what a websocket client receives.
type Message struct {
	Event string            `json:"event"`
	Data  *model.QueueEvent `json:"data"`
}

// Topics lists the topics interested in event.
func Topics(event *model.QueueEvent) []string {
	topics := []string{
		Topic(TopicOrganization, event.OrganizationID),
		Topic(TopicService, event.ServiceID),
	}
	if event.ResourceID != nil {
		topics = append(topics, Topic(TopicResource, *event.ResourceID))
	}
	return topics
}

// Notifier accepts queue events from request goroutines and forwards them
// to the broker in the background. Publish never blocks: when the buffer is
// full the event is dropped.
type Notifier struct {
	broker  messaging.Broker
	channel string
	events  chan *model.QueueEvent
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewNotifier(broker messaging.Broker, channel string, buffer int, m *metrics.Metrics, log *logger.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		broker:  broker,
		channel: channel,
		events:  make(chan *model.QueueEvent, buffer),
		metrics: m,
		log:     log,
	}
}

func (n *Notifier) Publish(event *model.QueueEvent) {
	select {
	case n.events <- event:
	default:
		n.metrics.BroadcastsDropped.WithLabelValues("notifier").Inc()
		n.log.Warn("dropping queue update, notifier buffer full",
			"type", string(event.Type), "partition", event.PartitionKey)
	}
}

// Run forwards buffered events until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.events:
			env := Envelope{Topics: Topics(event), Event: event}
			if err := n.broker.Publish(ctx, n.channel, env); err != nil {
				n.metrics.BroadcastsDropped.WithLabelValues("broker").Inc()
				n.log.Error(err, "failed to publish queue update",
					"type", string(event.Type), "partition", event.PartitionKey)
			}
		}
	}
}

// Relay delivers envelopes from the broker channel to the hub's clients
// until ctx is done.
func Relay(ctx context.Context, broker messaging.Broker, channel string, hub *Hub, log *logger.Logger) error {
	payloads, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	for payload := range payloads {
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == nil {
			log.Warn("discarding malformed queue update", "channel", channel)
			continue
		}
		msg, err := json.Marshal(Message{Event: EventName, Data: env.Event})
		if err != nil {
			log.Error(err, "failed to encode queue update")
			continue
		}
		hub.Broadcast(env.Topics, msg)
	}
	return ctx.Err()
}
