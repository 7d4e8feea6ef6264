package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	// Publish JSON-encodes message onto channel. Raw []byte payloads are sent as is.
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe delivers payloads until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
