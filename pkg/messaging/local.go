package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrBrokerClosed = errors.New("broker closed")

// LocalBroker fans messages out to subscribers inside the current process.
// It backs single-instance deployments and tests; slow subscribers lose
// messages instead of blocking publishers.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	buffer int
	closed bool
}

func NewLocalBroker(buffer int) *LocalBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalBroker{
		subs:   make(map[string]map[chan []byte]struct{}),
		buffer: buffer,
	}
}

func (b *LocalBroker) Publish(_ context.Context, channel string, message interface{}) error {
	payload, err := Encode(message)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[channel][ch]; ok {
			delete(b.subs[channel], ch)
			close(ch)
		}
	}()

	return ch, nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for ch := range subs {
			close(ch)
		}
		delete(b.subs, channel)
	}
	return nil
}

// Encode is the payload encoding every Broker implementation shares.
func Encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return payload, nil
}
