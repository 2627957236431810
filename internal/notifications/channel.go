// Package notifications provides the broadcast channel and its websocket and
// Redis transports.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pulsefeed/internal/models"
	"pulsefeed/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotInitialized is returned when the channel is used before Initialize.
	ErrNotInitialized = &models.AppError{
		Code:    models.CodeNotInitialized,
		Message: "Broadcast channel is not initialized",
	}
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = &models.AppError{
		Code:    models.CodeAlreadyInitialized,
		Message: "Broadcast channel is already initialized",
	}
)

// Transport delivers an encoded frame to the subscribers of topic.
type Transport interface {
	Deliver(ctx context.Context, topic string, frame []byte) error
}

// Frame is the wire envelope every subscriber receives.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EncodeFrame wraps payload in the topic envelope.
func EncodeFrame(topic string, payload any) ([]byte, error) {
	return json.Marshal(Frame{Type: topic, Payload: payload})
}

// Channel is the publish side of the broadcast path. It is bound to exactly
// one Transport for its lifetime.
type Channel struct {
	mu        sync.RWMutex
	transport Transport
}

// NewChannel returns an unbound channel.
func NewChannel() *Channel {
	return &Channel{}
}

// Initialize binds the channel to t. A second call fails with ErrAlreadyInitialized.
func (c *Channel) Initialize(t Transport) error {
	if t == nil {
		return fmt.Errorf("initialize broadcast channel: %w", models.NewValidationError("transport is required"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		return ErrAlreadyInitialized
	}
	c.transport = t
	return nil
}

// Transport returns the bound transport or ErrNotInitialized.
func (c *Channel) Transport() (Transport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return nil, ErrNotInitialized
	}
	return c.transport, nil
}

// Publish encodes payload under topic and hands it to the transport.
// Subscribers that are not attached right now never see the event.
func (c *Channel) Publish(ctx context.Context, topic string, payload any) (err error) {
	ctx, span := observability.StartSpan(ctx, "broadcast.publish", attribute.String("broadcast.topic", topic))
	defer func() {
		if err != nil {
			observability.BroadcastFailures.WithLabelValues(topic).Inc()
		} else {
			observability.BroadcastEvents.WithLabelValues(topic).Inc()
		}
		observability.EndSpan(span, err)
	}()

	t, err := c.Transport()
	if err != nil {
		return err
	}

	frame, err := EncodeFrame(topic, payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", topic, err)
	}
	return t.Deliver(ctx, topic, frame)
}
