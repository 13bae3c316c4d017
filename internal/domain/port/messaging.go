package port

import (
	"context"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
)

// MessageHandler processes one delivered queue message. A nil return
// acknowledges the message; an error triggers the adapter's nack policy,
// classified by fault kind.
type MessageHandler func(ctx context.Context, msg entity.QueueMessage) error

// MessagePublisher enqueues processing messages with persistent delivery.
type MessagePublisher interface {
	Send(ctx context.Context, msg entity.QueueMessage) error
}

// MessageConsumer delivers queue messages one at a time to a handler.
// Consume blocks until the context is cancelled or the transport fails.
type MessageConsumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
}
