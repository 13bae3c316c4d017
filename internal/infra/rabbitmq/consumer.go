package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consume registers the handler with a prefetch of 1 and processes
// deliveries one at a time with manual acknowledgment. It blocks until the
// context is cancelled or the delivery channel closes.
func (q *Queue) Consume(ctx context.Context, handler port.MessageHandler) error {
	q.mu.Lock()
	state, ch := q.state, q.channel
	q.mu.Unlock()

	if state != StateConnected || ch == nil {
		return ErrNotConnected
	}

	if err := ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	q.logger.Info("consuming", zap.String("queue", q.cfg.Queue), zap.Int("prefetch", q.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				q.setState(StateDisconnected)
				return ErrNotConnected
			}
			q.processDelivery(ctx, d, handler)
		}
	}
}

func (q *Queue) processDelivery(ctx context.Context, d amqp.Delivery, handler port.MessageHandler) {
	log := q.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	var msg entity.QueueMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// Malformed payloads can never succeed: dead-letter and drop.
		log.Error("malformed message", zap.Error(err), zap.ByteString("body", d.Body))
		q.deadLetter(ctx, d.Body, entity.FaultDecode.String()+": "+err.Error())
		_ = d.Nack(false, false)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	err := handler(ctx, msg)
	if err == nil {
		_ = d.Ack(false)
		metrics.MessagesTotal.WithLabelValues("acked").Inc()
		return
	}

	kind := entity.FaultKindOf(err)
	deliveries := deliveryCount(d)
	requeue := q.requeueDecision(kind, deliveries)

	log.Warn("message handling failed",
		zap.String("job_id", msg.ID),
		zap.String("fault_kind", kind.String()),
		zap.Int("deliveries", deliveries),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)

	if !requeue {
		q.deadLetter(ctx, d.Body, kind.String()+": "+err.Error())
		_ = d.Nack(false, false)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	// Redelivery goes through an explicit republish carrying the attempt
	// counter: a plain nack-requeue would not record how often the message
	// has been tried, and the cap needs that count.
	if perr := q.republish(ctx, d.Body, deliveries+1); perr != nil {
		log.Error("republish for redelivery failed, falling back to requeue", zap.Error(perr))
		_ = d.Nack(false, true)
	} else {
		_ = d.Ack(false)
	}
	metrics.MessagesTotal.WithLabelValues("requeued").Inc()
}

// requeueDecision is a total function over the fault-kind enum: permanent
// kinds drop after one attempt, everything else requeues until the
// redelivery cap is reached.
func (q *Queue) requeueDecision(kind entity.FaultKind, deliveries int) bool {
	if kind.Permanent() {
		return false
	}
	if q.cfg.MaxRedeliveries > 0 && deliveries > q.cfg.MaxRedeliveries {
		return false
	}
	return true
}

const redeliveryCountHeader = "x-redelivery-count"

// deliveryCount reads the attempt counter stamped by republish; a first
// delivery has no header and counts as 1.
func deliveryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers[redeliveryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}

// republish re-enqueues a failed message with the incremented attempt
// counter so the redelivery cap can be enforced on the next pass.
func (q *Queue) republish(ctx context.Context, body []byte, attempt int) error {
	q.mu.Lock()
	ch := q.channel
	q.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	return ch.PublishWithContext(ctx,
		"",
		q.cfg.Queue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				redeliveryCountHeader: int32(attempt),
			},
		},
	)
}

func (q *Queue) deadLetter(ctx context.Context, body []byte, reason string) {
	q.mu.Lock()
	ch := q.channel
	q.mu.Unlock()
	if ch == nil {
		return
	}

	err := ch.PublishWithContext(ctx,
		"",
		q.cfg.DLQ,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"x-dlq-reason": reason,
			},
		},
	)
	if err != nil {
		q.logger.Error("dead-letter publish failed", zap.Error(err))
	}
}
