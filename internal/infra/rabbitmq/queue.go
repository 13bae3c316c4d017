package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send and Consume when the adapter is not in
// the Connected state. Callers must treat it as "not delivered".
var ErrNotConnected = errors.New("rabbitmq: not connected")

// ConnState is the explicit connection state, replacing nullable conn/channel
// fields.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type QueueConfig struct {
	URL             string
	Queue           string
	DLQ             string
	Prefetch        int
	MaxRedeliveries int
	ReconnectDelay  time.Duration
	MaxReconnects   int
	// TestMode suppresses reconnect scheduling entirely.
	TestMode bool
}

// Queue is the durable point-to-point adapter for QueueMessage delivery with
// manual acknowledgment.
type Queue struct {
	cfg    QueueConfig
	logger *zap.Logger

	mu      sync.Mutex
	state   ConnState
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewQueue(cfg QueueConfig, logger *zap.Logger) *Queue {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Queue{cfg: cfg, logger: logger, state: StateDisconnected}
}

// Connect establishes the connection and channel and declares the durable
// queues. On failure it logs, stays disconnected, and schedules a bounded
// reconnect rather than returning a hard error to the caller.
func (q *Queue) Connect(ctx context.Context) error {
	q.mu.Lock()
	if q.state != StateDisconnected {
		q.mu.Unlock()
		return nil
	}
	q.state = StateConnecting
	q.mu.Unlock()

	if err := q.dial(); err != nil {
		q.logger.Error("rabbitmq connect failed", zap.Error(err))
		q.setState(StateDisconnected)
		q.scheduleReconnect(ctx, 1)
		return err
	}

	q.setState(StateConnected)
	q.logger.Info("rabbitmq connected", zap.String("queue", q.cfg.Queue))
	return nil
}

func (q *Queue) dial() error {
	conn, err := amqp.Dial(q.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	for _, name := range []string{q.cfg.Queue, q.cfg.DLQ} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	q.mu.Lock()
	q.conn = conn
	q.channel = ch
	q.mu.Unlock()
	return nil
}

func (q *Queue) scheduleReconnect(ctx context.Context, attempt int) {
	if q.cfg.TestMode {
		return
	}
	if attempt > q.cfg.MaxReconnects {
		q.logger.Error("rabbitmq reconnect attempts exhausted",
			zap.Int("max_attempts", q.cfg.MaxReconnects))
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.cfg.ReconnectDelay):
		}

		q.logger.Info("rabbitmq reconnecting",
			zap.Int("attempt", attempt), zap.Int("max_attempts", q.cfg.MaxReconnects))

		q.setState(StateConnecting)
		if err := q.dial(); err != nil {
			q.logger.Error("rabbitmq reconnect failed", zap.Error(err))
			q.setState(StateDisconnected)
			q.scheduleReconnect(ctx, attempt+1)
			return
		}
		q.setState(StateConnected)
		q.logger.Info("rabbitmq reconnected")
	}()
}

func (q *Queue) setState(s ConnState) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
}

// State reports the current connection state.
func (q *Queue) State() ConnState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Send publishes a message with persistent delivery mode. It fails fast with
// ErrNotConnected when the adapter is not Connected.
func (q *Queue) Send(ctx context.Context, msg entity.QueueMessage) error {
	q.mu.Lock()
	state, ch := q.state, q.channel
	q.mu.Unlock()

	if state != StateConnected || ch == nil {
		return ErrNotConnected
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",
		q.cfg.Queue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message %s: %w", msg.ID, err)
	}
	return nil
}

// Close tears down channel then connection. Teardown failures are logged,
// not returned.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			q.logger.Warn("close channel", zap.Error(err))
		}
		q.channel = nil
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			q.logger.Warn("close connection", zap.Error(err))
		}
		q.conn = nil
	}
	q.state = StateDisconnected
}
