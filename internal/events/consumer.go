package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
)

// UserDeleter runs the deletion cascade for one user.
type UserDeleter interface {
	OnUserDeleted(ctx context.Context, userID string) error
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeNak
	outcomeTerm
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeNak:
		return "nak"
	default:
		return "term"
	}
}

// Consumer pulls users.deleted events and hands them to a UserDeleter.
type Consumer struct {
	js        nats.JetStreamContext
	cfg       consumerConfig
	deleter   UserDeleter
	log       *zap.Logger
	batchSize int
	maxWait   time.Duration
}

type consumerConfig struct {
	stream  string
	subject string
	durable string
}

func NewConsumer(js nats.JetStreamContext, stream, subject, durable string, deleter UserDeleter, log *zap.Logger) *Consumer {
	return &Consumer{
		js:        js,
		cfg:       consumerConfig{stream: stream, subject: subject, durable: durable},
		deleter:   deleter,
		log:       log,
		batchSize: 16,
		maxWait:   2 * time.Second,
	}
}

// Run fetches and processes batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(c.cfg.subject, c.cfg.durable,
		nats.BindStream(c.cfg.stream),
		nats.ManualAck(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	c.log.Info("user deletion consumer started",
		zap.String("stream", c.cfg.stream),
		zap.String("subject", c.cfg.subject),
		zap.String("durable", c.cfg.durable),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.batchSize, nats.MaxWait(c.maxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			c.settle(m, c.handle(ctx, m.Data))
		}
	}
}

func (c *Consumer) settle(m *nats.Msg, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = m.Ack()
	case outcomeNak:
		err = m.Nak()
	default:
		err = m.Term()
	}
	if err != nil {
		c.log.Warn("settle message failed", zap.Stringer("outcome", o), zap.Error(err))
	}
}

// handle decides the fate of one message. Malformed payloads are terminated,
// users that are already gone are acknowledged, and any other failure is
// redelivered.
func (c *Consumer) handle(ctx context.Context, data []byte) outcome {
	var evt UserDeletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.log.Error("invalid user deleted payload", zap.Error(err))
		return outcomeTerm
	}
	if evt.UserID == "" {
		c.log.Error("user deleted event without user id", zap.String("event_id", evt.EventID))
		return outcomeTerm
	}

	err := c.deleter.OnUserDeleted(ctx, evt.UserID)
	switch {
	case err == nil:
		c.log.Info("user deleted event processed",
			zap.String("event_id", evt.EventID),
			zap.String("user_id", evt.UserID),
		)
		return outcomeAck
	case errors.Is(err, apperrors.ErrNotFound):
		c.log.Info("user already deleted",
			zap.String("event_id", evt.EventID),
			zap.String("user_id", evt.UserID),
		)
		return outcomeAck
	case errors.Is(err, apperrors.ErrValidation):
		c.log.Error("user deleted event rejected", zap.String("event_id", evt.EventID), zap.Error(err))
		return outcomeTerm
	default:
		c.log.Warn("user deletion failed, will redeliver",
			zap.String("event_id", evt.EventID),
			zap.String("user_id", evt.UserID),
			zap.Error(err),
		)
		return outcomeNak
	}
}
