package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
)

// streamPublisher is the part of nats.JetStreamContext the publisher needs.
type streamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends RatingChangedEvents to JetStream.
type Publisher struct {
	js      streamPublisher
	subject string
	log     *zap.Logger
}

var _ rating.Publisher = (*Publisher)(nil)

func NewPublisher(js streamPublisher, subject string, log *zap.Logger) *Publisher {
	return &Publisher{js: js, subject: subject, log: log}
}

// PublishRatingChanged implements rating.Publisher.
func (p *Publisher) PublishRatingChanged(ctx context.Context, change rating.Change) error {
	evt := RatingChangedEvent{
		EventID:       uuid.NewString(),
		UserID:        change.UserID,
		PokedexNumber: change.PokedexNumber,
		UserRating:    change.UserRating,
		EntityRating:  change.Summary.Rating,
		NumberOfVotes: change.Summary.NumberOfVotes,
		OccurredAt:    change.OccurredAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode rating change: %w", err)
	}

	ack, err := p.js.Publish(p.subject, data, nats.Context(ctx), nats.MsgId(evt.EventID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	p.log.Debug("rating change published",
		zap.String("subject", p.subject),
		zap.String("event_id", evt.EventID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}
