package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/config"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
)

type fakeStream struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject = subj
	f.data = data
	return &nats.PubAck{Stream: "POKERATE", Sequence: 1}, nil
}

type fakeDeleter struct {
	err   error
	calls []string
}

func (f *fakeDeleter) OnUserDeleted(_ context.Context, userID string) error {
	f.calls = append(f.calls, userID)
	return f.err
}

func TestPublisher_EncodesRatingChange(t *testing.T) {
	stream := &fakeStream{}
	pub := NewPublisher(stream, "ratings.changed", zap.NewNop())

	value := 4.5
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := pub.PublishRatingChanged(context.Background(), rating.Change{
		UserID:        "ash",
		PokedexNumber: 25,
		UserRating:    &value,
		Summary:       domain.Summary{Rating: 3.25, NumberOfVotes: 4},
		OccurredAt:    at,
	})
	require.NoError(t, err)
	assert.Equal(t, "ratings.changed", stream.subject)

	var evt RatingChangedEvent
	require.NoError(t, json.Unmarshal(stream.data, &evt))
	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, "ash", evt.UserID)
	assert.Equal(t, 25, evt.PokedexNumber)
	require.NotNil(t, evt.UserRating)
	assert.Equal(t, 4.5, *evt.UserRating)
	assert.Equal(t, 3.25, evt.EntityRating)
	assert.EqualValues(t, 4, evt.NumberOfVotes)
	assert.True(t, at.Equal(evt.OccurredAt))
}

func TestPublisher_UnrateSendsNullRating(t *testing.T) {
	stream := &fakeStream{}
	pub := NewPublisher(stream, "ratings.changed", zap.NewNop())

	require.NoError(t, pub.PublishRatingChanged(context.Background(), rating.Change{UserID: "ash", PokedexNumber: 1}))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(stream.data, &raw))
	v, ok := raw["userRating"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestPublisher_PropagatesErrors(t *testing.T) {
	pub := NewPublisher(&fakeStream{err: nats.ErrNoResponders}, "ratings.changed", zap.NewNop())
	err := pub.PublishRatingChanged(context.Background(), rating.Change{UserID: "ash", PokedexNumber: 1})
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestConsumer_Handle(t *testing.T) {
	valid, err := json.Marshal(UserDeletedEvent{EventID: "e1", UserID: "ash", OccurredAt: time.Now()})
	require.NoError(t, err)

	tests := []struct {
		name      string
		payload   []byte
		deleteErr error
		want      outcome
		wantCalls int
	}{
		{name: "success", payload: valid, want: outcomeAck, wantCalls: 1},
		{name: "already gone", payload: valid, deleteErr: fmt.Errorf("delete user: %w", apperrors.ErrNotFound), want: outcomeAck, wantCalls: 1},
		{name: "transient failure", payload: valid, deleteErr: errors.New("db down"), want: outcomeNak, wantCalls: 1},
		{name: "conflict", payload: valid, deleteErr: apperrors.ErrConflict, want: outcomeNak, wantCalls: 1},
		{name: "malformed", payload: []byte("{not json"), want: outcomeTerm},
		{name: "missing user", payload: []byte(`{"eventId":"e2"}`), want: outcomeTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deleter := &fakeDeleter{err: tc.deleteErr}
			c := NewConsumer(nil, "POKERATE", "users.deleted", "durable", deleter, zap.NewNop())

			got := c.handle(context.Background(), tc.payload)
			assert.Equal(t, tc.want, got, "outcome %s", got)
			assert.Len(t, deleter.calls, tc.wantCalls)
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{
		URL:           "nats://127.0.0.1:19999",
		MaxReconnects: 0,
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error connecting to unreachable NATS server")
	}
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"users.deleted", "ratings.changed"}, "ratings.changed"))
	assert.False(t, contains(nil, "users.deleted"))
}
