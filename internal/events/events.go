// Package events connects the rating service to NATS JetStream: it publishes
// committed rating changes and consumes user deletion events.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Clark-Hu/pokedex-ratings/internal/config"
)

// UserDeletedEvent is published by the account service when a user is removed.
type UserDeletedEvent struct {
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// RatingChangedEvent is published after every committed rate or unrate. UserRating
// is null when the rating was removed.
type RatingChangedEvent struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	PokedexNumber int       `json:"pokedexNumber"`
	UserRating    *float64  `json:"userRating"`
	EntityRating  float64   `json:"entityRating"`
	NumberOfVotes int64     `json:"numberOfVotes"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Connect dials NATS with the configured reconnect policy and fails fast when the
// server is unreachable.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pokedex-ratings"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait, err)
	}
	return nc, nil
}

// EnsureStream creates the stream carrying both subjects, or widens an existing
// stream that lacks one of them.
func EnsureStream(js nats.JetStreamContext, cfg config.NATSConfig) error {
	subjects := []string{cfg.UserDeletedSubject, cfg.RatingChangedSubject}

	info, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		missing := false
		for _, want := range subjects {
			if !contains(info.Config.Subjects, want) {
				missing = true
				break
			}
		}
		if !missing {
			return nil
		}
		updated := info.Config
		for _, want := range subjects {
			if !contains(updated.Subjects, want) {
				updated.Subjects = append(updated.Subjects, want)
			}
		}
		if _, err := js.UpdateStream(&updated); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Stream, err)
		}
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", cfg.Stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", cfg.Stream, err)
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
