package socket

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"groupswipe/events"
	"groupswipe/logging"
	"groupswipe/models"
)

// Broadcaster delivers a match to the clients of its room.
type Broadcaster interface {
	BroadcastMatch(match models.Match) bool
}

// Bridge forwards match events from the bus to socket.io rooms.
type Bridge struct {
	Subscriber message.Subscriber
	Target     Broadcaster
}

// Serve consumes events.TopicMatchCreated until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	msgs, err := b.Subscriber.Subscribe(ctx, events.TopicMatchCreated)
	if err != nil {
		return err
	}
	log := logging.WithComponent("socket-bridge")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("match subscription closed")
			}
			match, err := events.DecodeMatch(msg)
			if err != nil {
				// A malformed message will never decode; drop it.
				log.Error().Err(err).Msg("Dropping match event")
				msg.Ack()
				continue
			}
			delivered := b.Target.BroadcastMatch(match)
			log.Debug().Str("match_id", match.MatchID).Str("room_id", match.RoomID).Bool("delivered", delivered).Msg("Match broadcast")
			msg.Ack()
		}
	}
}

func (b *Bridge) String() string { return "match-bridge" }
