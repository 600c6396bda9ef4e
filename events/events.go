// Package events carries domain events between the services and the
// realtime layer over an in-process watermill pub/sub.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"groupswipe/logging"
	"groupswipe/models"
	"groupswipe/services"
)

// TopicMatchCreated receives one message per created match.
const TopicMatchCreated = "matches.created"

const metadataRoomID = "room_id"

var _ services.Notifier = (*Publisher)(nil)

// NewBus returns the in-process pub/sub shared by publisher and subscribers.
func NewBus(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
}

// Publisher turns match notifications into watermill messages.
type Publisher struct {
	pub message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// OnMatchCreated publishes match on TopicMatchCreated.
func (p *Publisher) OnMatchCreated(ctx context.Context, match models.Match) error {
	data, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("serialize match %s: %w", match.MatchID, err)
	}
	msg := message.NewMessage(match.MatchID, data)
	msg.Metadata.Set(metadataRoomID, match.RoomID)
	msg.SetContext(ctx)

	if err := p.pub.Publish(TopicMatchCreated, msg); err != nil {
		return fmt.Errorf("publish match %s: %w", match.MatchID, err)
	}
	logging.Ctx(ctx).Debug().Str("match_id", match.MatchID).Str("room_id", match.RoomID).Msg("Match event published")
	return nil
}

// DecodeMatch reads the match carried by msg.
func DecodeMatch(msg *message.Message) (models.Match, error) {
	var match models.Match
	if err := json.Unmarshal(msg.Payload, &match); err != nil {
		return models.Match{}, fmt.Errorf("decode match message %s: %w", msg.UUID, err)
	}
	if match.RoomID == "" {
		match.RoomID = msg.Metadata.Get(metadataRoomID)
	}
	return match, nil
}
