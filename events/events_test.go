package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"groupswipe/models"
)

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("closed") }
func (failingPublisher) Close() error { return nil }

func TestPublishAndDecode(t *testing.T) {
	bus := NewBus(watermill.NopLogger{})
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := bus.Subscribe(ctx, TopicMatchCreated)
	if err != nil {
		t.Fatal(err)
	}

	want := models.Match{
		MatchID:       "m-1",
		RoomID:        "r1",
		ItemID:        "603",
		Participants:  []string{"A", "B"},
		ConsensusType: models.ConsensusUnanimous,
		TotalVotes:    2,
		CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := NewPublisher(bus).OnMatchCreated(ctx, want); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		got, err := DecodeMatch(msg)
		if err != nil {
			t.Fatal(err)
		}
		if got.MatchID != want.MatchID || got.RoomID != "r1" || len(got.Participants) != 2 || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("decoded %+v", got)
		}
		if msg.Metadata.Get(metadataRoomID) != "r1" {
			t.Errorf("metadata room = %q", msg.Metadata.Get(metadataRoomID))
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	err := NewPublisher(failingPublisher{}).OnMatchCreated(context.Background(), models.Match{MatchID: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeMatchRejectsGarbage(t *testing.T) {
	if _, err := DecodeMatch(message.NewMessage("x", []byte("not json"))); err == nil {
		t.Fatal("expected error")
	}
}
