package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"groupswipe/logging"
	"groupswipe/metrics"
	"groupswipe/models"
)

// defaultNotifyTimeout bounds one notifier call.
const defaultNotifyTimeout = 10 * time.Second

// Notifier is told about every match exactly once, by the request that created it.
type Notifier interface {
	OnMatchCreated(ctx context.Context, match models.Match) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, match models.Match) error

func (f NotifierFunc) OnMatchCreated(ctx context.Context, match models.Match) error {
	return f(ctx, match)
}

// MatchStore persists matches with an at-most-once guard per (room, item).
type MatchStore struct {
	Store         Store
	Notifier      Notifier
	NotifyTimeout time.Duration
	Clock         func() time.Time

	wg sync.WaitGroup
}

func (s *MatchStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func matchKey(roomID, itemID string) Key {
	return Key{PK: models.RoomPK(roomID), SK: models.MatchSK(itemID)}
}

// CreateMatch inserts the match unless one exists. created reports whether
// this call won; a losing call returns the winner's record.
func (s *MatchStore) CreateMatch(ctx context.Context, roomID, itemID string, participants []string, totalVotes int) (models.Match, bool, error) {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)

	match := models.Match{
		PK:            models.RoomPK(roomID),
		SK:            models.MatchSK(itemID),
		MatchID:       uuid.NewString(),
		RoomID:        roomID,
		ItemID:        itemID,
		Participants:  sorted,
		ConsensusType: models.ConsensusUnanimous,
		TotalVotes:    totalVotes,
		CreatedAt:     s.now(),
	}
	item, err := attributevalue.MarshalMap(match)
	if err != nil {
		return models.Match{}, false, fmt.Errorf("failed to marshal match: %w", err)
	}

	err = s.Store.PutItem(ctx, item, CondNotExists)
	if errors.Is(err, ErrConditionFailed) {
		existing, err := s.GetMatch(ctx, roomID, itemID)
		if err != nil {
			return models.Match{}, false, fmt.Errorf("failed to read concurrent match: %w", err)
		}
		metrics.MatchRacesResolved.Inc()
		logging.Debug().Str("room_id", roomID).Str("item_id", itemID).Str("match_id", existing.MatchID).Msg("Match already created concurrently")
		return existing, false, nil
	}
	if err != nil {
		return models.Match{}, false, fmt.Errorf("failed to create match: %w", err)
	}

	metrics.MatchesCreated.Inc()
	logging.Info().Str("room_id", roomID).Str("item_id", itemID).Str("match_id", match.MatchID).
		Strs("participants", sorted).Msg("Match created")

	s.notify(ctx, match)
	return match, true, nil
}

// notify runs the notifier on a tracked goroutine. Failures are logged and
// counted only.
func (s *MatchStore) notify(ctx context.Context, match models.Match) {
	if s.Notifier == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		log := logging.Ctx(ctx).With().Str("match_id", match.MatchID).Str("room_id", match.RoomID).Logger()
		if err := s.Notifier.OnMatchCreated(nctx, match); err != nil {
			metrics.NotificationFailures.Inc()
			log.Error().Err(err).Msg("Match notification failed")
			return
		}
		metrics.NotificationsSent.Inc()

		_, err := s.Store.UpdateItem(nctx, matchKey(match.RoomID, match.ItemID), Update{
			Set:       map[string]types.AttributeValue{"notificationsSent": &types.AttributeValueMemberBOOL{Value: true}},
			Condition: CondExists,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to flag match notification as sent")
		}
	}()
}

// Wait blocks until every pending notification has finished.
func (s *MatchStore) Wait() {
	s.wg.Wait()
}

// GetMatch loads the match for (room, item).
func (s *MatchStore) GetMatch(ctx context.Context, roomID, itemID string) (models.Match, error) {
	item, err := s.Store.GetItem(ctx, matchKey(roomID, itemID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Match{}, fmt.Errorf("match for %s in room %s: %w", itemID, roomID, ErrNotFound)
		}
		return models.Match{}, err
	}
	return unmarshalMatch(item)
}

// GetRoomMatches returns the room's matches, newest first. limit <= 0 returns all.
func (s *MatchStore) GetRoomMatches(ctx context.Context, roomID string, limit int) ([]models.Match, error) {
	items, err := s.Store.QueryItems(ctx, Query{PK: models.RoomPK(roomID), SKPrefix: models.MatchKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to query matches of room %s: %w", roomID, err)
	}
	matches := make([]models.Match, 0, len(items))
	for _, item := range items {
		m, err := unmarshalMatch(item)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func unmarshalMatch(item Item) (models.Match, error) {
	var m models.Match
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return models.Match{}, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return m, nil
}
