package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/logging"
	"groupswipe/metrics"
	"groupswipe/models"
	"groupswipe/utils"
)

// advanceAttempts bounds the compare-and-set retries of Advance.
const advanceAttempts = 8

// MemberService owns member records and their shuffle cursors.
type MemberService struct {
	Store             Store
	InactivityTimeout time.Duration
	Clock             func() time.Time

	// Votes, when set, receives the vote cascade of RemoveMember.
	Votes *VoteLedger
}

func (ms *MemberService) now() time.Time {
	if ms.Clock != nil {
		return ms.Clock()
	}
	return time.Now().UTC()
}

func memberKey(roomID, userID string) Key {
	return Key{PK: models.RoomPK(roomID), SK: models.MemberSK(userID)}
}

// AddMember creates an ACTIVE member with an empty queue. Joining again
// reactivates the existing member and keeps its progress.
func (ms *MemberService) AddMember(ctx context.Context, roomID, userID string, role models.MemberRole) (*models.Member, error) {
	if !models.ValidID(roomID) || !models.ValidID(userID) {
		return nil, fmt.Errorf("add member: %w", ErrInvalidInput)
	}
	now := ms.now()
	member := models.Member{
		PK:             models.RoomPK(roomID),
		SK:             models.MemberSK(userID),
		RoomID:         roomID,
		UserID:         userID,
		Role:           role,
		Status:         models.StatusActive,
		ShuffledList:   []string{},
		LastActivityAt: now,
		JoinedAt:       now,
	}
	item, err := attributevalue.MarshalMap(member)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal member: %w", err)
	}

	err = ms.Store.PutItem(ctx, item, CondNotExists)
	switch {
	case err == nil:
		logging.Info().Str("room_id", roomID).Str("user_id", userID).Msg("Member joined")
		return &member, nil
	case errors.Is(err, ErrConditionFailed):
		if err := ms.Touch(ctx, roomID, userID); err != nil {
			return nil, err
		}
		logging.Info().Str("room_id", roomID).Str("user_id", userID).Msg("Member rejoined")
		return ms.GetMember(ctx, roomID, userID)
	default:
		return nil, fmt.Errorf("failed to add member %s: %w", userID, err)
	}
}

// GetMember loads one member.
func (ms *MemberService) GetMember(ctx context.Context, roomID, userID string) (*models.Member, error) {
	item, err := ms.Store.GetItem(ctx, memberKey(roomID, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("member %s in room %s: %w", userID, roomID, ErrNotFound)
		}
		return nil, err
	}
	return unmarshalMember(item)
}

// GetNextItem returns the item under the member's cursor. ok is false once
// the queue is exhausted.
func (ms *MemberService) GetNextItem(ctx context.Context, roomID, userID string) (string, bool, error) {
	m, err := ms.GetMember(ctx, roomID, userID)
	if err != nil {
		return "", false, err
	}
	itemID, ok := m.NextItem()
	return itemID, ok, nil
}

// Advance moves the member's cursor forward by exactly one and refreshes its
// activity. An exhausted cursor stays at the end of the list.
func (ms *MemberService) Advance(ctx context.Context, roomID, userID string) (int, error) {
	for attempt := 0; attempt < advanceAttempts; attempt++ {
		m, err := ms.GetMember(ctx, roomID, userID)
		if err != nil {
			return 0, err
		}
		if m.CurrentIndex >= len(m.ShuffledList) {
			return len(m.ShuffledList), nil
		}

		now, err := attributevalue.Marshal(ms.now())
		if err != nil {
			return 0, fmt.Errorf("failed to marshal timestamp: %w", err)
		}
		_, err = ms.Store.UpdateItem(ctx, memberKey(roomID, userID), Update{
			Set: map[string]types.AttributeValue{
				"currentIndex":   utils.NumberAttr(int64(m.CurrentIndex + 1)),
				"lastActivityAt": now,
				"status":         utils.StringAttr(string(models.StatusActive)),
			},
			Condition: CondExists,
			Expect: map[string]types.AttributeValue{
				"currentIndex": utils.NumberAttr(int64(m.CurrentIndex)),
				"totalItems":   utils.NumberAttr(int64(m.TotalItems)),
			},
		})
		if err == nil {
			return m.CurrentIndex + 1, nil
		}
		if !errors.Is(err, ErrConditionFailed) {
			return 0, fmt.Errorf("failed to advance member %s: %w", userID, err)
		}
		logging.Debug().Str("room_id", roomID).Str("user_id", userID).Int("attempt", attempt+1).Msg("Cursor moved concurrently, retrying advance")
	}
	return 0, fmt.Errorf("advance member %s: %w", userID, ErrConditionFailed)
}

// Touch refreshes the member's activity and reactivates it.
func (ms *MemberService) Touch(ctx context.Context, roomID, userID string) error {
	now, err := attributevalue.Marshal(ms.now())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}
	_, err = ms.Store.UpdateItem(ctx, memberKey(roomID, userID), Update{
		Set: map[string]types.AttributeValue{
			"lastActivityAt": now,
			"status":         utils.StringAttr(string(models.StatusActive)),
		},
		Condition: CondExists,
	})
	if errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("member %s in room %s: %w", userID, roomID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to touch member %s: %w", userID, err)
	}
	return nil
}

// ListMembers returns every member of the room regardless of status.
func (ms *MemberService) ListMembers(ctx context.Context, roomID string) ([]models.Member, error) {
	items, err := ms.memberItems(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(items))
	for _, item := range items {
		m, err := unmarshalMember(item)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, nil
}

// ActiveMembers returns the members counting toward consensus at now:
// status ACTIVE and activity within the inactivity timeout.
func (ms *MemberService) ActiveMembers(ctx context.Context, roomID string, now time.Time) ([]models.Member, error) {
	members, err := ms.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	active := members[:0]
	for _, m := range members {
		if m.IsActiveAt(now, ms.InactivityTimeout) {
			active = append(active, m)
		}
	}
	return active, nil
}

// SweepInactive marks stale ACTIVE members INACTIVE. Each flip is
// conditional on the activity timestamp it observed, so a concurrent Touch
// keeps the member active.
func (ms *MemberService) SweepInactive(ctx context.Context, roomID string, now time.Time) (int, error) {
	items, err := ms.memberItems(ctx, roomID)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, item := range items {
		m, err := unmarshalMember(item)
		if err != nil {
			return swept, err
		}
		if m.Status != models.StatusActive || m.IsActiveAt(now, ms.InactivityTimeout) {
			continue
		}

		_, err = ms.Store.UpdateItem(ctx, memberKey(roomID, m.UserID), Update{
			Set: map[string]types.AttributeValue{
				"status": utils.StringAttr(string(models.StatusInactive)),
			},
			Expect: map[string]types.AttributeValue{
				"status":         utils.StringAttr(string(models.StatusActive)),
				"lastActivityAt": item["lastActivityAt"],
			},
		})
		if errors.Is(err, ErrConditionFailed) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("failed to sweep member %s: %w", m.UserID, err)
		}
		swept++
		logging.Info().Str("room_id", roomID).Str("user_id", m.UserID).Time("last_activity", m.LastActivityAt).Msg("Member marked inactive")
	}
	metrics.MembersSwept.Add(float64(swept))
	return swept, nil
}

// SetShuffledList stores a new queue for the member and rewinds its cursor.
func (ms *MemberService) SetShuffledList(ctx context.Context, roomID, userID string, list []string) error {
	if list == nil {
		list = []string{}
	}
	listAttr, err := attributevalue.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal shuffled list: %w", err)
	}
	_, err = ms.Store.UpdateItem(ctx, memberKey(roomID, userID), Update{
		Set: map[string]types.AttributeValue{
			"shuffledList": listAttr,
			"totalItems":   utils.NumberAttr(int64(len(list))),
			"currentIndex": utils.NumberAttr(0),
		},
		Condition: CondExists,
	})
	if errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("member %s in room %s: %w", userID, roomID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to store shuffled list for %s: %w", userID, err)
	}
	return nil
}

// RemoveMember deletes the member and then its votes in the room.
func (ms *MemberService) RemoveMember(ctx context.Context, roomID, userID string) error {
	err := ms.Store.DeleteItem(ctx, memberKey(roomID, userID), CondExists)
	if errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("member %s in room %s: %w", userID, roomID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to remove member %s: %w", userID, err)
	}

	if ms.Votes != nil {
		n, err := ms.Votes.DeleteUserVotes(ctx, roomID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove votes of %s: %w", userID, err)
		}
		logging.Info().Str("room_id", roomID).Str("user_id", userID).Int("votes_removed", n).Msg("Member left")
	}
	return nil
}

// GetMemberProgress reports the member's cursor position.
func (ms *MemberService) GetMemberProgress(ctx context.Context, roomID, userID string) (models.MemberProgress, error) {
	m, err := ms.GetMember(ctx, roomID, userID)
	if err != nil {
		return models.MemberProgress{}, err
	}
	return m.Progress(), nil
}

func (ms *MemberService) memberItems(ctx context.Context, roomID string) ([]Item, error) {
	items, err := ms.Store.QueryItems(ctx, Query{PK: models.RoomPK(roomID), SKPrefix: models.MemberKeyPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to list members of room %s: %w", roomID, err)
	}
	return items, nil
}

func unmarshalMember(item Item) (*models.Member, error) {
	var m models.Member
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member: %w", err)
	}
	return &m, nil
}
