package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/logging"
	"groupswipe/models"
	"groupswipe/utils"
)

// VoteLedger records at most one vote per (room, user, item) and keeps the
// per-item tallies in step with the votes.
type VoteLedger struct {
	Store Store
	Clock func() time.Time
}

func (vl *VoteLedger) now() time.Time {
	if vl.Clock != nil {
		return vl.Clock()
	}
	return time.Now().UTC()
}

func voteKey(roomID, itemID, userID string) Key {
	return Key{PK: models.RoomPK(roomID), SK: models.VoteSK(itemID, userID)}
}

func tallyKey(roomID, itemID string) Key {
	return Key{PK: models.RoomPK(roomID), SK: models.TallySK(itemID)}
}

// voteAttempts bounds the retries of a vote transaction that lost a race on
// the item's tally.
const voteAttempts = 5

// RecordVote stores the vote, bumps the tally and refreshes the voter's
// activity in one transaction. The voter must still be a member when the
// transaction commits, otherwise ErrNotFound is returned and nothing is
// written. A second vote for the same key returns ErrDuplicateVote and
// changes nothing.
func (vl *VoteLedger) RecordVote(ctx context.Context, roomID, userID, itemID string, voteType models.VoteType) (bool, error) {
	if !models.ValidID(roomID) || !models.ValidID(userID) || !models.ValidID(itemID) || !voteType.Valid() {
		return false, fmt.Errorf("record vote: %w", ErrInvalidInput)
	}

	now := vl.now()
	vote := models.Vote{
		PK:        models.RoomPK(roomID),
		SK:        models.VoteSK(itemID, userID),
		RoomID:    roomID,
		UserID:    userID,
		ItemID:    itemID,
		VoteType:  voteType,
		CreatedAt: now,
	}
	item, err := attributevalue.MarshalMap(vote)
	if err != nil {
		return false, fmt.Errorf("failed to marshal vote: %w", err)
	}
	seen, err := attributevalue.Marshal(now)
	if err != nil {
		return false, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	ops := []WriteOp{
		UpdateOp(memberKey(roomID, userID), Update{
			Set: map[string]types.AttributeValue{
				"lastActivityAt": seen,
				"status":         utils.StringAttr(string(models.StatusActive)),
			},
			Condition: CondExists,
		}),
		PutOp(item, CondNotExists),
		UpdateOp(tallyKey(roomID, itemID), Update{
			Set: map[string]types.AttributeValue{
				"roomId": utils.StringAttr(roomID),
				"itemId": utils.StringAttr(itemID),
			},
			Add: map[string]int64{voteType.CounterAttr(): 1},
		}),
	}

	for attempt := 0; attempt < voteAttempts; attempt++ {
		err = vl.Store.TransactWrite(ctx, ops)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrConditionFailed):
			return false, vl.rejection(ctx, roomID, userID)
		case errors.Is(err, ErrTransactionConflict):
			logging.Debug().Str("room_id", roomID).Str("item_id", itemID).Int("attempt", attempt+1).Msg("Vote raced another write, retrying")
			continue
		default:
			return false, fmt.Errorf("failed to record vote: %w", err)
		}
	}
	return false, fmt.Errorf("failed to record vote after %d attempts: %w", voteAttempts, err)
}

// rejection tells a departed voter apart from a duplicate vote after the
// vote transaction failed its conditions.
func (vl *VoteLedger) rejection(ctx context.Context, roomID, userID string) error {
	_, err := vl.Store.GetItem(ctx, memberKey(roomID, userID))
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("member %s in room %s: %w", userID, roomID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to check member %s: %w", userID, err)
	default:
		return ErrDuplicateVote
	}
}

// ItemVotes returns every vote cast on the item.
func (vl *VoteLedger) ItemVotes(ctx context.Context, roomID, itemID string) ([]models.Vote, error) {
	items, err := vl.Store.QueryItems(ctx, Query{PK: models.RoomPK(roomID), SKPrefix: models.VoteItemPrefix(itemID)})
	if err != nil {
		return nil, fmt.Errorf("failed to query votes for %s: %w", itemID, err)
	}
	var votes []models.Vote
	if err := attributevalue.UnmarshalListOfMaps(items, &votes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
	}
	return votes, nil
}

// Likers returns the sorted ids of users who liked the item.
func (vl *VoteLedger) Likers(ctx context.Context, roomID, itemID string) ([]string, error) {
	votes, err := vl.ItemVotes(ctx, roomID, itemID)
	if err != nil {
		return nil, err
	}
	return likersOf(votes), nil
}

func likersOf(votes []models.Vote) []string {
	likers := make([]string, 0, len(votes))
	for _, v := range votes {
		if v.VoteType == models.VoteLike {
			likers = append(likers, v.UserID)
		}
	}
	sort.Strings(likers)
	return likers
}

// Tally returns the aggregated counts for the item; an item without votes
// has a zero tally.
func (vl *VoteLedger) Tally(ctx context.Context, roomID, itemID string) (models.VoteTally, error) {
	item, err := vl.Store.GetItem(ctx, tallyKey(roomID, itemID))
	if errors.Is(err, ErrNotFound) {
		return models.VoteTally{RoomID: roomID, ItemID: itemID}, nil
	}
	if err != nil {
		return models.VoteTally{}, fmt.Errorf("failed to get tally for %s: %w", itemID, err)
	}
	var tally models.VoteTally
	if err := attributevalue.UnmarshalMap(item, &tally); err != nil {
		return models.VoteTally{}, fmt.Errorf("failed to unmarshal tally: %w", err)
	}
	return tally, nil
}

// DeleteUserVotes removes every vote the user cast in the room and
// decrements the matching tallies. It returns the number of votes removed.
func (vl *VoteLedger) DeleteUserVotes(ctx context.Context, roomID, userID string) (int, error) {
	items, err := vl.Store.QueryItems(ctx, Query{PK: models.RoomPK(roomID), SKPrefix: models.VoteKeyPrefix})
	if err != nil {
		return 0, fmt.Errorf("failed to query votes of %s: %w", userID, err)
	}
	var all []models.Vote
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return 0, fmt.Errorf("failed to unmarshal votes: %w", err)
	}
	var votes []models.Vote
	for _, v := range all {
		if v.UserID == userID {
			votes = append(votes, v)
		}
	}

	// two operations per vote
	const chunk = MaxTransactItems / 2
	removed := 0
	for start := 0; start < len(votes); start += chunk {
		end := min(start+chunk, len(votes))
		batch := votes[start:end]

		err := vl.Store.TransactWrite(ctx, deleteVoteOps(batch))
		if err == nil {
			removed += len(batch)
			continue
		}
		if !errors.Is(err, ErrConditionFailed) {
			return removed, fmt.Errorf("failed to delete votes of %s: %w", userID, err)
		}

		// Another cascade removed part of the batch; retry vote by vote.
		for _, v := range batch {
			err := vl.Store.TransactWrite(ctx, deleteVoteOps([]models.Vote{v}))
			switch {
			case err == nil:
				removed++
			case errors.Is(err, ErrConditionFailed):
				logging.Debug().Str("room_id", roomID).Str("item_id", v.ItemID).Str("user_id", userID).Msg("Vote already removed")
			default:
				return removed, fmt.Errorf("failed to delete vote on %s: %w", v.ItemID, err)
			}
		}
	}
	return removed, nil
}

func deleteVoteOps(votes []models.Vote) []WriteOp {
	ops := make([]WriteOp, 0, 2*len(votes))
	for _, v := range votes {
		ops = append(ops,
			DeleteOp(voteKey(v.RoomID, v.ItemID, v.UserID), CondExists),
			UpdateOp(tallyKey(v.RoomID, v.ItemID), Update{
				Add: map[string]int64{v.VoteType.CounterAttr(): -1},
			}),
		)
	}
	return ops
}
