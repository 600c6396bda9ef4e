package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/config"
	"groupswipe/logging"
	"groupswipe/metrics"
	"groupswipe/models"
	"groupswipe/utils"
)

// ItemResolver attaches media metadata to queue items.
type ItemResolver interface {
	ResolveItem(ctx context.Context, itemID string) (*models.MediaItem, string, error)
}

// RoomService is the entry point for room, membership and voting operations.
type RoomService struct {
	Store     Store
	Members   *MemberService
	Votes     *VoteLedger
	Consensus *ConsensusDetector
	Matches   *MatchStore
	Media     ItemResolver

	clock func() time.Time
}

// NewRoomService wires the engine components on top of store.
func NewRoomService(store Store, cfg config.ConsensusConfig, notifier Notifier) *RoomService {
	votes := &VoteLedger{Store: store}
	members := &MemberService{Store: store, InactivityTimeout: cfg.InactivityTimeout, Votes: votes}
	matches := &MatchStore{Store: store, Notifier: notifier}
	return &RoomService{
		Store:   store,
		Members: members,
		Votes:   votes,
		Matches: matches,
		Consensus: &ConsensusDetector{
			Members:          members,
			Votes:            votes,
			Matches:          matches,
			MinActiveMembers: cfg.MinActiveMembers,
		},
	}
}

// SetClock replaces the time source of every component.
func (rs *RoomService) SetClock(clock func() time.Time) {
	rs.clock = clock
	rs.Members.Clock = clock
	rs.Votes.Clock = clock
	rs.Matches.Clock = clock
	rs.Consensus.Clock = clock
}

func (rs *RoomService) now() time.Time {
	if rs.clock != nil {
		return rs.clock()
	}
	return time.Now().UTC()
}

func roomKey(roomID string) Key {
	return Key{PK: models.RoomPK(roomID), SK: models.MetaSortKey}
}

func roomIndexKey(roomID string) Key {
	return Key{PK: models.RoomIndexKey, SK: roomID}
}

// CreateRoom stores the room and joins the host. A non-empty master list
// gives the host its shuffled queue right away.
func (rs *RoomService) CreateRoom(ctx context.Context, roomID, hostID string, minActiveMembers int, masterList []string) (*models.Room, error) {
	if !models.ValidID(roomID) || !models.ValidID(hostID) || minActiveMembers < 0 {
		return nil, fmt.Errorf("create room: %w", ErrInvalidInput)
	}
	if err := validateMasterList(masterList); err != nil {
		return nil, err
	}

	now := rs.now()
	room := models.Room{
		PK:               models.RoomPK(roomID),
		SK:               models.MetaSortKey,
		RoomID:           roomID,
		HostID:           hostID,
		MasterList:       append([]string{}, masterList...),
		MinActiveMembers: minActiveMembers,
		CreatedAt:        now,
	}
	roomItem, err := attributevalue.MarshalMap(room)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room: %w", err)
	}
	indexItem, err := attributevalue.MarshalMap(models.RoomIndexEntry{
		PK:        models.RoomIndexKey,
		SK:        roomID,
		RoomID:    roomID,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room index entry: %w", err)
	}

	err = rs.Store.TransactWrite(ctx, []WriteOp{
		PutOp(roomItem, CondNotExists),
		PutOp(indexItem, CondNone),
	})
	if errors.Is(err, ErrConditionFailed) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create room %s: %w", roomID, err)
	}
	logging.Info().Str("room_id", roomID).Str("host_id", hostID).Int("items", len(masterList)).Msg("Room created")

	if _, err := rs.Join(ctx, roomID, hostID, models.RoleHost); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom loads the room settings.
func (rs *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	item, err := rs.Store.GetItem(ctx, roomKey(roomID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
		}
		return nil, err
	}
	var room models.Room
	if err := attributevalue.UnmarshalMap(item, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

// DeleteRoom removes the room together with its members, votes and matches.
func (rs *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := rs.GetRoom(ctx, roomID); err != nil {
		return err
	}
	items, err := rs.Store.QueryItems(ctx, Query{PK: models.RoomPK(roomID)})
	if err != nil {
		return fmt.Errorf("failed to list room %s: %w", roomID, err)
	}
	for _, item := range items {
		if err := rs.Store.DeleteItem(ctx, keyOf(item), CondNone); err != nil {
			return fmt.Errorf("failed to delete room record: %w", err)
		}
	}
	if err := rs.Store.DeleteItem(ctx, roomIndexKey(roomID), CondNone); err != nil {
		return fmt.Errorf("failed to delete room index entry: %w", err)
	}
	logging.Info().Str("room_id", roomID).Int("records", len(items)).Msg("Room deleted")
	return nil
}

// Join adds the user to the room. When the room already has a master list
// and the member has no queue yet, its shuffled list is generated.
func (rs *RoomService) Join(ctx context.Context, roomID, userID string, role models.MemberRole) (*models.Member, error) {
	room, err := rs.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member, err := rs.Members.AddMember(ctx, roomID, userID, role)
	if err != nil {
		return nil, err
	}
	if len(room.MasterList) == 0 || len(member.ShuffledList) > 0 {
		return member, nil
	}

	list := GenerateShuffledList(room.MasterList, userID)
	if err := rs.Members.SetShuffledList(ctx, roomID, userID, list); err != nil {
		return nil, err
	}
	return rs.Members.GetMember(ctx, roomID, userID)
}

// Leave removes the member and its votes. Consensus is not re-evaluated.
func (rs *RoomService) Leave(ctx context.Context, roomID, userID string) error {
	return rs.Members.RemoveMember(ctx, roomID, userID)
}

// GenerateShuffledLists stores masterList on the room and gives every
// current member its own permutation, rewinding their cursors. Votes
// already cast are kept. It returns the number of members updated.
func (rs *RoomService) GenerateShuffledLists(ctx context.Context, roomID string, masterList []string) (int, error) {
	if err := validateMasterList(masterList); err != nil {
		return 0, err
	}
	listAttr, err := attributevalue.Marshal(append([]string{}, masterList...))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal master list: %w", err)
	}
	_, err = rs.Store.UpdateItem(ctx, roomKey(roomID), Update{
		Set:       map[string]types.AttributeValue{"masterList": listAttr},
		Condition: CondExists,
	})
	if errors.Is(err, ErrConditionFailed) {
		return 0, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to store master list: %w", err)
	}

	members, err := rs.Members.ListMembers(ctx, roomID)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, m := range members {
		list := GenerateShuffledList(masterList, m.UserID)
		err := rs.Members.SetShuffledList(ctx, roomID, m.UserID, list)
		if errors.Is(err, ErrNotFound) {
			continue // left meanwhile
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	logging.Info().Str("room_id", roomID).Int("members", updated).Int("items", len(masterList)).Msg("Shuffled lists generated")
	return updated, nil
}

// NextItem is what a member sees next.
type NextItem struct {
	ItemID      string                `json:"itemId,omitempty"`
	Exhausted   bool                  `json:"exhausted"`
	Progress    models.MemberProgress `json:"progress"`
	Media       *models.MediaItem     `json:"media,omitempty"`
	MediaSource string                `json:"mediaSource,omitempty"`
}

// GetNextItem returns the member's current item with its media details and
// counts as member activity.
func (rs *RoomService) GetNextItem(ctx context.Context, roomID, userID string) (*NextItem, error) {
	member, err := rs.Members.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if err := rs.Members.Touch(ctx, roomID, userID); err != nil {
		return nil, err
	}

	next := &NextItem{Progress: member.Progress()}
	itemID, ok := member.NextItem()
	if !ok {
		next.Exhausted = true
		return next, nil
	}
	next.ItemID = itemID

	if rs.Media != nil {
		media, source, err := rs.Media.ResolveItem(ctx, itemID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("item_id", itemID).Msg("Media resolution failed")
		}
		next.Media = media
		next.MediaSource = source
	}
	return next, nil
}

// VoteResult reports what a vote did.
type VoteResult struct {
	Accepted     bool                      `json:"accepted"`
	Duplicate    bool                      `json:"duplicate"`
	Match        *models.Match             `json:"match,omitempty"`
	MatchCreated bool                      `json:"matchCreated"`
	Consensus    *models.ConsensusProgress `json:"consensus,omitempty"`
	Progress     models.MemberProgress     `json:"progress"`
}

// RecordVote records the vote, advances the voter's cursor and, for a LIKE,
// re-evaluates consensus on the item. These steps run strictly in order.
// A duplicate vote is reported in the result, not as an error, and still
// counts as activity. A voter who left before the vote committed gets
// ErrNotFound and leaves no vote behind.
func (rs *RoomService) RecordVote(ctx context.Context, roomID, userID, itemID string, voteType models.VoteType) (*VoteResult, error) {
	if !models.ValidID(roomID) || !models.ValidID(userID) || !models.ValidID(itemID) || !voteType.Valid() {
		return nil, fmt.Errorf("record vote: %w", ErrInvalidInput)
	}
	room, err := rs.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Members.GetMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	accepted, err := rs.Votes.RecordVote(ctx, roomID, userID, itemID, voteType)
	if err != nil && !errors.Is(err, ErrDuplicateVote) {
		return nil, err
	}
	metrics.RecordVote(string(voteType), accepted)

	result := &VoteResult{Accepted: accepted, Duplicate: !accepted}
	if !accepted {
		logging.Ctx(ctx).Debug().Str("room_id", roomID).Str("user_id", userID).Str("item_id", itemID).Msg("Duplicate vote ignored")
		if err := rs.Members.Touch(ctx, roomID, userID); err != nil {
			return nil, err
		}
		progress, err := rs.Members.GetMemberProgress(ctx, roomID, userID)
		if err != nil {
			return nil, err
		}
		result.Progress = progress
		return result, nil
	}

	if _, err := rs.Members.Advance(ctx, roomID, userID); err != nil {
		return nil, err
	}
	progress, err := rs.Members.GetMemberProgress(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	result.Progress = progress

	if voteType != models.VoteLike {
		return result, nil
	}
	consensus, err := rs.Consensus.Evaluate(ctx, roomID, itemID, room.MinActiveMembers)
	if err != nil {
		return nil, err
	}
	result.Match = consensus.Match
	result.MatchCreated = consensus.Created
	result.Consensus = &consensus.Progress
	return result, nil
}

// CheckConsensus evaluates the item without recording a vote.
func (rs *RoomService) CheckConsensus(ctx context.Context, roomID, itemID string) (ConsensusResult, error) {
	room, err := rs.GetRoom(ctx, roomID)
	if err != nil {
		return ConsensusResult{}, err
	}
	return rs.Consensus.Evaluate(ctx, roomID, itemID, room.MinActiveMembers)
}

// GetRoomMatches returns the room's matches, newest first.
func (rs *RoomService) GetRoomMatches(ctx context.Context, roomID string, limit int) ([]models.Match, error) {
	if _, err := rs.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return rs.Matches.GetRoomMatches(ctx, roomID, limit)
}

// GetMemberProgress reports the member's cursor position.
func (rs *RoomService) GetMemberProgress(ctx context.Context, roomID, userID string) (models.MemberProgress, error) {
	return rs.Members.GetMemberProgress(ctx, roomID, userID)
}

// ListMembers returns the room's members.
func (rs *RoomService) ListMembers(ctx context.Context, roomID string) ([]models.Member, error) {
	if _, err := rs.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return rs.Members.ListMembers(ctx, roomID)
}

// SweepAll runs the inactivity sweep over every room.
func (rs *RoomService) SweepAll(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	entries, err := rs.Store.QueryItems(ctx, Query{PK: models.RoomIndexKey})
	if err != nil {
		return 0, fmt.Errorf("failed to list rooms: %w", err)
	}
	total := 0
	for _, entry := range entries {
		roomID := utils.ExtractString(entry, "roomId")
		n, err := rs.Members.SweepInactive(ctx, roomID, now)
		if err != nil {
			return total, fmt.Errorf("sweep room %s: %w", roomID, err)
		}
		total += n
	}
	return total, nil
}

// Wait blocks until background notifications have finished.
func (rs *RoomService) Wait() {
	rs.Matches.Wait()
}

func validateMasterList(list []string) error {
	seen := make(map[string]struct{}, len(list))
	for _, id := range list {
		if !models.ValidID(id) {
			return fmt.Errorf("master list item %q: %w", id, ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("master list item %q repeated: %w", id, ErrInvalidInput)
		}
		seen[id] = struct{}{}
	}
	return nil
}
