package models

import (
	"fmt"
	"strings"
)

// RoomsTable is the default DynamoDB table holding rooms, members, votes and matches.
const RoomsTable = "GroupSwipe"

// Key prefixes used for the single-table layout.
const (
	RoomKeyPrefix   = "ROOM#"
	MetaSortKey     = "META"
	MemberKeyPrefix = "MEMBER#"
	VoteKeyPrefix   = "VOTE#"
	TallyKeyPrefix  = "TALLY#"
	MatchKeyPrefix  = "MATCH#"
	RoomIndexKey    = "ROOMS"
	keySeparator    = "#"
)

// VoteType is the outcome a member records for an item.
type VoteType string

const (
	VoteLike    VoteType = "LIKE"
	VoteDislike VoteType = "DISLIKE"
)

// Valid reports whether v is one of the known vote types.
func (v VoteType) Valid() bool {
	return v == VoteLike || v == VoteDislike
}

// ParseVoteType accepts the canonical names case-insensitively.
func ParseVoteType(s string) (VoteType, error) {
	v := VoteType(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("unknown vote type %q", s)
	}
	return v, nil
}

// ConsensusType records which rule produced a match.
type ConsensusType string

const ConsensusUnanimous ConsensusType = "UNANIMOUS"

// MemberStatus tracks whether a member counts toward consensus.
type MemberStatus string

const (
	StatusActive   MemberStatus = "ACTIVE"
	StatusInactive MemberStatus = "INACTIVE"
)

// MemberRole is the member's role within a room.
type MemberRole string

const (
	RoleHost   MemberRole = "HOST"
	RoleMember MemberRole = "MEMBER"
)

// ParseMemberRole defaults an empty role to RoleMember.
func ParseMemberRole(s string) (MemberRole, error) {
	switch MemberRole(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoleMember:
		return RoleMember, nil
	case RoleHost:
		return RoleHost, nil
	default:
		return "", fmt.Errorf("unknown member role %q", s)
	}
}

// ValidID reports whether id can be embedded in a composite sort key.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, keySeparator)
}

// RoomPK returns the partition key shared by every record of a room.
func RoomPK(roomID string) string { return RoomKeyPrefix + roomID }

func MemberSK(userID string) string { return MemberKeyPrefix + userID }

// VoteItemPrefix selects every vote cast on itemID.
func VoteItemPrefix(itemID string) string { return VoteKeyPrefix + itemID + keySeparator }

func VoteSK(itemID, userID string) string { return VoteItemPrefix(itemID) + userID }

func TallySK(itemID string) string { return TallyKeyPrefix + itemID }

func MatchSK(itemID string) string { return MatchKeyPrefix + itemID }
