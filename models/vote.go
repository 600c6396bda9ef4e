package models

import "time"

// Vote is keyed by (roomId, userId, itemId); at most one exists per key.
type Vote struct {
	PK        string    `dynamodbav:"PK" json:"-"`
	SK        string    `dynamodbav:"SK" json:"-"`
	RoomID    string    `dynamodbav:"roomId" json:"roomId"`
	UserID    string    `dynamodbav:"userId" json:"userId"`
	ItemID    string    `dynamodbav:"itemId" json:"itemId"`
	VoteType  VoteType  `dynamodbav:"voteType" json:"voteType"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// VoteTally aggregates votes per (roomId, itemId).
type VoteTally struct {
	PK            string `dynamodbav:"PK" json:"-"`
	SK            string `dynamodbav:"SK" json:"-"`
	RoomID        string `dynamodbav:"roomId" json:"roomId"`
	ItemID        string `dynamodbav:"itemId" json:"itemId"`
	LikesCount    int    `dynamodbav:"likesCount" json:"likesCount"`
	DislikesCount int    `dynamodbav:"dislikesCount" json:"dislikesCount"`
}

// Total returns the number of votes recorded for the item.
func (t VoteTally) Total() int { return t.LikesCount + t.DislikesCount }

// Counter attribute names on VoteTally records.
const (
	LikesCountAttr    = "likesCount"
	DislikesCountAttr = "dislikesCount"
)

// CounterAttr returns the tally attribute incremented by a vote of type v.
func (v VoteType) CounterAttr() string {
	if v == VoteLike {
		return LikesCountAttr
	}
	return DislikesCountAttr
}
