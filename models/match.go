package models

import "time"

// Match is created once, the first time every active member likes the same item.
// Only NotificationsSent changes after creation.
type Match struct {
	PK                string        `dynamodbav:"PK" json:"-"`
	SK                string        `dynamodbav:"SK" json:"-"`
	MatchID           string        `dynamodbav:"matchId" json:"matchId"`
	RoomID            string        `dynamodbav:"roomId" json:"roomId"`
	ItemID            string        `dynamodbav:"itemId" json:"itemId"`
	Participants      []string      `dynamodbav:"participants" json:"participants"` // likers at consensus time
	ConsensusType     ConsensusType `dynamodbav:"consensusType" json:"consensusType"`
	TotalVotes        int           `dynamodbav:"totalVotes" json:"totalVotes"`
	NotificationsSent bool          `dynamodbav:"notificationsSent" json:"notificationsSent"`
	CreatedAt         time.Time     `dynamodbav:"createdAt" json:"createdAt"`
}

// ConsensusProgress describes how close an item is to a match.
type ConsensusProgress struct {
	HasMatch      bool `json:"hasMatch"`
	RequiredVotes int  `json:"requiredVotes"` // size of the active member set
	CurrentLikes  int  `json:"currentLikes"`  // active members that liked the item
	MinMembers    int  `json:"minMembers"`
}
