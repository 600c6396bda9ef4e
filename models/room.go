package models

import "time"

// Room holds the settings shared by all members of a room.
type Room struct {
	PK               string    `dynamodbav:"PK" json:"-"`
	SK               string    `dynamodbav:"SK" json:"-"`
	RoomID           string    `dynamodbav:"roomId" json:"roomId"`
	HostID           string    `dynamodbav:"hostId" json:"hostId"`
	MasterList       []string  `dynamodbav:"masterList" json:"masterList"`
	MinActiveMembers int       `dynamodbav:"minActiveMembers" json:"minActiveMembers"` // 0 uses the service default
	CreatedAt        time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// RoomIndexEntry lets the inactivity sweep enumerate rooms without a table scan.
type RoomIndexEntry struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	RoomID    string    `dynamodbav:"roomId"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}
