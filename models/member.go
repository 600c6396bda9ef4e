package models

import "time"

// Member is a user's participation record within one room, including shuffle state.
type Member struct {
	PK             string       `dynamodbav:"PK" json:"-"`
	SK             string       `dynamodbav:"SK" json:"-"`
	RoomID         string       `dynamodbav:"roomId" json:"roomId"`
	UserID         string       `dynamodbav:"userId" json:"userId"`
	Role           MemberRole   `dynamodbav:"role" json:"role"`
	Status         MemberStatus `dynamodbav:"status" json:"status"`
	ShuffledList   []string     `dynamodbav:"shuffledList" json:"shuffledList"`
	TotalItems     int          `dynamodbav:"totalItems" json:"totalItems"`
	CurrentIndex   int          `dynamodbav:"currentIndex" json:"currentIndex"`
	LastActivityAt time.Time    `dynamodbav:"lastActivityAt" json:"lastActivityAt"`
	JoinedAt       time.Time    `dynamodbav:"joinedAt" json:"joinedAt"`
}

// NextItem returns the item under the cursor, or false when the queue is exhausted.
func (m *Member) NextItem() (string, bool) {
	if m.CurrentIndex < 0 || m.CurrentIndex >= len(m.ShuffledList) {
		return "", false
	}
	return m.ShuffledList[m.CurrentIndex], true
}

// IsActiveAt reports whether the member counts toward consensus at now.
// A stale timestamp excludes the member even if the sweep has not run yet.
func (m *Member) IsActiveAt(now time.Time, timeout time.Duration) bool {
	if m.Status != StatusActive {
		return false
	}
	return now.Sub(m.LastActivityAt) <= timeout
}

// MemberProgress is the cursor position reported to clients.
type MemberProgress struct {
	CurrentIndex       int `json:"currentIndex"`
	TotalItems         int `json:"totalItems"`
	ProgressPercentage int `json:"progressPercentage"`
}

// Progress computes the member's position in its shuffled list.
func (m *Member) Progress() MemberProgress {
	total := len(m.ShuffledList)
	p := MemberProgress{CurrentIndex: m.CurrentIndex, TotalItems: total}
	if total > 0 {
		p.ProgressPercentage = m.CurrentIndex * 100 / total
	}
	return p
}
