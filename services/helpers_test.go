package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"groupswipe/config"
	"groupswipe/models"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier collects every notified match.
type recordingNotifier struct {
	mu      sync.Mutex
	matches []models.Match
	err     error
}

func (n *recordingNotifier) OnMatchCreated(_ context.Context, m models.Match) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matches = append(n.matches, m)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.matches)
}

func testConsensusConfig() config.ConsensusConfig {
	return config.ConsensusConfig{
		MinActiveMembers:  2,
		InactivityTimeout: 30 * time.Minute,
		SweepInterval:     5 * time.Minute,
	}
}

// newTestRoomService returns a RoomService over a fresh MemoryStore.
func newTestRoomService(t *testing.T) (*RoomService, *fakeClock, *recordingNotifier) {
	t.Helper()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	rs := NewRoomService(NewMemoryStore(), testConsensusConfig(), notifier)
	rs.SetClock(clock.Now)
	t.Cleanup(rs.Wait)
	return rs, clock, notifier
}

// setupRoom creates a room hosted by the first user and joins the rest.
func setupRoom(t *testing.T, rs *RoomService, roomID string, users []string, master []string) {
	t.Helper()
	ctx := context.Background()
	if _, err := rs.CreateRoom(ctx, roomID, users[0], 0, master); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	for _, u := range users[1:] {
		if _, err := rs.Join(ctx, roomID, u, models.RoleMember); err != nil {
			t.Fatalf("Join %s: %v", u, err)
		}
	}
}

func mustVote(t *testing.T, rs *RoomService, roomID, userID, itemID string, vt models.VoteType) *VoteResult {
	t.Helper()
	res, err := rs.RecordVote(context.Background(), roomID, userID, itemID, vt)
	if err != nil {
		t.Fatalf("RecordVote(%s, %s, %s): %v", userID, itemID, vt, err)
	}
	return res
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
