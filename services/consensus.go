package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupswipe/metrics"
	"groupswipe/models"
)

// DefaultMinActiveMembers is used when neither the room nor the config sets one.
const DefaultMinActiveMembers = 2

// ConsensusDetector decides whether an item has reached unanimous approval
// among the room's active members.
type ConsensusDetector struct {
	Members *MemberService
	Votes   *VoteLedger
	Matches *MatchStore

	MinActiveMembers int
	Clock            func() time.Time
}

// ConsensusResult is the outcome of one evaluation. Match is set once the
// item has matched, whether by this evaluation or an earlier one.
type ConsensusResult struct {
	Match    *models.Match
	Created  bool
	Progress models.ConsensusProgress
}

func (cd *ConsensusDetector) now() time.Time {
	if cd.Clock != nil {
		return cd.Clock()
	}
	return time.Now().UTC()
}

// Evaluate checks the item and creates its match when every active member
// liked it. minMembers <= 0 falls back to the detector default.
// The active set is read fresh on every call.
func (cd *ConsensusDetector) Evaluate(ctx context.Context, roomID, itemID string, minMembers int) (ConsensusResult, error) {
	if minMembers <= 0 {
		minMembers = cd.MinActiveMembers
	}
	if minMembers <= 0 {
		minMembers = DefaultMinActiveMembers
	}

	existing, err := cd.Matches.GetMatch(ctx, roomID, itemID)
	switch {
	case err == nil:
		metrics.ConsensusChecks.WithLabelValues("existing").Inc()
		return ConsensusResult{
			Match:    &existing,
			Progress: models.ConsensusProgress{HasMatch: true, RequiredVotes: len(existing.Participants), CurrentLikes: len(existing.Participants), MinMembers: minMembers},
		}, nil
	case !errors.Is(err, ErrNotFound):
		return ConsensusResult{}, err
	}

	active, err := cd.Members.ActiveMembers(ctx, roomID, cd.now())
	if err != nil {
		return ConsensusResult{}, err
	}
	votes, err := cd.Votes.ItemVotes(ctx, roomID, itemID)
	if err != nil {
		return ConsensusResult{}, err
	}
	likers := likersOf(votes)

	liked := make(map[string]struct{}, len(likers))
	for _, u := range likers {
		liked[u] = struct{}{}
	}
	activeLikes := 0
	for _, m := range active {
		if _, ok := liked[m.UserID]; ok {
			activeLikes++
		}
	}

	progress := models.ConsensusProgress{
		RequiredVotes: len(active),
		CurrentLikes:  activeLikes,
		MinMembers:    minMembers,
	}
	if len(active) == 0 || len(active) < minMembers || activeLikes < len(active) {
		metrics.ConsensusChecks.WithLabelValues("pending").Inc()
		return ConsensusResult{Progress: progress}, nil
	}

	match, created, err := cd.Matches.CreateMatch(ctx, roomID, itemID, likers, len(votes))
	if err != nil {
		return ConsensusResult{}, fmt.Errorf("failed to materialize match: %w", err)
	}
	metrics.ConsensusChecks.WithLabelValues("match").Inc()
	progress.HasMatch = true
	return ConsensusResult{Match: &match, Created: created, Progress: progress}, nil
}
