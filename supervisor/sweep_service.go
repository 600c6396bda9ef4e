package supervisor

import (
	"context"
	"time"

	"groupswipe/logging"
)

// Sweeper marks members inactive once their last activity is too old.
type Sweeper interface {
	SweepAll(ctx context.Context, now time.Time) (int, error)
}

// SweepService runs a Sweeper on a fixed interval. A failed sweep is logged
// and retried on the next tick.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
}

func NewSweepService(sweeper Sweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepService{sweeper: sweeper, interval: interval, now: time.Now}
}

func (s *SweepService) Serve(ctx context.Context) error {
	log := logging.WithComponent("sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swept, err := s.sweeper.SweepAll(ctx, s.now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("Inactivity sweep failed")
				continue
			}
			if swept > 0 {
				log.Info().Int("swept", swept).Msg("Marked inactive members")
			}
		}
	}
}

func (s *SweepService) String() string { return "inactivity-sweeper" }
