package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/jobs"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"golang.org/x/sync/errgroup"
)

func PeriodicallyRederiveLevels(svc *Service, interval time.Duration) *jobs.Job {
	return jobs.Periodically("rederive credibility levels", interval, true, func(ctx context.Context) error {
		n, err := svc.RederiveLevels(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logging.ExtractLogger(ctx).Info().Int("changed", n).Msg("Rederived credibility levels")
		}
		return nil
	})
}

func PeriodicallyVerifyLedgers(svc *Service, interval time.Duration, concurrency int) *jobs.Job {
	return jobs.Periodically("verify credibility ledgers", interval, false, func(ctx context.Context) error {
		broken, err := svc.VerifyLedgers(ctx, concurrency)
		if err != nil {
			return err
		}
		logger := logging.ExtractLogger(ctx)
		for _, report := range broken {
			logger.Warn().
				Str("subject", report.SubjectEmail).
				Int("current", report.CurrentScore).
				Int("replayed", report.ReplayedScore).
				Ints64("broken entries", report.BrokenEntries).
				Msg("Ledger replay does not match score")
		}
		return nil
	})
}

// VerifyLedgers replays every account's ledger and returns the reports that do not
// match the stored score.
func (s *Service) VerifyLedgers(ctx context.Context, concurrency int) ([]reputation.ReplayReport, error) {
	emails, err := s.ListAccountEmails(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var broken []reputation.ReplayReport

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, email := range emails {
		g.Go(func() error {
			report, err := s.VerifyReplay(ctx, email)
			if err != nil {
				return err
			}
			if !report.Consistent() {
				mu.Lock()
				broken = append(broken, report)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return broken, nil
}
