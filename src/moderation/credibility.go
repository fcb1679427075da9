package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
)

type AdjustResult struct {
	PreviousScore int
	NewScore      int
	Delta         int // Effective
	Requested     int
	Clamped       bool // The requested delta exceeded the manual limit
}

/*
AdjustCredibility applies a manual delta to an account. Deltas are clamped to
±ManualDeltaLimit unless the acting admin is the configured super-admin. The
account's current level is pinned as manually set, so re-derivation leaves it alone.
*/
func (s *Service) AdjustCredibility(ctx context.Context, targetEmail string, delta int, reason string, admin Actor) (*AdjustResult, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, oops.Kinded(oops.KindValidation, nil, "a reason is required for manual adjustments")
	}
	ctx, logger, done := s.startOperation(ctx, "AdjustCredibility", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	result := &AdjustResult{Requested: delta}
	applied := delta
	if !s.isSuperAdmin(adminEmail) {
		limit := utils.IntAbs(s.cfg.ManualDeltaLimit)
		applied = utils.IntClamp(-limit, delta, limit)
	}
	result.Clamped = applied != delta

	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, utils.NormalizeEmail(targetEmail), true)
		if err != nil {
			return err
		}

		res, err := s.engine.ApplyToAccountTx(ctx, tx, account, float64(applied), reputation.Meta{
			Action:           models.LedgerManualAdjust,
			ActingAdminEmail: adminEmail,
			Reason:           &reason,
		})
		if err != nil {
			return err
		}

		account.SetCredibility(models.ManualCredibility{Level: account.Level, By: adminEmail, At: s.now()})
		if err := tx.UpdateCredibilityLevel(ctx, account); err != nil {
			return err
		}

		result.PreviousScore = res.PreviousScore
		result.NewScore = res.NewScore
		result.Delta = res.Delta
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("subject", utils.NormalizeEmail(targetEmail)).
		Int("requested", delta).
		Int("delta", result.Delta).
		Msg("credibility adjusted")
	s.audit.Log(ctx, adminEmail, "adjust", utils.NormalizeEmail(targetEmail), "requested=%d applied=%d score=%d->%d reason=%s",
		delta, applied, result.PreviousScore, result.NewScore, reason)
	return result, nil
}

type SuspendOptions struct {
	SetScoreToZero bool
	Reason         string
}

type SuspendResult struct {
	Account       *models.Account
	PreviousScore int
	NewScore      int
	ScoreZeroed   bool
}

// SuspendAuthor suspends and soft-bans an account. Zeroing the score goes through the
// ledger as a Suspend entry. The super-admin cannot be suspended.
func (s *Service) SuspendAuthor(ctx context.Context, accountID int, opts SuspendOptions, admin Actor) (*SuspendResult, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	ctx, logger, done := s.startOperation(ctx, "SuspendAuthor", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	var reason *string
	if r := strings.TrimSpace(opts.Reason); r != "" {
		reason = &r
	}

	result := &SuspendResult{}
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		if s.isSuperAdmin(account.Email) {
			return oops.Kinded(oops.KindForbidden, nil, "the super-admin account cannot be suspended")
		}

		account.IsSuspended = true
		account.IsSoftBanned = true
		if err := tx.UpdateAccountFlags(ctx, account); err != nil {
			return err
		}

		result.PreviousScore = account.Score
		if opts.SetScoreToZero && account.Score != 0 {
			if _, err := s.engine.ApplyToAccountTx(ctx, tx, account, float64(-account.Score), reputation.Meta{
				Action:           models.LedgerSuspend,
				ActingAdminEmail: adminEmail,
				Reason:           reason,
			}); err != nil {
				return err
			}
			result.ScoreZeroed = true
		}
		result.NewScore = account.Score
		result.Account = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("subject", result.Account.Email).Bool("zeroed", result.ScoreZeroed).Msg("account suspended")
	s.audit.Log(ctx, adminEmail, "suspend", accountTarget(result.Account), "score=%d->%d", result.PreviousScore, result.NewScore)
	return result, nil
}

// UnsuspendAuthor clears both suspension flags. The score is not restored and no
// ledger entry is written.
func (s *Service) UnsuspendAuthor(ctx context.Context, accountID int, admin Actor) (*models.Account, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	ctx, logger, done := s.startOperation(ctx, "UnsuspendAuthor", admin)
	defer done()

	var account *models.Account
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		account.IsSuspended = false
		account.IsSoftBanned = false
		return tx.UpdateAccountFlags(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("subject", account.Email).Msg("account unsuspended")
	s.audit.Log(ctx, admin.NormalizedEmail(), "unsuspend", accountTarget(account), "score=%d", account.Score)
	return account, nil
}

// PromoteToAdmin grants the admin role and raises the score to at least AdminFloor.
// A score already above the floor is kept.
func (s *Service) PromoteToAdmin(ctx context.Context, accountID int, admin Actor) (*models.Account, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	ctx, logger, done := s.startOperation(ctx, "PromoteToAdmin", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	var account *models.Account
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}

		account.IsAdmin = true
		if err := tx.UpdateAccountFlags(ctx, account); err != nil {
			return err
		}

		if floor := reputation.NextScore(s.cfg.AdminFloor, 0); account.Score < floor {
			_, err := s.engine.ApplyToAccountTx(ctx, tx, account, float64(floor-account.Score), reputation.Meta{
				Action:           models.LedgerAdminPromotion,
				ActingAdminEmail: adminEmail,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("subject", account.Email).Int("score", account.Score).Msg("account promoted to admin")
	s.audit.Log(ctx, adminEmail, "promote", accountTarget(account), "score=%d", account.Score)
	return account, nil
}

// SetCredibilityLevel pins an account's level. Background re-derivation will not
// overwrite it until ResetCredibilityLevel is called.
func (s *Service) SetCredibilityLevel(ctx context.Context, targetEmail string, level models.CredibilityLevel, admin Actor) (*models.Account, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	if _, ok := models.ParseCredibilityLevel(string(level)); !ok {
		return nil, oops.Kinded(oops.KindValidation, nil, "unknown credibility level %q", level)
	}
	ctx, logger, done := s.startOperation(ctx, "SetCredibilityLevel", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	var account *models.Account
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByEmail(ctx, utils.NormalizeEmail(targetEmail), true)
		if err != nil {
			return err
		}
		account.SetCredibility(models.ManualCredibility{Level: level, By: adminEmail, At: s.now()})
		return tx.UpdateCredibilityLevel(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("subject", account.Email).Str("level", string(level)).Msg("credibility level set")
	s.audit.Log(ctx, adminEmail, "set-level", accountTarget(account), "level=%s", level)
	return account, nil
}

// ResetCredibilityLevel drops a manual level and derives it again from approved posts.
func (s *Service) ResetCredibilityLevel(ctx context.Context, targetEmail string, admin Actor) (*models.Account, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	ctx, _, done := s.startOperation(ctx, "ResetCredibilityLevel", admin)
	defer done()

	var account *models.Account
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByEmail(ctx, utils.NormalizeEmail(targetEmail), true)
		if err != nil {
			return err
		}
		account.SetCredibility(models.DerivedCredibility{Level: account.Level})
		if err := tx.UpdateCredibilityLevel(ctx, account); err != nil {
			return err
		}
		_, err = s.engine.RederiveLevelTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, admin.NormalizedEmail(), "reset-level", accountTarget(account), "level=%s", account.Level)
	return account, nil
}

// Ledger lists a subject's ledger, oldest first. Admins can read any ledger; authors
// only their own.
func (s *Service) Ledger(ctx context.Context, subjectEmail string, actor Actor) ([]*models.LedgerEntry, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	subjectEmail = utils.NormalizeEmail(subjectEmail)
	if !s.isAdmin(actor) && actor.NormalizedEmail() != subjectEmail {
		return nil, oops.Kinded(oops.KindForbidden, nil, "cannot read another account's ledger")
	}

	var entries []*models.LedgerEntry
	err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.FindAccountByEmail(ctx, subjectEmail, false); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListLedger(ctx, subjectEmail)
		return err
	})
	return entries, err
}

func (s *Service) VerifyReplay(ctx context.Context, subjectEmail string) (reputation.ReplayReport, error) {
	return s.engine.VerifyReplay(ctx, s.store, subjectEmail)
}

// RederiveLevels recomputes every derived credibility level, one account per
// transaction. Returns how many levels changed.
func (s *Service) RederiveLevels(ctx context.Context) (int, error) {
	var emails []string
	err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		emails, err = tx.ListAccountEmails(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		// The unit of work may run more than once, so count only what committed.
		var didChange bool
		err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
			account, err := tx.FindAccountByEmail(ctx, email, true)
			if err != nil {
				return err
			}
			didChange, err = s.engine.RederiveLevelTx(ctx, tx, account)
			return err
		})
		if err != nil {
			return changed, oops.New(err, "failed to rederive level for %s", email)
		}
		if didChange {
			changed++
		}
	}
	return changed, nil
}

// ListAccountEmails lists every account in creation order.
func (s *Service) ListAccountEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		emails, err = tx.ListAccountEmails(ctx)
		return err
	})
	return emails, err
}

func postTarget(p *models.Post) string {
	return fmt.Sprintf("post %d (%s)", p.ID, p.Slug)
}

func accountTarget(a *models.Account) string {
	return fmt.Sprintf("account %d (%s)", a.ID, a.Email)
}
