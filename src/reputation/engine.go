/*
Package reputation owns every change to an author's credibility score.

A score only moves through Engine.ApplyDeltaTx, which locks the account row, stores the
new score, and appends the matching ledger entry inside the caller's transaction. The
ledger records the effective delta (new score minus previous score), so summing a
subject's entries onto their initial score reproduces the current score.
*/
package reputation

import (
	"context"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
)

type Engine struct {
	cfg config.CredibilityConfig
	now func() time.Time
}

func NewEngine(cfg config.CredibilityConfig) *Engine {
	return &Engine{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine's time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) Config() config.CredibilityConfig {
	return e.cfg
}

// Meta describes why a delta is being applied.
type Meta struct {
	Action           models.LedgerAction
	RelatedPostID    *int
	ActingAdminEmail string
	Reason           *string
}

type Result struct {
	PreviousScore int
	NewScore      int
	Delta         int // Effective, after rounding and clamping
	Entry         *models.LedgerEntry
}

// ApplyDelta runs ApplyDeltaTx in its own transaction.
func (e *Engine) ApplyDelta(ctx context.Context, s store.Store, subjectEmail string, delta float64, meta Meta) (Result, error) {
	var res Result
	err := s.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = e.ApplyDeltaTx(ctx, tx, subjectEmail, delta, meta)
		return err
	})
	return res, err
}

// ApplyDeltaTx looks up the subject by normalized email, locking the account row for
// the rest of tx, and applies delta to it.
func (e *Engine) ApplyDeltaTx(ctx context.Context, tx store.Tx, subjectEmail string, delta float64, meta Meta) (Result, error) {
	if err := validateDelta(delta); err != nil {
		return Result{}, err
	}

	email := utils.NormalizeEmail(subjectEmail)
	account, err := tx.FindAccountByEmail(ctx, email, true)
	if err != nil {
		return Result{}, oops.New(err, "failed to find subject of score change")
	}
	return e.ApplyToAccountTx(ctx, tx, account, delta, meta)
}

// ApplyToAccountTx applies delta to an account the caller has already loaded with
// forUpdate. account.Score is updated in place.
func (e *Engine) ApplyToAccountTx(ctx context.Context, tx store.Tx, account *models.Account, delta float64, meta Meta) (Result, error) {
	if err := validateDelta(delta); err != nil {
		return Result{}, err
	}
	if meta.Action == "" {
		return Result{}, oops.New(nil, "score change has no ledger action")
	}

	previous := account.Score
	next := NextScore(previous, delta)

	if err := tx.UpdateScore(ctx, account.ID, next); err != nil {
		return Result{}, err
	}

	entry := &models.LedgerEntry{
		SubjectEmail:     account.Email,
		RelatedPostID:    meta.RelatedPostID,
		ActionType:       meta.Action,
		Delta:            next - previous,
		RequestedDelta:   delta,
		PreviousScore:    previous,
		NewScore:         next,
		ActingAdminEmail: meta.ActingAdminEmail,
		Reason:           meta.Reason,
		CreatedAt:        e.now(),
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return Result{}, err
	}
	account.Score = next

	logging.ExtractLogger(ctx).Debug().
		Str("subject", account.Email).
		Str("action", string(meta.Action)).
		Float64("requested", delta).
		Int("previous", previous).
		Int("new", next).
		Msg("applied score change")

	return Result{
		PreviousScore: previous,
		NewScore:      next,
		Delta:         entry.Delta,
		Entry:         entry,
	}, nil
}

// RederiveLevelTx recomputes a derived credibility level from the author's approved
// posts. Manually set levels are left alone. Reports whether the level changed.
func (e *Engine) RederiveLevelTx(ctx context.Context, tx store.Tx, account *models.Account) (bool, error) {
	if _, manual := account.Credibility().(models.ManualCredibility); manual {
		return false, nil
	}

	approved, err := tx.CountApprovedPosts(ctx, account.Email)
	if err != nil {
		return false, err
	}
	level := LevelForApprovedCount(approved)
	if level == account.Level && account.LevelSource == models.LevelSourceDerived {
		return false, nil
	}

	account.SetCredibility(models.DerivedCredibility{Level: level})
	if err := tx.UpdateCredibilityLevel(ctx, account); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyReplay replays a subject's ledger against their current score.
func (e *Engine) VerifyReplay(ctx context.Context, s store.Store, subjectEmail string) (ReplayReport, error) {
	var report ReplayReport
	err := s.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, utils.NormalizeEmail(subjectEmail), false)
		if err != nil {
			return err
		}
		entries, err := tx.ListLedger(ctx, account.Email)
		if err != nil {
			return err
		}
		report = Replay(account, entries)
		return nil
	})
	return report, err
}
