/*
Package moderation is the operation surface of the core: the post lifecycle, admin
review and grading, and the account-level credibility controls.

Every operation validates its input and the actor's identity before opening a
transaction. State checks that depend on stored data run inside the transaction,
under row locks, before anything is written, so a failed precondition never leaves a
partial write behind. Audit records are written after commit and may fail silently.
*/
package moderation

import (
	"context"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/audit"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/perf"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
	"github.com/rs/zerolog"
)

type Service struct {
	store  store.Store
	engine *reputation.Engine
	audit  *audit.Trail
	cfg    config.CredibilityConfig
}

func NewService(s store.Store, cfg config.CredibilityConfig) *Service {
	return &Service{
		store:  s,
		engine: reputation.NewEngine(cfg),
		audit:  audit.NewTrail(s),
		cfg:    cfg,
	}
}

// WithClock replaces the time source used for timestamps. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.engine.WithClock(now)
	return s
}

func (s *Service) Engine() *reputation.Engine {
	return s.engine
}

func (s *Service) now() time.Time {
	return s.engine.Now()
}

func (s *Service) isSuperAdmin(email string) bool {
	superAdmin := utils.NormalizeEmail(s.cfg.SuperAdminEmail)
	return superAdmin != "" && utils.NormalizeEmail(email) == superAdmin
}

func (s *Service) isAdmin(actor Actor) bool {
	return actor.HasRole(RoleAdmin) || s.isSuperAdmin(actor.Email)
}

func (s *Service) requireAdmin(actor Actor) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}
	if !s.isAdmin(actor) {
		return oops.Kinded(oops.KindForbidden, nil, "admin role required")
	}
	return nil
}

// startOperation attaches a perf tracker and an operation-scoped logger to ctx. The
// returned func logs the timings.
func (s *Service) startOperation(ctx context.Context, op string, actor Actor) (context.Context, *zerolog.Logger, func()) {
	p := perf.MakeNewOperationPerf(op)
	logger := logging.ExtractLogger(ctx).With().
		Str("op", op).
		Str("actor", actor.NormalizedEmail()).
		Logger()

	ctx = perf.AttachPerf(ctx, p)
	ctx = logging.AttachLoggerToContext(&logger, ctx)

	return ctx, &logger, func() {
		p.EndOperation()
		logger.Debug().Object("perf", p).Msg("operation finished")
	}
}

func (s *Service) transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	b := perf.ExtractPerf(ctx).StartBlock("TX", "transaction")
	defer b.End()
	return s.store.Transact(ctx, fn)
}

// ActorFor builds the actor for a stored account. Command-line tools use it in place
// of an auth provider.
func (s *Service) ActorFor(ctx context.Context, email string) (Actor, error) {
	account, err := s.Account(ctx, email)
	if err != nil {
		return Actor{}, err
	}
	actor := Actor{ID: account.ID, Email: account.Email, Roles: []Role{RoleAuthor}}
	if account.IsAdmin {
		actor.Roles = append(actor.Roles, RoleAdmin)
	}
	return actor, nil
}

func (s *Service) Account(ctx context.Context, email string) (*models.Account, error) {
	var account *models.Account
	err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByEmail(ctx, utils.NormalizeEmail(email), false)
		return err
	})
	return account, err
}

func (s *Service) Post(ctx context.Context, ref store.PostRef) (*models.Post, error) {
	var post *models.Post
	err := s.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		post, err = tx.FindPost(ctx, ref, false)
		return err
	})
	return post, err
}
