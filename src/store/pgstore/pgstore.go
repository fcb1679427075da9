package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/db"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs units of work against Postgres. Row locks come from SELECT ... FOR UPDATE.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = &Store{}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return db.Transact(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

func (s *Store) WriteAudit(ctx context.Context, rec *models.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`
		---- Write audit record
		INSERT INTO audit_log (id, actor_email, action, target, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		`,
		rec.ID, rec.ActorEmail, rec.Action, rec.Target, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to write audit record")
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = &pgTx{}

func (t *pgTx) FindPost(ctx context.Context, ref store.PostRef, forUpdate bool) (*models.Post, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Find post
		SELECT $columns
		FROM post
		WHERE NOT deleted
	`)
	switch {
	case ref.ID != 0:
		qb.Add(`AND id = $?`, ref.ID)
	case ref.Slug != "":
		qb.Add(`AND slug = $?`, ref.Slug)
	default:
		qb.Add(`AND public_id = $?`, ref.PublicID)
	}
	if forUpdate {
		qb.Add(`FOR UPDATE`)
	}

	post, err := db.QueryOne[models.Post](ctx, t.tx, qb.String(), qb.Args()...)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, oops.Kinded(oops.KindNotFound, err, "post %s not found", ref)
		}
		return nil, oops.New(err, "failed to fetch post")
	}
	return post, nil
}

func (t *pgTx) SlugExists(ctx context.Context, slug string) (bool, error) {
	exists, err := db.QueryOneScalar[bool](ctx, t.tx,
		`
		---- Check slug
		SELECT EXISTS (SELECT 1 FROM post WHERE slug = $1)
		`,
		slug,
	)
	if err != nil {
		return false, oops.New(err, "failed to check slug")
	}
	return exists, nil
}

func (t *pgTx) CreatePost(ctx context.Context, p *models.Post) error {
	id, err := db.QueryOneScalar[int](ctx, t.tx,
		`
		---- Create post
		INSERT INTO post (
			public_id, slug, author_id, author_name, author_email,
			title, body, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
		`,
		p.PublicID, p.Slug, p.AuthorID, p.AuthorName, p.AuthorEmail,
		p.Title, p.Body, p.Status, p.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to create post")
	}
	p.ID = id
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (t *pgTx) UpdatePostReview(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post review",
		`
		---- Update post review
		UPDATE post
		SET
			status = $2,
			rejection_reason = $3,
			reviewed_by = $4,
			reviewed_at = $5,
			approved_at = $6,
			updated_at = $7
		WHERE id = $1
		`,
		p.ID, p.Status, p.RejectionReason, p.ReviewedBy, p.ReviewedAt, p.ApprovedAt, p.UpdatedAt,
	)
}

func (t *pgTx) UpdatePostContent(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post content",
		`
		---- Update post content
		UPDATE post
		SET title = $2, body = $3, updated_at = $4
		WHERE id = $1
		`,
		p.ID, p.Title, p.Body, p.UpdatedAt,
	)
}

func (t *pgTx) UpdatePostGrade(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post grade",
		`
		---- Update post grade
		UPDATE post
		SET
			grade = $2,
			grade_label = $3,
			graded_at = $4,
			graded_by = $5,
			credibility_delta_applied = $6,
			updated_at = $7
		WHERE id = $1
		`,
		p.ID, p.Grade, p.GradeLabel, p.GradedAt, p.GradedBy, p.CredibilityDeltaApplied, p.UpdatedAt,
	)
}

func (t *pgTx) DeletePost(ctx context.Context, postID int) error {
	return t.exec(ctx, "failed to delete post",
		`
		---- Delete post
		UPDATE post SET deleted = TRUE, updated_at = $2 WHERE id = $1
		`,
		postID, time.Now().UTC(),
	)
}

func (t *pgTx) CountApprovedPosts(ctx context.Context, authorEmail string) (int, error) {
	n, err := db.QueryOneScalar[int](ctx, t.tx,
		`
		---- Count approved posts
		SELECT COUNT(*)::int
		FROM post
		WHERE author_email = $1 AND status = $2 AND NOT deleted
		`,
		authorEmail, models.PostStatusApproved,
	)
	if err != nil {
		return 0, oops.New(err, "failed to count approved posts")
	}
	return n, nil
}

func (t *pgTx) FindAccountByEmail(ctx context.Context, email string, forUpdate bool) (*models.Account, error) {
	return t.findAccount(ctx, "email = $?", email, forUpdate)
}

func (t *pgTx) FindAccountByID(ctx context.Context, id int, forUpdate bool) (*models.Account, error) {
	return t.findAccount(ctx, "id = $?", id, forUpdate)
}

func (t *pgTx) findAccount(ctx context.Context, where string, arg any, forUpdate bool) (*models.Account, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Find account
		SELECT $columns
		FROM account
	`)
	qb.Add("WHERE "+where, arg)
	if forUpdate {
		qb.Add(`FOR UPDATE`)
	}

	account, err := db.QueryOne[models.Account](ctx, t.tx, qb.String(), qb.Args()...)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, oops.Kinded(oops.KindNotFound, err, "account %v not found", arg)
		}
		return nil, oops.New(err, "failed to fetch account")
	}
	return account, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, a *models.Account) error {
	id, err := db.QueryOneScalar[int](ctx, t.tx,
		`
		---- Create account
		INSERT INTO account (
			email, name, is_admin, score, initial_score,
			credibility_level, credibility_level_source, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
		`,
		a.Email, a.Name, a.IsAdmin, a.Score, a.InitialScore,
		a.Level, a.LevelSource, a.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to create account")
	}
	a.ID = id
	return nil
}

func (t *pgTx) ListAccountEmails(ctx context.Context) ([]string, error) {
	emails, err := db.QueryScalar[string](ctx, t.tx,
		`
		---- List account emails
		SELECT email FROM account ORDER BY id
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to list accounts")
	}
	return emails, nil
}

func (t *pgTx) UpdateScore(ctx context.Context, accountID int, score int) error {
	return t.exec(ctx, "failed to update score",
		`
		---- Update score
		UPDATE account SET score = $2 WHERE id = $1
		`,
		accountID, score,
	)
}

func (t *pgTx) UpdateAccountFlags(ctx context.Context, a *models.Account) error {
	return t.exec(ctx, "failed to update account flags",
		`
		---- Update account flags
		UPDATE account
		SET is_admin = $2, is_suspended = $3, is_soft_banned = $4
		WHERE id = $1
		`,
		a.ID, a.IsAdmin, a.IsSuspended, a.IsSoftBanned,
	)
}

func (t *pgTx) UpdateCredibilityLevel(ctx context.Context, a *models.Account) error {
	return t.exec(ctx, "failed to update credibility level",
		`
		---- Update credibility level
		UPDATE account
		SET
			credibility_level = $2,
			credibility_level_source = $3,
			credibility_updated_by = $4,
			credibility_updated_at = $5
		WHERE id = $1
		`,
		a.ID, a.Level, a.LevelSource, a.CredibilityUpdatedBy, a.CredibilityUpdatedAt,
	)
}

func (t *pgTx) AppendLedger(ctx context.Context, e *models.LedgerEntry) error {
	id, err := db.QueryOneScalar[int64](ctx, t.tx,
		`
		---- Append ledger entry
		INSERT INTO credibility_ledger (
			subject_email, related_post_id, action_type,
			delta, requested_delta, previous_score, new_score,
			acting_admin_email, reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
		`,
		e.SubjectEmail, e.RelatedPostID, e.ActionType,
		e.Delta, e.RequestedDelta, e.PreviousScore, e.NewScore,
		e.ActingAdminEmail, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to append ledger entry")
	}
	e.ID = id
	return nil
}

func (t *pgTx) ListLedger(ctx context.Context, subjectEmail string) ([]*models.LedgerEntry, error) {
	entries, err := db.Query[models.LedgerEntry](ctx, t.tx,
		`
		---- List ledger
		SELECT $columns
		FROM credibility_ledger
		WHERE subject_email = $1
		ORDER BY created_at, id
		`,
		subjectEmail,
	)
	if err != nil {
		return nil, oops.New(err, "failed to list ledger")
	}
	return entries, nil
}

func (t *pgTx) exec(ctx context.Context, errMsg string, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return oops.New(err, "%s", errMsg)
	}
	return nil
}
