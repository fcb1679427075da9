/*
Package sqlitestore keeps the whole moderation core in one embedded SQLite file. It is
meant for local development and tests; production deployments use pgstore.

The database handle is limited to a single connection, so a transaction holds the only
connection until it commits or rolls back. That serializes units of work, which stands
in for the row locks pgstore takes with FOR UPDATE.
*/
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/db"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Store struct {
	db *sql.DB
}

var _ store.Store = &Store{}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.New(err, "failed to open sqlite database")
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
		schema,
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, oops.New(err, "failed to initialize sqlite database")
		}
	}

	return &Store{db: conn}, nil
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.New(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

func (s *Store) WriteAudit(ctx context.Context, rec *models.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor_email, action, target, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.ActorEmail, rec.Action, rec.Target, rec.Details, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return oops.New(err, "failed to write audit record")
	}
	return nil
}

// AuditRecords lists every audit row, oldest first.
func (s *Store) AuditRecords(ctx context.Context) ([]*models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_email, action, target, details, created_at FROM audit_log ORDER BY created_at`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to list audit records")
	}
	defer rows.Close()

	var result []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.ActorEmail, &rec.Action, &rec.Target, &rec.Details, timeColumn{&rec.CreatedAt}); err != nil {
			return nil, oops.New(err, "failed to scan audit record")
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.New(err, "error while iterating through audit records")
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const postColumns = `
	id, public_id, slug, author_id, author_name, author_email, title, body, status,
	rejection_reason, reviewed_by, reviewed_at, approved_at,
	grade, grade_label, graded_at, graded_by, credibility_delta_applied,
	deleted, created_at, updated_at
`

const accountColumns = `
	id, email, name, is_admin, score, initial_score, is_suspended, is_soft_banned,
	credibility_level, credibility_level_source, credibility_updated_by, credibility_updated_at,
	created_at
`

const ledgerColumns = `
	id, subject_email, related_post_id, action_type, delta, requested_delta,
	previous_score, new_score, acting_admin_email, reason, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(
		&p.ID, &p.PublicID, &p.Slug, &p.AuthorID, &p.AuthorName, &p.AuthorEmail, &p.Title, &p.Body, &p.Status,
		&p.RejectionReason, &p.ReviewedBy, nullTimeColumn{&p.ReviewedAt}, nullTimeColumn{&p.ApprovedAt},
		&p.Grade, &p.GradeLabel, nullTimeColumn{&p.GradedAt}, &p.GradedBy, &p.CredibilityDeltaApplied,
		&p.Deleted, timeColumn{&p.CreatedAt}, timeColumn{&p.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.IsAdmin, &a.Score, &a.InitialScore, &a.IsSuspended, &a.IsSoftBanned,
		&a.Level, &a.LevelSource, &a.CredibilityUpdatedBy, nullTimeColumn{&a.CredibilityUpdatedAt},
		timeColumn{&a.CreatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(
		&e.ID, &e.SubjectEmail, &e.RelatedPostID, &e.ActionType, &e.Delta, &e.RequestedDelta,
		&e.PreviousScore, &e.NewScore, &e.ActingAdminEmail, &e.Reason, timeColumn{&e.CreatedAt},
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Row locks are implicit: the transaction owns the only connection.
type sqliteTx struct {
	tx *sql.Tx
}

var _ store.Tx = &sqliteTx{}

func (t *sqliteTx) FindPost(ctx context.Context, ref store.PostRef, forUpdate bool) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM post WHERE NOT deleted AND `
	var arg any
	switch {
	case ref.ID != 0:
		query += `id = ?`
		arg = ref.ID
	case ref.Slug != "":
		query += `slug = ?`
		arg = ref.Slug
	default:
		query += `public_id = ?`
		arg = ref.PublicID.String()
	}

	post, err := scanPost(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Kinded(oops.KindNotFound, db.NotFound, "post %s not found", ref)
		}
		return nil, oops.New(err, "failed to fetch post")
	}
	return post, nil
}

func (t *sqliteTx) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM post WHERE slug = ?)`, slug).Scan(&exists)
	if err != nil {
		return false, oops.New(err, "failed to check slug")
	}
	return exists, nil
}

func (t *sqliteTx) CreatePost(ctx context.Context, p *models.Post) error {
	res, err := t.tx.ExecContext(ctx,
		`
		INSERT INTO post (
			public_id, slug, author_id, author_name, author_email,
			title, body, status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
		p.PublicID.String(), p.Slug, p.AuthorID, p.AuthorName, p.AuthorEmail,
		p.Title, p.Body, int(p.Status), formatTime(p.CreatedAt), formatTime(p.CreatedAt),
	)
	if err != nil {
		return oops.New(err, "failed to create post")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.New(err, "failed to read new post id")
	}
	p.ID = int(id)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (t *sqliteTx) UpdatePostReview(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post review",
		`
		UPDATE post
		SET status = ?, rejection_reason = ?, reviewed_by = ?, reviewed_at = ?, approved_at = ?, updated_at = ?
		WHERE id = ?
		`,
		int(p.Status), p.RejectionReason, p.ReviewedBy, formatTimePtr(p.ReviewedAt), formatTimePtr(p.ApprovedAt),
		formatTime(p.UpdatedAt), p.ID,
	)
}

func (t *sqliteTx) UpdatePostContent(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post content",
		`UPDATE post SET title = ?, body = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Body, formatTime(p.UpdatedAt), p.ID,
	)
}

func (t *sqliteTx) UpdatePostGrade(ctx context.Context, p *models.Post) error {
	return t.exec(ctx, "failed to update post grade",
		`
		UPDATE post
		SET grade = ?, grade_label = ?, graded_at = ?, graded_by = ?, credibility_delta_applied = ?, updated_at = ?
		WHERE id = ?
		`,
		p.Grade, p.GradeLabel, formatTimePtr(p.GradedAt), p.GradedBy, p.CredibilityDeltaApplied,
		formatTime(p.UpdatedAt), p.ID,
	)
}

func (t *sqliteTx) DeletePost(ctx context.Context, postID int) error {
	return t.exec(ctx, "failed to delete post",
		`UPDATE post SET deleted = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), postID,
	)
}

func (t *sqliteTx) CountApprovedPosts(ctx context.Context, authorEmail string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post WHERE author_email = ? AND status = ? AND NOT deleted`,
		authorEmail, int(models.PostStatusApproved),
	).Scan(&n)
	if err != nil {
		return 0, oops.New(err, "failed to count approved posts")
	}
	return n, nil
}

func (t *sqliteTx) FindAccountByEmail(ctx context.Context, email string, forUpdate bool) (*models.Account, error) {
	return t.findAccount(ctx, `email = ?`, email)
}

func (t *sqliteTx) FindAccountByID(ctx context.Context, id int, forUpdate bool) (*models.Account, error) {
	return t.findAccount(ctx, `id = ?`, id)
}

func (t *sqliteTx) findAccount(ctx context.Context, where string, arg any) (*models.Account, error) {
	account, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM account WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Kinded(oops.KindNotFound, db.NotFound, "account %v not found", arg)
		}
		return nil, oops.New(err, "failed to fetch account")
	}
	return account, nil
}

func (t *sqliteTx) CreateAccount(ctx context.Context, a *models.Account) error {
	res, err := t.tx.ExecContext(ctx,
		`
		INSERT INTO account (
			email, name, is_admin, score, initial_score,
			credibility_level, credibility_level_source, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
		a.Email, a.Name, a.IsAdmin, a.Score, a.InitialScore,
		string(a.Level), string(a.LevelSource), formatTime(a.CreatedAt),
	)
	if err != nil {
		return oops.New(err, "failed to create account")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.New(err, "failed to read new account id")
	}
	a.ID = int(id)
	return nil
}

func (t *sqliteTx) ListAccountEmails(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT email FROM account ORDER BY id`)
	if err != nil {
		return nil, oops.New(err, "failed to list accounts")
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, oops.New(err, "failed to scan account email")
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.New(err, "error while iterating through accounts")
	}
	return emails, nil
}

func (t *sqliteTx) UpdateScore(ctx context.Context, accountID int, score int) error {
	return t.exec(ctx, "failed to update score",
		`UPDATE account SET score = ? WHERE id = ?`,
		score, accountID,
	)
}

func (t *sqliteTx) UpdateAccountFlags(ctx context.Context, a *models.Account) error {
	return t.exec(ctx, "failed to update account flags",
		`UPDATE account SET is_admin = ?, is_suspended = ?, is_soft_banned = ? WHERE id = ?`,
		a.IsAdmin, a.IsSuspended, a.IsSoftBanned, a.ID,
	)
}

func (t *sqliteTx) UpdateCredibilityLevel(ctx context.Context, a *models.Account) error {
	return t.exec(ctx, "failed to update credibility level",
		`
		UPDATE account
		SET credibility_level = ?, credibility_level_source = ?, credibility_updated_by = ?, credibility_updated_at = ?
		WHERE id = ?
		`,
		string(a.Level), string(a.LevelSource), a.CredibilityUpdatedBy, formatTimePtr(a.CredibilityUpdatedAt), a.ID,
	)
}

func (t *sqliteTx) AppendLedger(ctx context.Context, e *models.LedgerEntry) error {
	res, err := t.tx.ExecContext(ctx,
		`
		INSERT INTO credibility_ledger (
			subject_email, related_post_id, action_type,
			delta, requested_delta, previous_score, new_score,
			acting_admin_email, reason, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
		e.SubjectEmail, e.RelatedPostID, string(e.ActionType),
		e.Delta, e.RequestedDelta, e.PreviousScore, e.NewScore,
		e.ActingAdminEmail, e.Reason, formatTime(e.CreatedAt),
	)
	if err != nil {
		return oops.New(err, "failed to append ledger entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.New(err, "failed to read new ledger entry id")
	}
	e.ID = id
	return nil
}

func (t *sqliteTx) ListLedger(ctx context.Context, subjectEmail string) ([]*models.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM credibility_ledger WHERE subject_email = ? ORDER BY created_at, id`,
		subjectEmail,
	)
	if err != nil {
		return nil, oops.New(err, "failed to list ledger")
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, oops.New(err, "failed to scan ledger entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.New(err, "error while iterating through ledger")
	}
	return entries, nil
}

func (t *sqliteTx) exec(ctx context.Context, errMsg string, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.New(err, "%s", errMsg)
	}
	return nil
}
