/*
Package store defines the persistence boundary the moderation core runs against.

Every mutating operation runs inside Store.Transact. The Tx handed to the callback is
the unit of work: all reads and writes made through it commit together when the
callback returns nil, and none of them are visible if it returns an error. Nested
steps (a regrade reversal, the new grade, the post update) share one Tx and never
commit on their own.
*/
package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/google/uuid"
)

type Store interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// WriteAudit records an audit row outside of any transaction.
	WriteAudit(ctx context.Context, rec *models.AuditRecord) error

	Close() error
}

type Tx interface {
	// FindPost returns NotFound for missing or deleted posts. With forUpdate the post
	// row stays locked until the transaction ends.
	FindPost(ctx context.Context, ref PostRef, forUpdate bool) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreatePost(ctx context.Context, p *models.Post) error
	UpdatePostReview(ctx context.Context, p *models.Post) error
	UpdatePostContent(ctx context.Context, p *models.Post) error
	UpdatePostGrade(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, postID int) error
	CountApprovedPosts(ctx context.Context, authorEmail string) (int, error)

	FindAccountByEmail(ctx context.Context, email string, forUpdate bool) (*models.Account, error)
	FindAccountByID(ctx context.Context, id int, forUpdate bool) (*models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	ListAccountEmails(ctx context.Context) ([]string, error)

	// UpdateScore is only called by the reputation engine, right before it appends
	// the matching ledger entry.
	UpdateScore(ctx context.Context, accountID int, score int) error
	UpdateAccountFlags(ctx context.Context, a *models.Account) error
	UpdateCredibilityLevel(ctx context.Context, a *models.Account) error

	AppendLedger(ctx context.Context, e *models.LedgerEntry) error
	// ListLedger returns a subject's entries oldest first.
	ListLedger(ctx context.Context, subjectEmail string) ([]*models.LedgerEntry, error)
}

// PostRef identifies a post by exactly one of internal id, public id, or slug.
type PostRef struct {
	ID       int
	PublicID uuid.UUID
	Slug     string
}

// ParsePostRef accepts an internal id, a public id, or a slug.
func ParsePostRef(s string) PostRef {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil {
		return PostRef{ID: id}
	}
	if publicID, err := uuid.Parse(s); err == nil {
		return PostRef{PublicID: publicID}
	}
	return PostRef{Slug: s}
}

func PostByID(id int) PostRef {
	return PostRef{ID: id}
}

func (r PostRef) String() string {
	switch {
	case r.ID != 0:
		return strconv.Itoa(r.ID)
	case r.PublicID != uuid.Nil:
		return r.PublicID.String()
	default:
		return r.Slug
	}
}
