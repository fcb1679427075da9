package models

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

var PostType = reflect.TypeOf(Post{})

type PostStatus int

const (
	PostStatusDraft    PostStatus = 1
	PostStatusPending  PostStatus = 2 // Waiting for an admin to review
	PostStatusApproved PostStatus = 3
	PostStatusRejected PostStatus = 4 // Can be resubmitted by the author
)

func (s PostStatus) String() string {
	switch s {
	case PostStatusDraft:
		return "Draft"
	case PostStatusPending:
		return "Pending"
	case PostStatusApproved:
		return "Approved"
	case PostStatusRejected:
		return "Rejected"
	}
	return "Unknown"
}

func ParsePostStatus(s string) (PostStatus, bool) {
	for _, status := range []PostStatus{PostStatusDraft, PostStatusPending, PostStatusApproved, PostStatusRejected} {
		if status.String() == s {
			return status, true
		}
	}
	return 0, false
}

// AuthorSnapshot is copied onto a post when it is created and never follows later
// profile edits.
type AuthorSnapshot struct {
	AuthorID    int    `db:"author_id"`
	AuthorName  string `db:"author_name"`
	AuthorEmail string `db:"author_email"`
}

type Post struct {
	ID       int       `db:"id"`
	PublicID uuid.UUID `db:"public_id"`
	Slug     string    `db:"slug"`

	AuthorSnapshot

	Title  string     `db:"title"`
	Body   string     `db:"body"`
	Status PostStatus `db:"status"`

	RejectionReason *string    `db:"rejection_reason"`
	ReviewedBy      *string    `db:"reviewed_by"`
	ReviewedAt      *time.Time `db:"reviewed_at"`
	ApprovedAt      *time.Time `db:"approved_at"`

	Grade      *int       `db:"grade"`
	GradeLabel *string    `db:"grade_label"`
	GradedAt   *time.Time `db:"graded_at"`
	GradedBy   *string    `db:"graded_by"`

	// The net score change currently reflected in the author's score because of this
	// post's grade.
	CredibilityDeltaApplied int `db:"credibility_delta_applied"`

	Deleted   bool      `db:"deleted"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (p *Post) IsGraded() bool {
	return p.Grade != nil
}

func (p *Post) IsAuthoredBy(email string) bool {
	return p.AuthorEmail != "" && p.AuthorEmail == email
}
