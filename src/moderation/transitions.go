package moderation

import (
	"strings"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
)

/*
The functions in this file are the post lifecycle:

	Draft ──submit──▶ Pending ──approve──▶ Approved
	                     │  ▲
	                reject  submit
	                     ▼  │
	                   Rejected

They only check and mutate the in-memory post. Persisting the result, and the score
changes that go with approve and reject, is the Service's job.
*/

// Submit moves a draft or rejected post into review. Only the author may submit.
func Submit(p *models.Post, actorEmail string, now time.Time) error {
	if !p.IsAuthoredBy(actorEmail) {
		return oops.Kinded(oops.KindUnauthorized, nil, "only the author can submit this post")
	}
	switch p.Status {
	case models.PostStatusDraft, models.PostStatusRejected:
	default:
		return invalidTransition(p, "submit")
	}

	p.Status = models.PostStatusPending
	p.RejectionReason = nil
	p.ReviewedBy = nil
	p.ReviewedAt = nil
	p.UpdatedAt = now
	return nil
}

func Approve(p *models.Post, adminEmail string, now time.Time) error {
	if p.Status != models.PostStatusPending {
		return invalidTransition(p, "approve")
	}

	p.Status = models.PostStatusApproved
	p.RejectionReason = nil
	p.ReviewedBy = &adminEmail
	p.ReviewedAt = &now
	p.ApprovedAt = &now
	p.UpdatedAt = now
	return nil
}

// Reject requires a reason, whatever state the post is in.
func Reject(p *models.Post, adminEmail string, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return oops.Kinded(oops.KindValidation, nil, "a rejection reason is required")
	}
	if p.Status != models.PostStatusPending {
		return invalidTransition(p, "reject")
	}

	p.Status = models.PostStatusRejected
	p.RejectionReason = &reason
	p.ReviewedBy = &adminEmail
	p.ReviewedAt = &now
	p.UpdatedAt = now
	return nil
}

// CanModify reports whether actor may edit or delete p: its author or any admin.
func CanModify(p *models.Post, actorEmail string, isAdmin bool) error {
	if isAdmin || p.IsAuthoredBy(actorEmail) {
		return nil
	}
	return oops.Kinded(oops.KindForbidden, nil, "only the author or an admin can change this post")
}

func invalidTransition(p *models.Post, transition string) error {
	return oops.Kinded(oops.KindInvalidTransition, nil, "cannot %s a post that is %s", transition, p.Status)
}
