package moderation

import (
	"context"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
)

type GradeOptions struct {
	Reason string

	// Replace an existing grade. Without it, grading a graded post is a Conflict.
	Regrade bool
}

type GradeResult struct {
	Post     *models.Post
	Delta    int // Effective delta of the new grade
	NewScore int
	Regraded bool
}

/*
GradePost grades an approved post and moves its author's score by the grade's delta.

Preconditions are checked in this order, each with its own error kind: the post
exists (NotFound), it is approved (InvalidState), it has an author email
(DataIntegrity), the author has an account (NotFound), and it is not graded yet
unless Regrade is set (Conflict). The post row is locked before the graded check, so
of two concurrent first gradings exactly one succeeds.

On a regrade the previous delta is reversed before the new one is applied. Both
ledger entries and the post update share one transaction.
*/
func (s *Service) GradePost(ctx context.Context, ref store.PostRef, admin Actor, grade int, opts GradeOptions) (*GradeResult, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	delta, label, err := reputation.GradeDelta(grade)
	if err != nil {
		return nil, err
	}
	ctx, logger, done := s.startOperation(ctx, "GradePost", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	var reason *string
	if r := strings.TrimSpace(opts.Reason); r != "" {
		reason = &r
	}

	result := &GradeResult{}
	err = s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		post, err := tx.FindPost(ctx, ref, true)
		if err != nil {
			return err
		}
		if post.Status != models.PostStatusApproved {
			return oops.Kinded(oops.KindInvalidState, nil, "post must be approved before grading (it is %s)", post.Status)
		}
		if post.AuthorEmail == "" {
			return oops.Kinded(oops.KindDataIntegrity, nil, "post %d has no author", post.ID)
		}
		author, err := tx.FindAccountByEmail(ctx, post.AuthorEmail, true)
		if err != nil {
			return oops.New(err, "author account not found")
		}
		regrading := post.IsGraded()
		if regrading && !opts.Regrade {
			return oops.Kinded(oops.KindConflict, nil, "post is already graded; pass regrade to update the grade")
		}

		postID := post.ID
		meta := reputation.Meta{
			RelatedPostID:    &postID,
			ActingAdminEmail: adminEmail,
			Reason:           reason,
		}

		meta.Action = models.LedgerGradeApplied
		if regrading {
			meta.Action = models.LedgerRegradeReversal
			if _, err := s.engine.ApplyToAccountTx(ctx, tx, author, float64(-post.CredibilityDeltaApplied), meta); err != nil {
				return err
			}
			meta.Action = models.LedgerRegradeApplied
		}
		applied, err := s.engine.ApplyToAccountTx(ctx, tx, author, float64(delta), meta)
		if err != nil {
			return err
		}

		now := s.now()
		post.Grade = &grade
		post.GradeLabel = &label
		post.GradedAt = &now
		post.GradedBy = &adminEmail
		post.CredibilityDeltaApplied = applied.Delta
		post.UpdatedAt = now
		if err := tx.UpdatePostGrade(ctx, post); err != nil {
			return err
		}

		result.Post = post
		result.Delta = applied.Delta
		result.NewScore = applied.NewScore
		result.Regraded = regrading
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("post", result.Post.ID).
		Int("grade", grade).
		Int("delta", result.Delta).
		Bool("regraded", result.Regraded).
		Msg("post graded")
	s.audit.Log(ctx, adminEmail, "grade", postTarget(result.Post), "grade=%d label=%s delta=%d regraded=%v",
		grade, label, result.Delta, result.Regraded)
	return result, nil
}
