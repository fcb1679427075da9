package moderation

import (
	"context"
	"errors"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
	"github.com/google/uuid"
)

const maxSlugAttempts = 1000

// RegisterAccount creates an account at the configured default score.
func (s *Service) RegisterAccount(ctx context.Context, email, name string) (*models.Account, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.Kinded(oops.KindValidation, nil, "a valid email is required")
	}
	ctx, logger, done := s.startOperation(ctx, "RegisterAccount", Actor{Email: email})
	defer done()

	account := &models.Account{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Score:        reputation.NextScore(s.cfg.DefaultScore, 0),
		InitialScore: reputation.NextScore(s.cfg.DefaultScore, 0),
		CreatedAt:    s.now(),
	}
	account.SetCredibility(models.DerivedCredibility{Level: models.LevelNewcomer})

	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.FindAccountByEmail(ctx, email, false)
		if err == nil {
			return oops.Kinded(oops.KindConflict, nil, "an account for %s already exists", email)
		} else if !errors.Is(err, oops.ErrNotFound) {
			return err
		}
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("subject", email).Int("score", account.Score).Msg("account registered")
	s.audit.Log(ctx, email, "register", accountTarget(account), "score=%d", account.Score)
	return account, nil
}

type NewPost struct {
	Title string
	Body  string

	// Send the post straight to review instead of leaving it as a draft.
	SubmitNow bool
}

func (s *Service) CreatePost(ctx context.Context, author Actor, input NewPost) (*models.Post, error) {
	if err := requireIdentity(author); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, oops.Kinded(oops.KindValidation, nil, "a title is required")
	}
	ctx, logger, done := s.startOperation(ctx, "CreatePost", author)
	defer done()

	now := s.now()
	post := &models.Post{
		PublicID:  uuid.New(),
		Title:     title,
		Body:      input.Body,
		Status:    models.PostStatusDraft,
		CreatedAt: now,
	}
	if input.SubmitNow {
		post.Status = models.PostStatusPending
	}

	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, author.NormalizedEmail(), false)
		if err != nil {
			return err
		}
		if account.IsSuspended {
			return oops.Kinded(oops.KindForbidden, nil, "suspended accounts cannot create posts")
		}
		post.AuthorSnapshot = models.AuthorSnapshot{
			AuthorID:    account.ID,
			AuthorName:  account.Name,
			AuthorEmail: account.Email,
		}

		base := models.GeneratePostSlug(title)
		for n := 1; ; n++ {
			if n > maxSlugAttempts {
				return oops.Kinded(oops.KindConflict, nil, "could not find a free slug for %q", base)
			}
			candidate := models.SlugCandidate(base, n)
			exists, err := tx.SlugExists(ctx, candidate)
			if err != nil {
				return err
			}
			if !exists {
				post.Slug = candidate
				break
			}
		}

		return tx.CreatePost(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Int("post", post.ID).Str("slug", post.Slug).Stringer("status", post.Status).Msg("post created")
	s.audit.Log(ctx, author.NormalizedEmail(), "create-post", postTarget(post), "status=%s", post.Status)
	return post, nil
}

func (s *Service) SubmitPost(ctx context.Context, ref store.PostRef, actor Actor) (*models.Post, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	ctx, logger, done := s.startOperation(ctx, "SubmitPost", actor)
	defer done()

	var post *models.Post
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		post, err = tx.FindPost(ctx, ref, true)
		if err != nil {
			return err
		}
		if err := Submit(post, actor.NormalizedEmail(), s.now()); err != nil {
			return err
		}
		return tx.UpdatePostReview(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Int("post", post.ID).Msg("post submitted for review")
	s.audit.Log(ctx, actor.NormalizedEmail(), "submit", postTarget(post), "")
	return post, nil
}

type Decision int

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
)

func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, true
	case "reject", "rejected":
		return DecisionReject, true
	}
	return 0, false
}

type Review struct {
	Decision Decision
	Reason   string // Required when rejecting
}

type ReviewResult struct {
	Post          *models.Post
	PreviousScore int
	NewScore      int
}

/*
ReviewPost approves or rejects a pending post and moves the author's score by the
configured approve or reject delta, all in one transaction.
*/
func (s *Service) ReviewPost(ctx context.Context, ref store.PostRef, admin Actor, review Review) (*ReviewResult, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}

	var delta int
	var action models.LedgerAction
	switch review.Decision {
	case DecisionApprove:
		delta, action = s.cfg.ApproveDelta, models.LedgerPostApproved
	case DecisionReject:
		if strings.TrimSpace(review.Reason) == "" {
			return nil, oops.Kinded(oops.KindValidation, nil, "a rejection reason is required")
		}
		delta, action = s.cfg.RejectDelta, models.LedgerPostRejected
	default:
		return nil, oops.Kinded(oops.KindValidation, nil, "unknown review decision")
	}

	ctx, logger, done := s.startOperation(ctx, "ReviewPost", admin)
	defer done()

	adminEmail := admin.NormalizedEmail()
	result := &ReviewResult{}
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		post, err := tx.FindPost(ctx, ref, true)
		if err != nil {
			return err
		}

		now := s.now()
		if review.Decision == DecisionApprove {
			err = Approve(post, adminEmail, now)
		} else {
			err = Reject(post, adminEmail, review.Reason, now)
		}
		if err != nil {
			return err
		}

		if post.AuthorEmail == "" {
			return oops.Kinded(oops.KindDataIntegrity, nil, "post %d has no author email", post.ID)
		}
		author, err := tx.FindAccountByEmail(ctx, post.AuthorEmail, true)
		if err != nil {
			return oops.New(err, "author account not found")
		}

		if err := tx.UpdatePostReview(ctx, post); err != nil {
			return err
		}

		postID := post.ID
		res, err := s.engine.ApplyToAccountTx(ctx, tx, author, float64(delta), reputation.Meta{
			Action:           action,
			RelatedPostID:    &postID,
			ActingAdminEmail: adminEmail,
			Reason:           post.RejectionReason,
		})
		if err != nil {
			return err
		}

		if _, err := s.engine.RederiveLevelTx(ctx, tx, author); err != nil {
			return err
		}

		result.Post = post
		result.PreviousScore = res.PreviousScore
		result.NewScore = res.NewScore
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("post", result.Post.ID).
		Stringer("status", result.Post.Status).
		Int("score", result.NewScore).
		Msg("post reviewed")
	s.audit.Log(ctx, adminEmail, "review", postTarget(result.Post), "status=%s score=%d->%d",
		result.Post.Status, result.PreviousScore, result.NewScore)
	return result, nil
}

// PostEdit holds the fields to change; nil fields are left alone.
type PostEdit struct {
	Title *string
	Body  *string
}

// EditPost changes content in any status. It never changes the status or clears a
// rejection reason; the author has to resubmit for that.
func (s *Service) EditPost(ctx context.Context, ref store.PostRef, actor Actor, edit PostEdit) (*models.Post, error) {
	if err := requireIdentity(actor); err != nil {
		return nil, err
	}
	if edit.Title != nil && strings.TrimSpace(*edit.Title) == "" {
		return nil, oops.Kinded(oops.KindValidation, nil, "title cannot be empty")
	}
	ctx, logger, done := s.startOperation(ctx, "EditPost", actor)
	defer done()

	var post *models.Post
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		post, err = tx.FindPost(ctx, ref, true)
		if err != nil {
			return err
		}
		if err := CanModify(post, actor.NormalizedEmail(), s.isAdmin(actor)); err != nil {
			return err
		}

		if edit.Title != nil {
			post.Title = strings.TrimSpace(*edit.Title)
		}
		if edit.Body != nil {
			post.Body = *edit.Body
		}
		post.UpdatedAt = s.now()
		return tx.UpdatePostContent(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Int("post", post.ID).Msg("post edited")
	s.audit.Log(ctx, actor.NormalizedEmail(), "edit", postTarget(post), "")
	return post, nil
}

// DeletePost soft-deletes a post. Score changes the post caused stay in the ledger.
func (s *Service) DeletePost(ctx context.Context, ref store.PostRef, actor Actor) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}
	ctx, logger, done := s.startOperation(ctx, "DeletePost", actor)
	defer done()

	var post *models.Post
	err := s.transact(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		post, err = tx.FindPost(ctx, ref, true)
		if err != nil {
			return err
		}
		if err := CanModify(post, actor.NormalizedEmail(), s.isAdmin(actor)); err != nil {
			return err
		}
		return tx.DeletePost(ctx, post.ID)
	})
	if err != nil {
		return err
	}

	logger.Info().Int("post", post.ID).Msg("post deleted")
	s.audit.Log(ctx, actor.NormalizedEmail(), "delete", postTarget(post), "")
	return nil
}
