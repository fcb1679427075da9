package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store/sqlitestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const superAdminEmail = "root@example.com"

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *sqlitestore.Store
	svc   *Service
	admin Actor
	root  Actor
}

func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, nil)
}

// wrap, if given, decorates the store the service runs against.
func newFixtureWithStore(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlitestore.Open(ctx, sqlitestore.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults().Credibility
	cfg.SuperAdminEmail = superAdminEmail

	var s store.Store = db
	if wrap != nil {
		s = wrap(db)
	}

	f := &fixture{
		t:     t,
		ctx:   ctx,
		db:    db,
		svc:   NewService(s, cfg).WithClock(testClock()),
		admin: Actor{Email: "admin@example.com", Roles: []Role{RoleAdmin}},
		root:  Actor{Email: superAdminEmail},
	}
	return f
}

func (f *fixture) register(email string) Actor {
	f.t.Helper()
	account, err := f.svc.RegisterAccount(f.ctx, email, "Author "+email)
	require.NoError(f.t, err)
	return Actor{ID: account.ID, Email: account.Email, Roles: []Role{RoleAuthor}}
}

func (f *fixture) pendingPost(author Actor, title string) *models.Post {
	f.t.Helper()
	post, err := f.svc.CreatePost(f.ctx, author, NewPost{Title: title, Body: "body", SubmitNow: true})
	require.NoError(f.t, err)
	return post
}

func (f *fixture) approvedPost(author Actor, title string) *models.Post {
	f.t.Helper()
	post := f.pendingPost(author, title)
	res, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionApprove})
	require.NoError(f.t, err)
	return res.Post
}

func (f *fixture) account(email string) *models.Account {
	f.t.Helper()
	account, err := f.svc.Account(f.ctx, email)
	require.NoError(f.t, err)
	return account
}

func (f *fixture) ledger(email string) []*models.LedgerEntry {
	f.t.Helper()
	entries, err := f.svc.Ledger(f.ctx, email, f.admin)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) assertReplayConsistent(email string) {
	f.t.Helper()
	report, err := f.svc.VerifyReplay(f.ctx, email)
	require.NoError(f.t, err)
	assert.True(f.t, report.Consistent(), "replay of %s: %+v", email, report)
}

func actions(entries []*models.LedgerEntry) []models.LedgerAction {
	var result []models.LedgerAction
	for _, e := range entries {
		result = append(result, e.ActionType)
	}
	return result
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	assert.Equal(t, 50, f.account(ada.Email).Score)

	post, err := f.svc.CreatePost(f.ctx, ada, NewPost{Title: "Budgeting 101", Body: "Spend less than you earn."})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	assert.Equal(t, "budgeting-101", post.Slug)

	post, err = f.svc.SubmitPost(f.ctx, store.PostRef{Slug: post.Slug}, ada)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, post.Status)

	review, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, 55, review.NewScore)
	assert.Equal(t, []models.LedgerAction{models.LedgerPostApproved}, actions(f.ledger(ada.Email)))
	assert.Equal(t, models.LevelContributor, f.account(ada.Email).Level)

	graded, err := f.svc.GradePost(f.ctx, store.PostRef{PublicID: post.PublicID}, f.admin, 95, GradeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, graded.Delta)
	assert.Equal(t, 65, graded.NewScore)
	assert.False(t, graded.Regraded)
	assert.Equal(t, reputation.GradeExcellent, *graded.Post.GradeLabel)

	suspended, err := f.svc.SuspendAuthor(f.ctx, ada.ID, SuspendOptions{SetScoreToZero: true}, f.admin)
	require.NoError(t, err)
	assert.True(t, suspended.ScoreZeroed)
	assert.Equal(t, 0, suspended.NewScore)
	assert.True(t, suspended.Account.IsSuspended)
	assert.True(t, suspended.Account.IsSoftBanned)

	entries := f.ledger(ada.Email)
	assert.Equal(t, []models.LedgerAction{
		models.LedgerPostApproved,
		models.LedgerGradeApplied,
		models.LedgerSuspend,
	}, actions(entries))
	assert.Equal(t, 5, entries[0].Delta)
	assert.Equal(t, 10, entries[1].Delta)
	assert.Equal(t, -65, entries[2].Delta)
	require.NotNil(t, entries[1].RelatedPostID)
	assert.Equal(t, post.ID, *entries[1].RelatedPostID)
	assert.Nil(t, entries[2].RelatedPostID)

	assert.Equal(t, 0, f.account(ada.Email).Score)
	f.assertReplayConsistent(ada.Email)

	records, err := f.db.AuditRecords(f.ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestRejectAndResubmit(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	post := f.pendingPost(ada, "Crypto will make you rich")

	_, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionReject})
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	res, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionReject, Reason: "Unsupported claims"})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, res.Post.Status)
	assert.Equal(t, "Unsupported claims", *res.Post.RejectionReason)
	assert.Equal(t, 40, res.NewScore)

	entries := f.ledger(ada.Email)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerPostRejected, entries[0].ActionType)
	assert.Equal(t, "Unsupported claims", *entries[0].Reason)

	// Editing keeps the rejection until the author resubmits.
	title := "Crypto, carefully"
	edited, err := f.svc.EditPost(f.ctx, store.PostByID(post.ID), ada, PostEdit{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, edited.Status)
	assert.NotNil(t, edited.RejectionReason)
	assert.Equal(t, post.Slug, edited.Slug)

	resubmitted, err := f.svc.SubmitPost(f.ctx, store.PostByID(post.ID), ada)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, resubmitted.Status)
	assert.Nil(t, resubmitted.RejectionReason)
	assert.Nil(t, resubmitted.ReviewedBy)

	_, err = f.svc.SubmitPost(f.ctx, store.PostByID(post.ID), ada)
	assert.Equal(t, oops.KindInvalidTransition, oops.KindOf(err))

	// Reviewing a post that is not pending changes nothing.
	approved, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionApprove})
	require.NoError(t, err)
	_, err = f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionApprove})
	assert.Equal(t, oops.KindInvalidTransition, oops.KindOf(err))
	assert.Equal(t, approved.NewScore, f.account(ada.Email).Score)
	assert.Len(t, f.ledger(ada.Email), 2)
}

func TestReviewPermissions(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	bob := f.register("bob@example.com")
	post := f.pendingPost(ada, "Index funds")

	_, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), bob, Review{Decision: DecisionApprove})
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))

	_, err = f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), Actor{}, Review{Decision: DecisionApprove})
	assert.Equal(t, oops.KindUnauthorized, oops.KindOf(err))

	_, err = f.svc.SubmitPost(f.ctx, store.PostByID(post.ID), bob)
	assert.Equal(t, oops.KindUnauthorized, oops.KindOf(err))

	_, err = f.svc.ReviewPost(f.ctx, store.PostByID(9999), f.admin, Review{Decision: DecisionApprove})
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))

	// The super-admin is an admin without holding the role.
	_, err = f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.root, Review{Decision: DecisionApprove})
	assert.NoError(t, err)
}

func TestApproveAtMaxScoreStillRecordsEntry(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	_, err := f.svc.AdjustCredibility(f.ctx, ada.Email, 50, "founding member", f.root)
	require.NoError(t, err)

	f.approvedPost(ada, "Max score")
	entries := f.ledger(ada.Email)
	require.Len(t, entries, 2)
	assert.Equal(t, models.LedgerPostApproved, entries[1].ActionType)
	assert.Equal(t, 0, entries[1].Delta)
	assert.Equal(t, float64(5), entries[1].RequestedDelta)
	assert.Equal(t, 100, f.account(ada.Email).Score)
}

func TestCreatePostSlugs(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")

	var slugs []string
	for i := 0; i < 3; i++ {
		post, err := f.svc.CreatePost(f.ctx, ada, NewPost{Title: "Hello World"})
		require.NoError(t, err)
		slugs = append(slugs, post.Slug)
		assert.Equal(t, "Author ada@example.com", post.AuthorName)
		assert.Equal(t, ada.ID, post.AuthorID)
	}
	assert.Equal(t, []string{"hello-world", "hello-world-2", "hello-world-3"}, slugs)

	post, err := f.svc.CreatePost(f.ctx, ada, NewPost{Title: "!!!"})
	require.NoError(t, err)
	assert.Equal(t, "post", post.Slug)

	_, err = f.svc.CreatePost(f.ctx, ada, NewPost{Title: "  "})
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	_, err = f.svc.CreatePost(f.ctx, Actor{Email: "ghost@example.com"}, NewPost{Title: "Boo"})
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))
}

func TestNumericTitleSlugDoesNotShadowIDs(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")

	hello := f.pendingPost(ada, "Hello")
	numeric := f.pendingPost(ada, "1")
	assert.Equal(t, "post-1", numeric.Slug)

	res, err := f.svc.ReviewPost(f.ctx, store.ParsePostRef(numeric.Slug), f.admin, Review{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, numeric.ID, res.Post.ID)

	untouched, err := f.svc.Post(f.ctx, store.PostByID(hello.ID))
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, untouched.Status)
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	bob := f.register("bob@example.com")
	post := f.approvedPost(ada, "Emergency funds")

	body := "Keep six months of expenses."
	_, err := f.svc.EditPost(f.ctx, store.PostByID(post.ID), bob, PostEdit{Body: &body})
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))

	edited, err := f.svc.EditPost(f.ctx, store.PostByID(post.ID), f.admin, PostEdit{Body: &body})
	require.NoError(t, err)
	assert.Equal(t, body, edited.Body)
	assert.Equal(t, models.PostStatusApproved, edited.Status)

	empty := " "
	_, err = f.svc.EditPost(f.ctx, store.PostByID(post.ID), ada, PostEdit{Title: &empty})
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	assert.Equal(t, oops.KindForbidden, oops.KindOf(f.svc.DeletePost(f.ctx, store.PostByID(post.ID), bob)))
	require.NoError(t, f.svc.DeletePost(f.ctx, store.PostByID(post.ID), ada))

	_, err = f.svc.Post(f.ctx, store.PostByID(post.ID))
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))
	assert.Len(t, f.ledger(ada.Email), 1)
}

func TestGradePreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")

	insert := func(status models.PostStatus, authorEmail string, slug string) *models.Post {
		p := &models.Post{
			PublicID:       uuid.New(),
			Slug:           slug,
			AuthorSnapshot: models.AuthorSnapshot{AuthorEmail: authorEmail},
			Title:          slug,
			Status:         status,
			CreatedAt:      time.Now(),
		}
		require.NoError(t, f.db.Transact(f.ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreatePost(ctx, p)
		}))
		return p
	}
	grade := func(p *models.Post) error {
		_, err := f.svc.GradePost(f.ctx, store.PostByID(p.ID), f.admin, 80, GradeOptions{})
		return err
	}

	_, err := f.svc.GradePost(f.ctx, store.PostRef{Slug: "missing"}, f.admin, 80, GradeOptions{})
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))

	assert.Equal(t, oops.KindInvalidState, oops.KindOf(grade(insert(models.PostStatusPending, "", "pending-orphan"))))
	assert.Equal(t, oops.KindDataIntegrity, oops.KindOf(grade(insert(models.PostStatusApproved, "", "approved-orphan"))))

	ghostPost := insert(models.PostStatusApproved, "ghost@example.com", "ghost")
	require.NoError(t, f.db.Transact(f.ctx, func(ctx context.Context, tx store.Tx) error {
		g := 90
		ghostPost.Grade = &g
		ghostPost.UpdatedAt = time.Now()
		return tx.UpdatePostGrade(ctx, ghostPost)
	}))
	assert.Equal(t, oops.KindNotFound, oops.KindOf(grade(ghostPost)))

	post := f.approvedPost(ada, "Graded")
	require.NoError(t, grade(post))
	err = grade(post)
	assert.Equal(t, oops.KindConflict, oops.KindOf(err))
	assert.Contains(t, err.Error(), "regrade")

	_, err = f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 101, GradeOptions{})
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))
	_, err = f.svc.GradePost(f.ctx, store.PostByID(post.ID), ada, 80, GradeOptions{Regrade: true})
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))
	_, err = f.svc.GradePost(f.ctx, store.PostByID(post.ID), Actor{}, 80, GradeOptions{Regrade: true})
	assert.Equal(t, oops.KindUnauthorized, oops.KindOf(err))

	// None of the failures touched the score.
	assert.Equal(t, []models.LedgerAction{models.LedgerPostApproved, models.LedgerGradeApplied}, actions(f.ledger(ada.Email)))
	assert.Equal(t, 60, f.account(ada.Email).Score)
}

func TestRegrade(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	post := f.approvedPost(ada, "Dollar cost averaging")
	before := f.account(ada.Email).Score

	_, err := f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 95, GradeOptions{})
	require.NoError(t, err)

	_, err = f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 50, GradeOptions{})
	assert.Equal(t, oops.KindConflict, oops.KindOf(err))
	assert.Equal(t, before+10, f.account(ada.Email).Score)

	res, err := f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 50, GradeOptions{Regrade: true, Reason: "second look"})
	require.NoError(t, err)
	assert.True(t, res.Regraded)
	assert.Equal(t, -5, res.Delta)
	assert.Equal(t, -5, res.Post.CredibilityDeltaApplied)
	assert.Equal(t, 50, *res.Post.Grade)
	assert.Equal(t, reputation.GradeWeak, *res.Post.GradeLabel)

	assert.Equal(t, before-5, f.account(ada.Email).Score)

	entries := f.ledger(ada.Email)
	assert.Equal(t, []models.LedgerAction{
		models.LedgerPostApproved,
		models.LedgerGradeApplied,
		models.LedgerRegradeReversal,
		models.LedgerRegradeApplied,
	}, actions(entries))
	assert.Equal(t, -10, entries[2].Delta)
	assert.Equal(t, -5, entries[3].Delta)
	assert.Equal(t, "second look", *entries[3].Reason)

	stored, err := f.svc.Post(f.ctx, store.PostByID(post.ID))
	require.NoError(t, err)
	assert.Equal(t, -5, stored.CredibilityDeltaApplied)
	f.assertReplayConsistent(ada.Email)
}

func TestConcurrentGrading(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	post := f.approvedPost(ada, "Race me")

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 80+i*10, GradeOptions{})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case oops.KindOf(err) == oops.KindConflict:
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	graded := 0
	for _, e := range f.ledger(ada.Email) {
		if e.ActionType == models.LedgerGradeApplied {
			graded++
		}
	}
	assert.Equal(t, 1, graded)
	f.assertReplayConsistent(ada.Email)
}

func TestConcurrentGradingOfDifferentPosts(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")

	var posts []*models.Post
	for _, title := range []string{"One", "Two", "Three", "Four"} {
		posts = append(posts, f.approvedPost(ada, title))
	}
	before := f.account(ada.Email).Score

	var g errgroup.Group
	for _, p := range posts {
		g.Go(func() error {
			_, err := f.svc.GradePost(f.ctx, store.PostByID(p.ID), f.admin, 75, GradeOptions{})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, before+4*5, f.account(ada.Email).Score)
	f.assertReplayConsistent(ada.Email)
}

var errInjected = errors.New("injected ledger failure")

// faultyStore fails the failAt-th AppendLedger call after arm is called.
type faultyStore struct {
	store.Store
	mu     sync.Mutex
	armed  bool
	calls  int
	failAt int
}

func (s *faultyStore) arm(failAt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed, s.calls, s.failAt = true, 0, failAt
}

func (s *faultyStore) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	store.Tx
	s *faultyStore
}

func (t *faultyTx) AppendLedger(ctx context.Context, e *models.LedgerEntry) error {
	t.s.mu.Lock()
	fail := false
	if t.s.armed {
		t.s.calls++
		fail = t.s.calls == t.s.failAt
	}
	t.s.mu.Unlock()

	if fail {
		return errInjected
	}
	return t.Tx.AppendLedger(ctx, e)
}

func TestRegradeFailureRollsBackReversal(t *testing.T) {
	var faulty *faultyStore
	f := newFixtureWithStore(t, func(s store.Store) store.Store {
		faulty = &faultyStore{Store: s}
		return faulty
	})
	ada := f.register("ada@example.com")
	post := f.approvedPost(ada, "Half done")
	_, err := f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 95, GradeOptions{})
	require.NoError(t, err)
	scoreBefore := f.account(ada.Email).Score
	ledgerBefore := len(f.ledger(ada.Email))

	// The reversal is written, then the new grade's entry fails.
	faulty.arm(2)
	_, err = f.svc.GradePost(f.ctx, store.PostByID(post.ID), f.admin, 10, GradeOptions{Regrade: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInjected))

	assert.Equal(t, scoreBefore, f.account(ada.Email).Score)
	assert.Len(t, f.ledger(ada.Email), ledgerBefore)

	stored, err := f.svc.Post(f.ctx, store.PostByID(post.ID))
	require.NoError(t, err)
	assert.Equal(t, 95, *stored.Grade)
	assert.Equal(t, 10, stored.CredibilityDeltaApplied)
	f.assertReplayConsistent(ada.Email)
}

func TestReviewFailureRollsBackTransition(t *testing.T) {
	var faulty *faultyStore
	f := newFixtureWithStore(t, func(s store.Store) store.Store {
		faulty = &faultyStore{Store: s}
		return faulty
	})
	ada := f.register("ada@example.com")
	post := f.pendingPost(ada, "Never approved")

	faulty.arm(1)
	_, err := f.svc.ReviewPost(f.ctx, store.PostByID(post.ID), f.admin, Review{Decision: DecisionApprove})
	assert.True(t, errors.Is(err, errInjected))

	stored, err := f.svc.Post(f.ctx, store.PostByID(post.ID))
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, stored.Status)
	assert.Nil(t, stored.ApprovedAt)
	assert.Equal(t, 50, f.account(ada.Email).Score)
}

func TestAdjustCredibility(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")

	res, err := f.svc.AdjustCredibility(f.ctx, ada.Email, 50, "exceptional mentoring", f.admin)
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.Equal(t, 20, res.Delta)
	assert.Equal(t, 70, res.NewScore)

	res, err = f.svc.AdjustCredibility(f.ctx, "ADA@example.com", -70, "spam ring", f.root)
	require.NoError(t, err)
	assert.False(t, res.Clamped)
	assert.Equal(t, -70, res.Delta)
	assert.Equal(t, 0, res.NewScore)

	res, err = f.svc.AdjustCredibility(f.ctx, ada.Email, -5, "already at zero", f.admin)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Delta)

	_, err = f.svc.AdjustCredibility(f.ctx, ada.Email, 5, "", f.admin)
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))
	_, err = f.svc.AdjustCredibility(f.ctx, "ghost@example.com", 5, "who", f.admin)
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))
	_, err = f.svc.AdjustCredibility(f.ctx, ada.Email, 5, "self-promotion", ada)
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))

	entries := f.ledger(ada.Email)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, models.LedgerManualAdjust, e.ActionType)
	}
	assert.Equal(t, float64(20), entries[0].RequestedDelta)

	account := f.account(ada.Email)
	manual, ok := account.Credibility().(models.ManualCredibility)
	require.True(t, ok)
	assert.Equal(t, "admin@example.com", manual.By)
	f.assertReplayConsistent(ada.Email)
}

func TestSuspension(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	root := f.register(superAdminEmail)

	_, err := f.svc.SuspendAuthor(f.ctx, root.ID, SuspendOptions{SetScoreToZero: true}, f.admin)
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))
	assert.False(t, f.account(superAdminEmail).IsSuspended)

	res, err := f.svc.SuspendAuthor(f.ctx, ada.ID, SuspendOptions{}, f.admin)
	require.NoError(t, err)
	assert.False(t, res.ScoreZeroed)
	assert.Equal(t, 50, res.NewScore)
	assert.Empty(t, f.ledger(ada.Email))

	_, err = f.svc.CreatePost(f.ctx, ada, NewPost{Title: "Let me back in"})
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))

	res, err = f.svc.SuspendAuthor(f.ctx, ada.ID, SuspendOptions{SetScoreToZero: true, Reason: "fraud"}, f.admin)
	require.NoError(t, err)
	assert.True(t, res.ScoreZeroed)
	assert.Equal(t, 50, res.PreviousScore)

	// Already at zero: no second entry.
	res, err = f.svc.SuspendAuthor(f.ctx, ada.ID, SuspendOptions{SetScoreToZero: true}, f.admin)
	require.NoError(t, err)
	assert.False(t, res.ScoreZeroed)
	assert.Len(t, f.ledger(ada.Email), 1)

	account, err := f.svc.UnsuspendAuthor(f.ctx, ada.ID, f.admin)
	require.NoError(t, err)
	assert.False(t, account.IsSuspended)
	assert.False(t, account.IsSoftBanned)
	assert.Equal(t, 0, account.Score)
	assert.Len(t, f.ledger(ada.Email), 1)

	_, err = f.svc.SuspendAuthor(f.ctx, 9999, SuspendOptions{}, f.admin)
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))
	f.assertReplayConsistent(ada.Email)
}

func TestPromoteToAdmin(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	bob := f.register("bob@example.com")

	account, err := f.svc.PromoteToAdmin(f.ctx, ada.ID, f.admin)
	require.NoError(t, err)
	assert.True(t, account.IsAdmin)
	assert.Equal(t, 90, account.Score)
	entries := f.ledger(ada.Email)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerAdminPromotion, entries[0].ActionType)
	assert.Equal(t, 40, entries[0].Delta)

	actor, err := f.svc.ActorFor(f.ctx, ada.Email)
	require.NoError(t, err)
	assert.True(t, actor.HasRole(RoleAdmin))

	_, err = f.svc.AdjustCredibility(f.ctx, bob.Email, 20, "top contributor", f.admin)
	require.NoError(t, err)
	_, err = f.svc.AdjustCredibility(f.ctx, bob.Email, 20, "top contributor", f.admin)
	require.NoError(t, err)
	account, err = f.svc.PromoteToAdmin(f.ctx, bob.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, 90, account.Score)

	_, err = f.svc.AdjustCredibility(f.ctx, bob.Email, 5, "more", f.admin)
	require.NoError(t, err)
	account, err = f.svc.PromoteToAdmin(f.ctx, bob.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, 95, account.Score)
	assert.Len(t, f.ledger(bob.Email), 3)
}

func TestCredibilityLevels(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		f.approvedPost(ada, "Post "+title)
	}
	assert.Equal(t, models.LevelEstablished, f.account(ada.Email).Level)

	_, err := f.svc.SetCredibilityLevel(f.ctx, ada.Email, models.LevelNewcomer, f.admin)
	require.NoError(t, err)
	_, err = f.svc.SetCredibilityLevel(f.ctx, ada.Email, "Legend", f.admin)
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	f.approvedPost(ada, "Post f")
	changed, err := f.svc.RederiveLevels(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Equal(t, models.ManualCredibility{
		Level: models.LevelNewcomer,
		By:    "admin@example.com",
		At:    *f.account(ada.Email).CredibilityUpdatedAt,
	}, f.account(ada.Email).Credibility())

	account, err := f.svc.ResetCredibilityLevel(f.ctx, ada.Email, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.DerivedCredibility{Level: models.LevelEstablished}, account.Credibility())
}

var errRetry = errors.New("serialization failure")

// retryingStore runs every unit of work twice: once rolled back as if the database
// had aborted it, then for real.
type retryingStore struct {
	store.Store
}

func (s *retryingStore) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.Store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errRetry
	})
	if !errors.Is(err, errRetry) {
		return err
	}
	return s.Store.Transact(ctx, fn)
}

func TestRederiveLevelsCountsCommittedChanges(t *testing.T) {
	f := newFixtureWithStore(t, func(s store.Store) store.Store { return &retryingStore{Store: s} })
	ada := f.register("ada@example.com")
	f.register("bob@example.com")

	// Drift ada's derived level away from her approved-post count.
	require.NoError(t, f.db.Transact(f.ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, ada.Email, true)
		if err != nil {
			return err
		}
		account.SetCredibility(models.DerivedCredibility{Level: models.LevelTrusted})
		return tx.UpdateCredibilityLevel(ctx, account)
	}))

	changed, err := f.svc.RederiveLevels(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.LevelNewcomer, f.account(ada.Email).Level)

	changed, err = f.svc.RederiveLevels(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestLedgerAccess(t *testing.T) {
	f := newFixture(t)
	ada := f.register("ada@example.com")
	bob := f.register("bob@example.com")

	_, err := f.svc.Ledger(f.ctx, ada.Email, ada)
	assert.NoError(t, err)
	_, err = f.svc.Ledger(f.ctx, ada.Email, bob)
	assert.Equal(t, oops.KindForbidden, oops.KindOf(err))
	_, err = f.svc.Ledger(f.ctx, "ghost@example.com", f.admin)
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))
}

func TestRegisterAccount(t *testing.T) {
	f := newFixture(t)
	f.register("ada@example.com")

	_, err := f.svc.RegisterAccount(f.ctx, " ADA@example.com ", "Ada again")
	assert.Equal(t, oops.KindConflict, oops.KindOf(err))
	_, err = f.svc.RegisterAccount(f.ctx, "not-an-email", "Nobody")
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	account := f.account("ada@example.com")
	assert.Equal(t, 50, account.InitialScore)
	assert.Equal(t, models.DerivedCredibility{Level: models.LevelNewcomer}, account.Credibility())
}
