package reputation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store/sqlitestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNextScore(t *testing.T) {
	assert.Equal(t, 100, NextScore(95, 10))
	assert.Equal(t, 0, NextScore(5, -20))
	assert.Equal(t, 55, NextScore(50, 5))
	assert.Equal(t, 100, NextScore(100, 5))
	assert.Equal(t, 0, NextScore(0, -10))

	// Half away from zero
	assert.Equal(t, 53, NextScore(50, 2.5))
	assert.Equal(t, 48, NextScore(50, -2.5))
	assert.Equal(t, 1, NextScore(0, 0.5))
	assert.Equal(t, 52, NextScore(50, 2.49))
	assert.Equal(t, 100, NextScore(99, 0.5))

	assert.Equal(t, 100, NextScore(50, math.MaxFloat64))
	assert.Equal(t, 0, NextScore(50, -math.MaxFloat64))
	assert.Equal(t, 100, NextScore(50, float64(math.MaxInt64)))

	for prev := 0; prev <= 100; prev += 5 {
		for _, delta := range []float64{-1000, -100, -20.5, -0.5, 0, 0.5, 20.5, 100, 1000} {
			next := NextScore(prev, delta)
			assert.GreaterOrEqual(t, next, MinScore)
			assert.LessOrEqual(t, next, MaxScore)
		}
	}
}

func TestGradeDelta(t *testing.T) {
	cases := []struct {
		grade int
		delta int
		label string
	}{
		{100, 10, GradeExcellent},
		{90, 10, GradeExcellent},
		{89, 5, GradeGood},
		{75, 5, GradeGood},
		{74, 2, GradeAverage},
		{60, 2, GradeAverage},
		{59, -5, GradeWeak},
		{40, -5, GradeWeak},
		{39, -20, GradeSpam},
		{0, -20, GradeSpam},
	}
	for _, c := range cases {
		delta, label, err := GradeDelta(c.grade)
		require.NoError(t, err)
		assert.Equal(t, c.delta, delta, "grade %d", c.grade)
		assert.Equal(t, c.label, label, "grade %d", c.grade)
	}

	for _, grade := range []int{-1, 101, 1000} {
		_, _, err := GradeDelta(grade)
		assert.Equal(t, oops.KindValidation, oops.KindOf(err), "grade %d", grade)
	}
}

func TestLevelForApprovedCount(t *testing.T) {
	assert.Equal(t, models.LevelNewcomer, LevelForApprovedCount(0))
	assert.Equal(t, models.LevelContributor, LevelForApprovedCount(1))
	assert.Equal(t, models.LevelContributor, LevelForApprovedCount(4))
	assert.Equal(t, models.LevelEstablished, LevelForApprovedCount(5))
	assert.Equal(t, models.LevelEstablished, LevelForApprovedCount(14))
	assert.Equal(t, models.LevelTrusted, LevelForApprovedCount(15))
	assert.Equal(t, models.LevelTrusted, LevelForApprovedCount(200))
}

func TestReplay(t *testing.T) {
	account := &models.Account{Email: "ada@example.com", InitialScore: 50, Score: 45}
	entries := []*models.LedgerEntry{
		{ID: 1, Delta: 5, PreviousScore: 50, NewScore: 55},
		{ID: 2, Delta: -10, PreviousScore: 55, NewScore: 45},
	}
	report := Replay(account, entries)
	assert.True(t, report.Consistent())
	assert.Equal(t, 45, report.ReplayedScore)
	assert.Equal(t, 2, report.Entries)

	account.Score = 60
	report = Replay(account, entries)
	assert.False(t, report.Consistent())
	assert.Empty(t, report.BrokenEntries)

	entries[1].PreviousScore = 52
	report = Replay(account, entries)
	assert.Equal(t, []int64{2}, report.BrokenEntries)
}

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(context.Background(), sqlitestore.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createAccount(t *testing.T, s store.Store, email string, score int) *models.Account {
	t.Helper()
	a := &models.Account{
		Email:        email,
		Name:         email,
		Score:        score,
		InitialScore: score,
		Level:        models.LevelNewcomer,
		LevelSource:  models.LevelSourceDerived,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.Transact(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, a)
	}))
	return a
}

func TestApplyDelta(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := NewEngine(config.Defaults().Credibility)
	createAccount(t, s, "ada@example.com", 95)

	reason := "great series"
	res, err := engine.ApplyDelta(ctx, s, "  ADA@example.com ", 10, Meta{
		Action:           models.LedgerManualAdjust,
		ActingAdminEmail: "admin@example.com",
		Reason:           &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, 95, res.PreviousScore)
	assert.Equal(t, 100, res.NewScore)
	assert.Equal(t, 5, res.Delta)
	assert.Equal(t, float64(10), res.Entry.RequestedDelta)

	_, err = engine.ApplyDelta(ctx, s, "nobody@example.com", 1, Meta{Action: models.LedgerManualAdjust})
	assert.Equal(t, oops.KindNotFound, oops.KindOf(err))

	_, err = engine.ApplyDelta(ctx, s, "ada@example.com", math.NaN(), Meta{Action: models.LedgerManualAdjust})
	assert.Equal(t, oops.KindValidation, oops.KindOf(err))

	report, err := engine.VerifyReplay(ctx, s, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 1, report.Entries)
	assert.Equal(t, 100, report.CurrentScore)
}

func TestApplyDeltaSerializesSameSubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := NewEngine(config.Defaults().Credibility)
	createAccount(t, s, "ada@example.com", 50)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := engine.ApplyDelta(ctx, s, "ada@example.com", 1, Meta{Action: models.LedgerManualAdjust, ActingAdminEmail: "admin@example.com"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := engine.VerifyReplay(ctx, s, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 70, report.CurrentScore)
	assert.Equal(t, 20, report.Entries)
	assert.True(t, report.Consistent())
}

func TestRederiveLevelKeepsManualLevels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := NewEngine(config.Defaults().Credibility)
	a := createAccount(t, s, "ada@example.com", 50)

	require.NoError(t, s.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		p := &models.Post{
			Slug:           "approved",
			AuthorSnapshot: models.AuthorSnapshot{AuthorID: a.ID, AuthorName: "Ada", AuthorEmail: a.Email},
			Title:          "Approved",
			Status:         models.PostStatusApproved,
			CreatedAt:      time.Now(),
		}
		return tx.CreatePost(ctx, p)
	}))

	require.NoError(t, s.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, a.Email, true)
		require.NoError(t, err)
		changed, err := engine.RederiveLevelTx(ctx, tx, account)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.LevelContributor, account.Level)

		account.SetCredibility(models.ManualCredibility{Level: models.LevelTrusted, By: "admin@example.com", At: time.Now()})
		return tx.UpdateCredibilityLevel(ctx, account)
	}))

	require.NoError(t, s.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.FindAccountByEmail(ctx, a.Email, true)
		require.NoError(t, err)
		changed, err := engine.RederiveLevelTx(ctx, tx, account)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, models.LevelTrusted, account.Credibility().CurrentLevel())
		return nil
	}))
}
