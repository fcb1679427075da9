package migration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/config"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/db"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/migration/types"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/utils"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/website"
	lorem "github.com/HandmadeNetwork/golorem"
)

// Seed brings the configured store up to date and fills it. Only the super admin
// account is created unless sample is set.
func Seed(ctx context.Context, sample bool) error {
	if config.Config.Store == config.StorePostgres {
		if err := migrateConfigured(ctx); err != nil {
			return err
		}
	}

	svc, s, err := website.OpenService(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return SeedService(ctx, svc, config.Config.Credibility.SuperAdminEmail, sample, rand.New(rand.NewSource(rand.Int63())))
}

func migrateConfigured(ctx context.Context) (err error) {
	defer utils.RecoverPanicAsError(&err)

	conn := db.NewConn()
	defer conn.Close(ctx)

	return MigrateConn(ctx, conn, types.MigrationVersion{})
}

// SeedService creates the super admin account and, with sample set, a few authors
// whose posts go through submission, review, and grading. Accounts that already
// exist are reused.
func SeedService(ctx context.Context, svc *moderation.Service, adminEmail string, sample bool, rng *rand.Rand) error {
	logger := logging.ExtractLogger(ctx)

	if adminEmail == "" {
		return oops.Kinded(oops.KindValidation, nil, "credibility.super_admin_email must be set before seeding")
	}

	logger.Info().Str("email", adminEmail).Msg("Creating super admin account")
	admin, err := seedAccount(ctx, svc, adminEmail, "Admin")
	if err != nil {
		return err
	}
	if !sample {
		return nil
	}

	logger.Info().Msg("Creating sample authors")
	var authors []moderation.Actor
	for _, name := range []string{"Alice", "Bob", "Charlie"} {
		author, err := seedAccount(ctx, svc, fmt.Sprintf("%s@example.com", name), name)
		if err != nil {
			return err
		}
		authors = append(authors, author)
	}

	logger.Info().Msg("Creating sample posts")
	for _, author := range authors {
		numPosts := 2 + rng.Intn(3)
		for i := 0; i < numPosts; i++ {
			post, err := svc.CreatePost(ctx, author, moderation.NewPost{
				Title:     lorem.Sentence(3, 8),
				Body:      lorem.Paragraph(2, 5),
				SubmitNow: rng.Intn(4) != 0,
			})
			if err != nil {
				return err
			}
			ref := store.PostByID(post.ID)

			switch rng.Intn(3) {
			case 0:
				// leave it for a human
			case 1:
				if _, err := svc.ReviewPost(ctx, ref, admin, moderation.Review{Decision: moderation.DecisionReject, Reason: lorem.Sentence(4, 10)}); err != nil && !isSkippable(err) {
					return err
				}
			case 2:
				if _, err := svc.ReviewPost(ctx, ref, admin, moderation.Review{Decision: moderation.DecisionApprove}); err != nil {
					if isSkippable(err) {
						continue
					}
					return err
				}
				if rng.Intn(2) == 0 {
					if _, err := svc.GradePost(ctx, ref, admin, rng.Intn(101), moderation.GradeOptions{Reason: "sample grade"}); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func seedAccount(ctx context.Context, svc *moderation.Service, email, name string) (moderation.Actor, error) {
	_, err := svc.RegisterAccount(ctx, email, name)
	if err != nil && !errors.Is(err, oops.ErrConflict) {
		return moderation.Actor{}, err
	}
	return svc.ActorFor(ctx, email)
}

// Drafts cannot be reviewed, so some sampled decisions do not apply.
func isSkippable(err error) bool {
	return errors.Is(err, oops.ErrInvalidTransition)
}
