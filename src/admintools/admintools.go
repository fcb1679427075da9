package admintools

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/website"
	"github.com/spf13/cobra"
)

func init() {
	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Run moderation and credibility operations from the command line",
	}
	website.Command.AddCommand(adminCommand)

	addPostCommands(adminCommand)
	addCredibilityCommands(adminCommand)
}

// runWithService opens the configured store for the duration of fn. The actor is
// resolved from the --as flag when the command has one.
func runWithService(cmd *cobra.Command, fn func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error) error {
	ctx := context.Background()

	svc, s, err := website.OpenService(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var actor moderation.Actor
	if flag := cmd.Flags().Lookup("as"); flag != nil {
		if flag.Value.String() == "" {
			return oops.Kinded(oops.KindUnauthorized, nil, "--as is required")
		}
		actor, err = svc.ActorFor(ctx, flag.Value.String())
		if err != nil {
			return err
		}
	}

	return fn(ctx, svc, actor)
}

func addActorFlag(cmd *cobra.Command) {
	cmd.Flags().String("as", "", "Email of the account performing the operation")
}

func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Kinded(oops.KindValidation, err, "%s must be an integer", name)
	}
	return n, nil
}

func printPost(out io.Writer, p *models.Post) {
	fmt.Fprintf(out, "Post %d (%s)\n", p.ID, p.Slug)
	fmt.Fprintf(out, "  Title:  %s\n", p.Title)
	fmt.Fprintf(out, "  Author: %s <%s>\n", p.AuthorName, p.AuthorEmail)
	fmt.Fprintf(out, "  Status: %s\n", p.Status)
	if p.RejectionReason != nil {
		fmt.Fprintf(out, "  Rejected: %s\n", *p.RejectionReason)
	}
	if p.IsGraded() {
		fmt.Fprintf(out, "  Grade:  %d (%s), delta applied %+d\n", *p.Grade, *p.GradeLabel, p.CredibilityDeltaApplied)
	}
}

func printAccount(out io.Writer, a *models.Account) {
	var flags []string
	if a.IsAdmin {
		flags = append(flags, "admin")
	}
	if a.IsSuspended {
		flags = append(flags, "suspended")
	}
	if a.IsSoftBanned {
		flags = append(flags, "soft-banned")
	}
	fmt.Fprintf(out, "Account %d <%s>\n", a.ID, a.Email)
	fmt.Fprintf(out, "  Score: %d\n", a.Score)
	fmt.Fprintf(out, "  Level: %s (%s)\n", a.Level, a.LevelSource)
	if len(flags) > 0 {
		fmt.Fprintf(out, "  Flags: %s\n", strings.Join(flags, ", "))
	}
}
