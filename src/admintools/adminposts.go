package admintools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/store"
	"github.com/spf13/cobra"
)

func addPostCommands(adminCommand *cobra.Command) {
	createAccountCommand := &cobra.Command{
		Use:   "create-account <email> [name...]",
		Short: "Register an account at the default credibility score",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, _ moderation.Actor) error {
				account, err := svc.RegisterAccount(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), account)
				return nil
			})
		},
	}
	adminCommand.AddCommand(createAccountCommand)

	createPostCommand := &cobra.Command{
		Use:   "create-post",
		Short: "Create a post as the given author",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			body, _ := cmd.Flags().GetString("body")
			submit, _ := cmd.Flags().GetBool("submit")

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				post, err := svc.CreatePost(ctx, actor, moderation.NewPost{Title: title, Body: body, SubmitNow: submit})
				if err != nil {
					return err
				}
				printPost(cmd.OutOrStdout(), post)
				return nil
			})
		},
	}
	addActorFlag(createPostCommand)
	createPostCommand.Flags().String("title", "", "Post title")
	createPostCommand.Flags().String("body", "", "Post body")
	createPostCommand.Flags().Bool("submit", false, "Submit the post for review immediately")
	adminCommand.AddCommand(createPostCommand)

	submitCommand := &cobra.Command{
		Use:   "submit <post id or slug>",
		Short: "Submit a draft or rejected post for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				post, err := svc.SubmitPost(ctx, store.ParsePostRef(args[0]), actor)
				if err != nil {
					return err
				}
				printPost(cmd.OutOrStdout(), post)
				return nil
			})
		},
	}
	addActorFlag(submitCommand)
	adminCommand.AddCommand(submitCommand)

	reviewCommand := &cobra.Command{
		Use:   "review <post id or slug> <approve|reject> [reason...]",
		Short: "Approve or reject a pending post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, ok := moderation.ParseDecision(args[1])
			if !ok {
				return oops.Kinded(oops.KindValidation, nil, "decision must be approve or reject, got %q", args[1])
			}
			review := moderation.Review{Decision: decision, Reason: strings.Join(args[2:], " ")}

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				res, err := svc.ReviewPost(ctx, store.ParsePostRef(args[0]), actor, review)
				if err != nil {
					return err
				}
				printPost(cmd.OutOrStdout(), res.Post)
				fmt.Fprintf(cmd.OutOrStdout(), "Author score: %d -> %d\n", res.PreviousScore, res.NewScore)
				return nil
			})
		},
	}
	addActorFlag(reviewCommand)
	adminCommand.AddCommand(reviewCommand)

	gradeCommand := &cobra.Command{
		Use:   "grade <post id or slug> <0-100>",
		Short: "Grade an approved post and apply the credibility delta to its author",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			grade, err := parseInt("grade", args[1])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			regrade, _ := cmd.Flags().GetBool("regrade")

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				res, err := svc.GradePost(ctx, store.ParsePostRef(args[0]), actor, grade, moderation.GradeOptions{Reason: reason, Regrade: regrade})
				if err != nil {
					return err
				}
				printPost(cmd.OutOrStdout(), res.Post)
				fmt.Fprintf(cmd.OutOrStdout(), "Author score: %d (%+d)\n", res.NewScore, res.Delta)
				return nil
			})
		},
	}
	addActorFlag(gradeCommand)
	gradeCommand.Flags().String("reason", "", "Reason recorded in the ledger")
	gradeCommand.Flags().Bool("regrade", false, "Replace an existing grade")
	adminCommand.AddCommand(gradeCommand)
}
