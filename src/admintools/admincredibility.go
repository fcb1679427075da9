package admintools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/moderation"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/reputation"
	"github.com/spf13/cobra"
)

func addCredibilityCommands(adminCommand *cobra.Command) {
	adjustCommand := &cobra.Command{
		Use:   "adjust <email> <delta> <reason...>",
		Short: "Manually adjust an account's credibility score",
		Long:  "Manually adjust an account's credibility score. Put negative deltas after -- so they are not read as flags.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseInt("delta", args[1])
			if err != nil {
				return err
			}
			reason := strings.Join(args[2:], " ")

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				res, err := svc.AdjustCredibility(ctx, args[0], delta, reason, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Score: %d -> %d (%+d)\n", res.PreviousScore, res.NewScore, res.Delta)
				if res.Clamped {
					fmt.Fprintf(cmd.OutOrStdout(), "Requested %+d was limited to the manual adjustment range\n", res.Requested)
				}
				return nil
			})
		},
	}
	addActorFlag(adjustCommand)
	adminCommand.AddCommand(adjustCommand)

	suspendCommand := &cobra.Command{
		Use:   "suspend <account id>",
		Short: "Suspend and soft-ban an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt("account id", args[0])
			if err != nil {
				return err
			}
			zero, _ := cmd.Flags().GetBool("zero")
			reason, _ := cmd.Flags().GetString("reason")

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				res, err := svc.SuspendAuthor(ctx, id, moderation.SuspendOptions{SetScoreToZero: zero, Reason: reason}, actor)
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), res.Account)
				return nil
			})
		},
	}
	addActorFlag(suspendCommand)
	suspendCommand.Flags().Bool("zero", false, "Also set the credibility score to 0")
	suspendCommand.Flags().String("reason", "", "Reason recorded in the ledger")
	adminCommand.AddCommand(suspendCommand)

	unsuspendCommand := &cobra.Command{
		Use:   "unsuspend <account id>",
		Short: "Lift a suspension. The score is not restored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt("account id", args[0])
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				account, err := svc.UnsuspendAuthor(ctx, id, actor)
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), account)
				return nil
			})
		},
	}
	addActorFlag(unsuspendCommand)
	adminCommand.AddCommand(unsuspendCommand)

	promoteCommand := &cobra.Command{
		Use:   "promote <account id>",
		Short: "Make an account an admin, raising its score to the admin floor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt("account id", args[0])
			if err != nil {
				return err
			}
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				account, err := svc.PromoteToAdmin(ctx, id, actor)
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), account)
				return nil
			})
		},
	}
	addActorFlag(promoteCommand)
	adminCommand.AddCommand(promoteCommand)

	setLevelCommand := &cobra.Command{
		Use:   "set-level <email> <Newcomer|Contributor|Established|Trusted|derived>",
		Short: "Pin an account's credibility level, or return it to the derived level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				var account *models.Account
				var err error
				if strings.EqualFold(args[1], string(models.LevelSourceDerived)) {
					account, err = svc.ResetCredibilityLevel(ctx, args[0], actor)
				} else {
					level, ok := models.ParseCredibilityLevel(args[1])
					if !ok {
						return oops.Kinded(oops.KindValidation, nil, "unknown credibility level %q", args[1])
					}
					account, err = svc.SetCredibilityLevel(ctx, args[0], level, actor)
				}
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), account)
				return nil
			})
		},
	}
	addActorFlag(setLevelCommand)
	adminCommand.AddCommand(setLevelCommand)

	ledgerCommand := &cobra.Command{
		Use:   "ledger <email>",
		Short: "Print an account's credibility ledger, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, actor moderation.Actor) error {
				entries, err := svc.Ledger(ctx, args[0], actor)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %-16s %+4d  %3d -> %3d  by %s",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.ActionType, e.Delta, e.PreviousScore, e.NewScore, e.ActingAdminEmail)
					if e.RelatedPostID != nil {
						fmt.Fprintf(out, "  post %d", *e.RelatedPostID)
					}
					if e.Reason != nil {
						fmt.Fprintf(out, "  (%s)", *e.Reason)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	addActorFlag(ledgerCommand)
	adminCommand.AddCommand(ledgerCommand)

	verifyCommand := &cobra.Command{
		Use:   "verify [email...]",
		Short: "Replay ledgers and report accounts whose score does not match",
		RunE: func(cmd *cobra.Command, args []string) error {
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			return runWithService(cmd, func(ctx context.Context, svc *moderation.Service, _ moderation.Actor) error {
				var reports []reputation.ReplayReport
				if len(args) == 0 {
					broken, err := svc.VerifyLedgers(ctx, concurrency)
					if err != nil {
						return err
					}
					reports = broken
				} else {
					for _, email := range args {
						report, err := svc.VerifyReplay(ctx, email)
						if err != nil {
							return err
						}
						if !report.Consistent() {
							reports = append(reports, report)
						}
					}
				}

				out := cmd.OutOrStdout()
				if len(reports) == 0 {
					fmt.Fprintln(out, "All ledgers are consistent.")
					return nil
				}
				for _, r := range reports {
					fmt.Fprintf(out, "%s: score %d, ledger replays to %d (broken entries: %v)\n", r.SubjectEmail, r.CurrentScore, r.ReplayedScore, r.BrokenEntries)
				}
				return oops.Kinded(oops.KindDataIntegrity, nil, "%d ledger(s) do not match their scores", len(reports))
			})
		},
	}
	verifyCommand.Flags().Int("concurrency", 4, "Number of ledgers replayed at once")
	adminCommand.AddCommand(verifyCommand)
}
