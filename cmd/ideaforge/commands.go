package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/ideaforge-backend/internal/app"
	types "github.com/yungbote/ideaforge-backend/internal/domain/generation"
	"github.com/yungbote/ideaforge-backend/internal/generation/orchestrator"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the slot scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			dbs, err := app.OpenDB(log, app.LoadConfig(log))
			if err != nil {
				return err
			}
			return dbs.Close()
		},
	}
}

func newGenerateCommand() *cobra.Command {
	var (
		req  orchestrator.Request
		slot int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Trigger = types.TriggerCLI
			if slot > 0 {
				req.SlotNumber = &slot
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Services.Orchestrator.Run(ctx, req)
				if err != nil {
					ae := apierr.Ensure("generation_failed", err)
					_ = printJSON(map[string]any{"error": map[string]any{
						"message": ae.Error(),
						"code":    ae.Code,
						"kind":    ae.Kind,
						"details": ae.Details,
					}})
					return err
				}
				return printJSON(res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Domain, "domain", "", "industry domain (random from the profile when empty)")
	f.StringVar(&req.Framework, "framework", "", "ideation framework (random from the profile when empty)")
	f.StringVar(&req.ProfileID, "profile", "", "profile id (slot profile or default when empty)")
	f.StringVar(&req.SessionID, "session", "", "session id (generated when empty)")
	f.IntVar(&slot, "slot", 0, "slot number to run under")
	f.BoolVar(&req.SkipDuplicateCheck, "skip-duplicate-check", false, "store the idea even if it duplicates an existing one")
	return cmd
}

func newSlotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List generation slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				slots, err := a.Services.Slots.List(dbctx.New(ctx))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"slots": slots})
			})
		},
	}

	var (
		auto     bool
		enabled  bool
		interval int
		profile  string
	)
	set := &cobra.Command{
		Use:   "set <number>",
		Short: "Update one slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
				return fmt.Errorf("slot number must be an integer: %w", err)
			}
			var in services.SlotUpdate
			f := cmd.Flags()
			if f.Changed("auto") {
				in.AutoGenerate = &auto
			}
			if f.Changed("enabled") {
				in.Enabled = &enabled
			}
			if f.Changed("interval") {
				in.IntervalMinutes = &interval
			}
			if f.Changed("profile") {
				in.ProfileID = &profile
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				slot, err := a.Services.Slots.Update(dbctx.New(ctx), n, in)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"slot": slot})
			})
		},
	}
	set.Flags().BoolVar(&auto, "auto", false, "auto-generate on the slot timer")
	set.Flags().BoolVar(&enabled, "enabled", true, "slot enabled")
	set.Flags().IntVar(&interval, "interval", 60, "auto-generate interval in minutes (1-1440)")
	set.Flags().StringVar(&profile, "profile", "", "profile id; empty clears the assignment")
	cmd.AddCommand(set)
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with JWT_SECRET_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			cfg := app.LoadConfig(log)
			tokens, err := services.NewTokenService(log, cfg.JWTSecretKey, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}
