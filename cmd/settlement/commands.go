package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/screening-settlement/internal/api/middleware"
	"github.com/ayo6706/screening-settlement/internal/app"
	"github.com/ayo6706/screening-settlement/internal/config"
	"github.com/ayo6706/screening-settlement/internal/db"
	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/service"
	"github.com/spf13/cobra"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the scheduled settlement jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func runCmd() *cobra.Command {
	var (
		date        string
		retryErrors bool
	)
	cmd := &cobra.Command{
		Use:       "run <" + strings.Join(domain.Jobs, "|") + ">",
		Short:     "Run one settlement job for a reference date and print its summary",
		Long:      "Runs a single job exactly as the scheduler would. Re-running a job for the same date is safe.\nThe exit status is non-zero when the run fails or any unit fails.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: domain.Jobs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := args[0]
			if !domain.IsJob(job) {
				return fmt.Errorf("%w: %q", service.ErrUnknownJob, job)
			}
			if retryErrors && job != domain.JobRefunds {
				return fmt.Errorf("--retry-errors only applies to refunds")
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			referenceDate := domain.Yesterday(time.Now(), a.Config.Location)
			if date != "" {
				if referenceDate, err = domain.ParseReferenceDate(date); err != nil {
					return err
				}
			}

			summary, runErr := a.Settlement.RunJob(ctx, job, referenceDate, service.RunOptions{RetryErrors: retryErrors})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d units failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Reference date YYYY-MM-DD (default: yesterday in TIMEZONE)")
	cmd.Flags().BoolVar(&retryErrors, "retry-errors", false, "Refunds only: retry contributions that failed at the gateway")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the settlement schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signalContext()
			defer stop()

			pool, err := db.Connect(ctx, cfg.DatabaseURL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience).IssueToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Operator identity recorded in request logs")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "Token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	return cmd
}
