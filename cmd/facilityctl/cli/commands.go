package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/closing"
	"github.com/ecofacility/facility-erp/jobs"
)

// ClosingComputer computes a monthly closing in process.
type ClosingComputer interface {
	Compute(ctx context.Context, p closing.Period) (closing.Result, error)
}

// TokenIssuer signs access tokens for existing employees.
type TokenIssuer interface {
	IssueFor(ctx context.Context, id string) (string, time.Time, error)
}

// Env opens the dependencies a command needs, on first use.
type Env struct {
	Jobs     func() (*JobsCLI, error)
	Closings func(ctx context.Context) (ClosingComputer, error)
	Tokens   func(ctx context.Context) (TokenIssuer, error)
	Timeout  time.Duration
}

// NewRootCommand assembles the facilityctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "facilityctl",
		Short:         "Operational tooling for the facility revenue backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newClosingCommand(env), newJobsCommand(env), newTokenCommand(env), newUserCommand())
	return root
}

func (e Env) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(parent, timeout)
}

func newClosingCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{Use: "closing", Short: "Monthly closing operations"}

	var year, month int
	var async bool
	compute := &cobra.Command{
		Use:   "compute",
		Short: "Compute and store the closing of one month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := closing.Period{Year: year, Month: month}
			if err := p.Validate(); err != nil {
				return err
			}
			ctx, cancel := env.context(cmd.Context())
			defer cancel()

			if async {
				client, err := openJobs(env)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				info, err := client.TriggerClosing(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) for %s\n", info.Type, info.ID, p)
				return nil
			}

			if env.Closings == nil {
				return errors.New("closing: not configured")
			}
			svc, err := env.Closings(ctx)
			if err != nil {
				return err
			}
			result, err := svc.Compute(ctx, p)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	compute.Flags().IntVar(&year, "year", 0, "closing year")
	compute.Flags().IntVar(&month, "month", 0, "closing month (1-12)")
	compute.Flags().BoolVar(&async, "async", false, "enqueue on the worker instead of computing here")
	_ = compute.MarkFlagRequired("year")
	_ = compute.MarkFlagRequired("month")

	cmd.AddCommand(compute)
	return cmd
}

func newJobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Background job queue"}

	enqueue := &cobra.Command{
		Use:       "enqueue <task>",
		Short:     "Enqueue a background task with its default payload",
		Long:      "Known tasks: " + strings.Join(jobs.TaskTypes, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openJobs(env)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			ctx, cancel := env.context(cmd.Context())
			defer cancel()
			info, err := client.Trigger(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.Type, info.ID)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openJobs(env)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			s, err := client.InspectQueue()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List upcoming scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openJobs(env)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			infos, err := client.ListScheduled(size)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(enqueue, stats, scheduled)
	return cmd
}

func newTokenCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Access tokens"}

	var userID string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for an active employee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.Tokens == nil {
				return errors.New("token: not configured")
			}
			ctx, cancel := env.context(cmd.Context())
			defer cancel()
			issuer, err := env.Tokens(ctx)
			if err != nil {
				return err
			}
			token, expires, err := issuer.IssueFor(ctx, userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":     token,
				"expiresAt": expires.UTC().Format(time.RFC3339),
			})
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "employee id")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Employee helpers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for seeding an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})
	return cmd
}

func openJobs(env Env) (*JobsCLI, error) {
	if env.Jobs == nil {
		return nil, errors.New("jobs: not configured")
	}
	return env.Jobs()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
