package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noData0079/SecOPS.v1-sub002/internal/clifmt"
	"github.com/noData0079/SecOPS.v1-sub002/jit"
)

// loggingApplier stands in for the real enforcement backend in the CLI and
// daemon. It only records what would be applied; wiring a cloud IAM or RBAC
// backend means replacing this with a real jit.PermissionApplier.
type loggingApplier struct {
	log *slog.Logger
}

func (a *loggingApplier) Apply(ctx context.Context, grant jit.AccessGrant) error {
	a.log.Info("apply permission",
		"grant_id", grant.GrantID,
		"user_id", grant.UserID,
		"resource", grant.Resource,
		"role", grant.Role,
	)
	return nil
}

func (a *loggingApplier) Remove(ctx context.Context, grant jit.AccessGrant) error {
	a.log.Info("remove permission",
		"grant_id", grant.GrantID,
		"user_id", grant.UserID,
		"resource", grant.Resource,
		"role", grant.Role,
	)
	return nil
}

func registryFromViper(log *slog.Logger) (*jit.Registry, error) {
	return jit.NewRegistry(&loggingApplier{log: log}, jit.WithLogger(log))
}

func newAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Issue and revoke just-in-time access grants",
	}
	cmd.AddCommand(newAccessGrantCmd())
	cmd.AddCommand(newAccessRevokeCmd())
	cmd.AddCommand(newAccessListCmd())
	return cmd
}

func newAccessGrantCmd() *cobra.Command {
	var (
		duration time.Duration
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "grant <user> <resource> <role>",
		Short: "Issue a time-boxed grant (one-shot; the daemon sweeps expiry)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			reg, err := registryFromViper(log)
			if err != nil {
				return err
			}

			grantID, denied, err := reg.RequestAccess(cmd.Context(), args[0], args[1], args[2], duration, reason)
			if err != nil {
				return err
			}
			if denied {
				fmt.Println(clifmt.Warn("denied by policy"))
				return nil
			}
			fmt.Println(clifmt.Success(fmt.Sprintf("granted %s until %s",
				grantID, time.Now().UTC().Add(duration).Format(time.RFC3339))))
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Minute, "how long the grant stays live")
	cmd.Flags().StringVar(&reason, "reason", "", "justification recorded on the grant")
	return cmd
}

func newAccessRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <grant-id>",
		Short: "Revoke a grant ahead of its expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			reg, err := registryFromViper(log)
			if err != nil {
				return err
			}
			if err := reg.RevokeAccess(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(clifmt.Success("revoked " + args[0]))
			return nil
		},
	}
}

func newAccessListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			reg, err := registryFromViper(log)
			if err != nil {
				return err
			}

			grants := reg.ListActive()
			if len(grants) == 0 {
				fmt.Println(clifmt.Dim("no active grants"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GRANT ID\tUSER\tRESOURCE\tROLE\tEXPIRES")
			for _, g := range grants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					g.GrantID, g.UserID, g.Resource, g.Role,
					g.ExpiresAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}
}

func jitSweepIntervalFromViper() time.Duration {
	viper.SetDefault("jit.sweep_interval", time.Minute)
	return viper.GetDuration("jit.sweep_interval")
}
