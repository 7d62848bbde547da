package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noData0079/SecOPS.v1-sub002/internal/clifmt"
	"github.com/noData0079/SecOPS.v1-sub002/jit"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the governance core: gate, grant sweeps, kill switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg := gateConfigFromViper()

			g, closer, err := gatekeeperFromConfig(cfg, log)
			if err != nil {
				return err
			}
			defer closer()

			reg, err := registryFromViper(log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sweeper := jit.NewSweeper(reg, jitSweepIntervalFromViper())
			sweeper.Start(ctx)
			defer sweeper.Close()

			pending, err := g.Pending(ctx, 1000)
			if err != nil {
				return err
			}
			log.Info("governance core running",
				"approvals_dsn", cfg.Approvals.DSN,
				"pending_approvals", len(pending),
				"kill_switch_path", cfg.Kill.Path,
			)
			fmt.Println(clifmt.Headerf("secops daemon running (ctrl-c to stop)"))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case s := <-sig:
				log.Info("shutting down", "signal", s.String())
			case <-ctx.Done():
			}
			return nil
		},
	}
}
