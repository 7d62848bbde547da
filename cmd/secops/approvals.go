package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noData0079/SecOPS.v1-sub002/gate"
	"github.com/noData0079/SecOPS.v1-sub002/internal/clifmt"
)

func newApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Inspect and resolve pending approval requests",
	}
	cmd.AddCommand(newApprovalsListCmd())
	cmd.AddCommand(newApprovalsShowCmd())
	cmd.AddCommand(newApprovalsResolveCmd("approve", gate.DecisionApprove))
	cmd.AddCommand(newApprovalsResolveCmd("deny", gate.DecisionDeny))
	return cmd
}

func newApprovalsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, closer, err := gatekeeperFromConfig(gateConfigFromViper(), newLogger())
			if err != nil {
				return err
			}
			defer closer()

			pending, err := g.Pending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println(clifmt.Dim("no pending approvals"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION ID\tAGENT\tTOOL\tRISK\tCREATED")
			for _, rec := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ActionID, rec.AgentID, rec.ToolName,
					string(rec.RiskTier), rec.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of requests to list")
	return cmd
}

func newApprovalsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one approval request as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := gateConfigFromViper()
			store, err := gate.NewSQLiteApprovalStore(cfg.Approvals.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, ok, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("approval not found: %s", args[0])
			}
			b, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}

func newApprovalsResolveCmd(use, decision string) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   use + " <action-id>",
		Short: fmt.Sprintf("%s a pending action", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, closer, err := gatekeeperFromConfig(gateConfigFromViper(), newLogger())
			if err != nil {
				return err
			}
			defer closer()

			res, err := g.Resolve(cmd.Context(), args[0], decision, notes)
			switch {
			case errors.Is(err, gate.ErrNotFound):
				return fmt.Errorf("unknown action id: %s", args[0])
			case errors.Is(err, gate.ErrInvalidTransition):
				return fmt.Errorf("action %s is already resolved", args[0])
			case err != nil:
				return err
			}

			if res.Outcome == gate.OutcomeResumed {
				fmt.Println(clifmt.Success(fmt.Sprintf("approved: %s will resume", args[0])))
			} else {
				fmt.Println(clifmt.Warn(fmt.Sprintf("denied: %s is permanently blocked", args[0])))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-text feedback recorded on the request")
	return cmd
}
