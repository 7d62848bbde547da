package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noData0079/SecOPS.v1-sub002/internal/clifmt"
)

func newKillSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "killswitch",
		Short: "Toggle the emergency halt flag shared with the daemon",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "on",
		Short: "Halt all non-privileged gated actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := killSwitchFromViper()
			if err != nil {
				return err
			}
			if err := k.Activate(); err != nil {
				return err
			}
			fmt.Println(clifmt.Danger("kill switch ACTIVE: all non-privileged actions are halted"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "Resume normal gating",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := killSwitchFromViper()
			if err != nil {
				return err
			}
			if err := k.Deactivate(); err != nil {
				return err
			}
			fmt.Println(clifmt.Success("kill switch inactive: normal gating resumed"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current flag state",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := killSwitchFromViper()
			if err != nil {
				return err
			}
			if k.IsActive() {
				fmt.Println(clifmt.Danger("active"))
			} else {
				fmt.Println(clifmt.Dim("inactive"))
			}
			return nil
		},
	})

	return cmd
}
