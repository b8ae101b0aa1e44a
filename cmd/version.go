package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RiskSense-Ops/tmux/internal/core"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tmux %s\n", core.Version)
		},
	}

	return versionCmd
}
