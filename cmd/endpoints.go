package cmd

import (
	"fmt"
	"strings"

	"aks-egress-check/internal/config"

	"github.com/spf13/cobra"
)

// endpointsCmd lists the effective endpoint set
var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the endpoints that will be checked and their candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		specs, err := cfg.EndpointSpecs()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🌐 %d endpoints:\n", len(specs))
		for _, spec := range specs {
			if spec.IsWildcard() {
				fmt.Fprintf(out, "  • %s → %s\n", spec.Pattern, strings.Join(spec.Candidates(), ", "))
			} else {
				fmt.Fprintf(out, "  • %s\n", spec.Pattern)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}
