package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aks-egress-check/internal/config"
	"aks-egress-check/internal/egress"
	"aks-egress-check/internal/logging"

	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check endpoint reachability from the current network",
	Long: `Probe every endpoint from the network this process runs in and print
the report to stdout as a single JSON array:

  [{"host":"mcr.microsoft.com","dns_ok":true,"https_ok":true}, ...]

This is what the probe pod runs; it can also be run directly. Input comes
from --payload (the YAML document the run command mounts into the pod) or
from the flags below. Progress is logged to stderr as JSON.

Each endpoint gets a DNS check and an independent HTTPS check. Any HTTP
response counts as HTTPS success. If the resolver configuration or the
system TLS roots are unavailable, no check runs and the command exits
with code 3.`,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	payload, err := probePayload(cmd)
	if err != nil {
		return err
	}
	specs, err := payload.EndpointSpecs()
	if err != nil {
		return fmt.Errorf("invalid endpoints: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:       logLevel(),
		Console:     cmd.ErrOrStderr(),
		JSONConsole: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(payload.CheckerOptions(), egress.WithLogger(log.Logger))
	report, err := egress.New(opts...).Run(ctx, specs)
	if err != nil {
		return err
	}
	return report.Encode(cmd.OutOrStdout())
}

// probePayload loads --payload when given and builds one from flags otherwise.
func probePayload(cmd *cobra.Command) (*config.ProbePayload, error) {
	if path, _ := cmd.Flags().GetString("payload"); path != "" {
		return config.LoadProbePayload(path)
	}

	endpoints, _ := cmd.Flags().GetStringSlice("endpoint")
	if !cmd.Flags().Changed("endpoint") {
		endpoints = config.DefaultEndpoints
	}
	connect, _ := cmd.Flags().GetDuration("connect-timeout")
	request, _ := cmd.Flags().GetDuration("request-timeout")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if connect <= 0 || request <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}

	payload := config.NewProbePayload("", endpoints, connect, request, concurrency)
	return &payload, nil
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().String("payload", "", "path to a probe payload YAML document")
	probeCmd.Flags().StringSlice("endpoint", nil, "endpoint to check, repeatable (default: AKS required FQDNs)")
	probeCmd.Flags().Duration("connect-timeout", egress.DefaultConnectTimeout, "HTTPS connect timeout per attempt")
	probeCmd.Flags().Duration("request-timeout", egress.DefaultRequestTimeout, "HTTPS overall timeout per attempt")
	probeCmd.Flags().Int("concurrency", 1, "number of endpoints probed at once")
}
