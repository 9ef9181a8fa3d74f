package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"aks-egress-check/internal/config"
	"aks-egress-check/internal/diagnostic"
	"aks-egress-check/internal/egress"
	"aks-egress-check/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check egress connectivity from inside an AKS cluster",
	Long: `Run the egress connectivity check from a probe pod inside the cluster.

The probe pod runs --image, which must contain this binary. Build it from
the Dockerfile at the repository root and push it to a registry the
cluster can pull from.

Steps:
- Ensures the namespace exists (default: aks-egress-check)
- Stores the endpoint list and timeouts in a ConfigMap
- Starts a probe pod that mounts it and runs "aks-egress-check probe"
- Streams the probe's progress and collects its report
- Deletes the pod, the ConfigMap and, if it created it, the namespace

An endpoint passes the HTTPS check when any HTTP response arrives, whatever
its status code: this is a reachability check, not an availability check.

If the pod does not start within --startup-timeout the run fails with an
environment error (exit code 4), which points at the cluster rather than
at blocked egress. A probe that cannot prepare its toolchain exits with
code 3. Unreachable endpoints exit with code 1.

The tool will use the current kubectl context unless --kubeconfig is specified.`,
	RunE: runEgressCheck,
}

func runEgressCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}
	textOutput := cfg.Output == config.OutputText
	out := cmd.OutOrStdout()

	log, err := logging.New(logging.Options{
		Level:   logLevel(),
		Console: cmd.ErrOrStderr(),
		Dir:     filepath.Join(cfg.ResultsDir, "logs"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Close()

	if textOutput && cfg.Verbose {
		fmt.Fprintf(out, "🔍 Configuration:\n")
		fmt.Fprintf(out, "  - Namespace: %s\n", cfg.Namespace)
		if cfg.Kubeconfig != "" {
			fmt.Fprintf(out, "  - Kubeconfig: %s\n", cfg.Kubeconfig)
		} else {
			fmt.Fprintf(out, "  - Using default kubectl context\n")
		}
		fmt.Fprintf(out, "  - Image: %s\n", cfg.Image)
		fmt.Fprintf(out, "  - Endpoints: %d\n", len(cfg.Endpoints))
		fmt.Fprintf(out, "  - Timeouts: connect %v, request %v, startup %v\n", cfg.ConnectTimeout, cfg.RequestTimeout, cfg.StartupTimeout)
		fmt.Fprintf(out, "\n")
	}

	tester, err := diagnostic.NewTester(cfg.Kubeconfig, cfg.Namespace, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic tester: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	runID := uuid.NewString()
	if textOutput {
		fmt.Fprintf(out, "🚀 Running egress connectivity check in namespace '%s' (run %s)\n\n", cfg.Namespace, runID)
	}

	progress := func(line string) {
		log.Debug("probe output", zap.String("line", line))
	}
	if textOutput && cfg.Verbose {
		progress = func(line string) {
			fmt.Fprintf(out, "  │ %s\n", line)
		}
	}

	startTime := time.Now()
	outcome, runErr := tester.RunEgressCheck(ctx, diagnostic.RunOptions{
		RunID:                 runID,
		Image:                 cfg.Image,
		Payload:               cfg.ProbePayload(runID),
		StartupTimeout:        cfg.StartupTimeout,
		CompletionTimeout:     cfg.CompletionTimeout,
		CleanupTimeout:        cfg.CleanupTimeout,
		SimulateBlockedEgress: cfg.SimulateBlockedEgress,
		Progress:              progress,
	})
	endTime := time.Now()

	var report egress.Report
	if outcome != nil {
		report = outcome.Report
	}

	kubeconfigSource := cfg.Kubeconfig
	if kubeconfigSource == "" {
		kubeconfigSource = "default"
	}
	doc := diagnostic.CreateJSONReport(diagnostic.ExecutionInfoJSON{
		RunID:            runID,
		Namespace:        cfg.Namespace,
		KubeconfigSource: kubeconfigSource,
		Image:            cfg.Image,
		VerboseMode:      cfg.Verbose,
	}, report, runErr, startTime, endTime)
	path, saveErr := diagnostic.SaveJSONReport(cfg.ResultsDir, &doc)
	if saveErr != nil {
		log.Warn("failed to save JSON report", zap.Error(saveErr))
	}

	if runErr != nil {
		if textOutput {
			fmt.Fprintf(out, "❌ Egress check could not complete: %v\n", runErr)
		}
		return runErr
	}

	if textOutput {
		printReport(out, report, cfg.Verbose)
		if saveErr == nil {
			fmt.Fprintf(out, "💾 Report saved to %s\n", path)
		}
	} else if err := report.Encode(out); err != nil {
		return err
	}

	if s := report.Summary(); !s.Passed() {
		return fmt.Errorf("%d of %d endpoints unreachable", s.Total-s.Reachable, s.Total)
	}
	return nil
}

// printReport writes per-endpoint results and the summary.
func printReport(out io.Writer, report egress.Report, verbose bool) {
	width := 0
	for _, res := range report {
		if len(res.Host) > width {
			width = len(res.Host)
		}
	}

	fmt.Fprintf(out, "📋 Endpoint Results:\n")
	for _, res := range report {
		icon := "✅"
		if !res.Reachable() {
			icon = "❌"
		}
		fmt.Fprintf(out, "  %s %-*s  DNS %s  HTTPS %s\n", icon, width, res.Host, mark(res.DNSOK), mark(res.HTTPSOK))
		if verbose && (egress.EndpointSpec{Pattern: res.Host}).IsWildcard() {
			fmt.Fprintf(out, "     candidates: %v\n", egress.Candidates(res.Host))
		}
	}

	s := report.Summary()
	fmt.Fprintf(out, "\n📊 Summary:\n")
	fmt.Fprintf(out, "  Total Endpoints: %d, Reachable: %d, DNS Failures: %d, HTTPS Failures: %d\n",
		s.Total, s.Reachable, s.DNSFailures, s.HTTPSFailures)

	fmt.Fprintf(out, "\n")
	if s.Passed() {
		fmt.Fprintf(out, "✅ Overall Result: All %d endpoints reachable\n", s.Total)
	} else {
		fmt.Fprintf(out, "❌ Overall Result: %d of %d endpoints unreachable\n", s.Total-s.Reachable, s.Total)
		if !verbose {
			fmt.Fprintf(out, "💡 Run with --verbose for probe progress and wildcard candidates\n")
		}
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Local flags for the run command
	runCmd.Flags().StringP("namespace", "n", "aks-egress-check", "namespace to run the probe pod in")
	runCmd.Flags().String("image", "", "probe image containing the aks-egress-check binary (required, see Dockerfile)")
	runCmd.Flags().StringSlice("endpoint", nil, "endpoint to check, repeatable (default: AKS required FQDNs)")
	runCmd.Flags().Duration("connect-timeout", egress.DefaultConnectTimeout, "HTTPS connect timeout per attempt")
	runCmd.Flags().Duration("request-timeout", egress.DefaultRequestTimeout, "HTTPS overall timeout per attempt")
	runCmd.Flags().Int("concurrency", 1, "number of endpoints probed at once")
	runCmd.Flags().Duration("startup-timeout", 300*time.Second, "how long the probe pod may take to start")
	runCmd.Flags().Duration("completion-timeout", 60*time.Second, "how long to wait for the probe to exit after its output ends")
	runCmd.Flags().Duration("cleanup-timeout", 60*time.Second, "deadline for deleting the run's resources")
	runCmd.Flags().Duration("run-timeout", 10*time.Minute, "deadline for the whole run")
	runCmd.Flags().String("results-dir", "test_results", "directory for JSON reports and logs")
	runCmd.Flags().StringP("output", "o", config.OutputText, "output format: text or json")
	runCmd.Flags().Bool("simulate-blocked-egress", false, "apply a NetworkPolicy blocking non-DNS egress to validate detection")

	viper.BindPFlag("namespace", runCmd.Flags().Lookup("namespace"))
	viper.BindPFlag("image", runCmd.Flags().Lookup("image"))
	viper.BindPFlag("endpoints", runCmd.Flags().Lookup("endpoint"))
	viper.BindPFlag("connect_timeout", runCmd.Flags().Lookup("connect-timeout"))
	viper.BindPFlag("request_timeout", runCmd.Flags().Lookup("request-timeout"))
	viper.BindPFlag("concurrency", runCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("startup_timeout", runCmd.Flags().Lookup("startup-timeout"))
	viper.BindPFlag("completion_timeout", runCmd.Flags().Lookup("completion-timeout"))
	viper.BindPFlag("cleanup_timeout", runCmd.Flags().Lookup("cleanup-timeout"))
	viper.BindPFlag("run_timeout", runCmd.Flags().Lookup("run-timeout"))
	viper.BindPFlag("results_dir", runCmd.Flags().Lookup("results-dir"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("simulate_blocked_egress", runCmd.Flags().Lookup("simulate-blocked-egress"))
}
