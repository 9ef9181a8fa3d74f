package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"aks-egress-check/internal/diagnostic"
	"aks-egress-check/internal/egress"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Process exit codes.
const (
	ExitFailure      = 1
	ExitProvisioning = egress.ProvisioningExitCode
	ExitEnvironment  = 4
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aks-egress-check",
	Short: "Check outbound connectivity required by an AKS cluster",
	Long: `aks-egress-check verifies that an Azure Kubernetes Service cluster can
reach the Microsoft and Azure endpoints it needs to operate.

It starts a short-lived probe pod inside the cluster, so every check is made
from the cluster's own network path rather than the operator's. For each
endpoint the probe resolves the name in DNS and opens an HTTPS connection,
then the pod and everything created for it are removed.

Wildcard endpoints such as *.data.mcr.microsoft.com are checked through the
candidates www.<base>, api.<base> and <base>.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "🔗 aks-egress-check - AKS Egress Connectivity Check")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  run        - Check egress from inside the cluster")
		fmt.Fprintln(out, "  probe      - Check egress from the current network")
		fmt.Fprintln(out, "  endpoints  - List the endpoints that will be checked")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Use --help for more information about available commands")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to the process exit code.
// Provisioning and environment failures get their own codes so automation
// can tell them apart from blocked egress.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var provErr *egress.ProvisioningError
	if errors.As(err, &provErr) {
		return ExitProvisioning
	}
	var exitErr *diagnostic.ProbeExitError
	if errors.As(err, &exitErr) && exitErr.Provisioning() {
		return ExitProvisioning
	}
	var envErr *diagnostic.EnvironmentError
	if errors.As(err, &envErr) {
		return ExitEnvironment
	}
	return ExitFailure
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aks-egress-check.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("kubeconfig", "", "path to kubeconfig file (uses default kubectl config if not specified)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("kubeconfig", rootCmd.PersistentFlags().Lookup("kubeconfig"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".aks-egress-check" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".aks-egress-check")
	}

	viper.SetEnvPrefix("AKS_EGRESS_CHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// logLevel is debug in verbose mode and the configured level otherwise.
func logLevel() string {
	if viper.GetBool("verbose") {
		return "debug"
	}
	return viper.GetString("log_level")
}
