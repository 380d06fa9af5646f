package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// adminAddr is the pgwd admin HTTP plane address (host:port).
	adminAddr string

	// udpAddr is the pgwd datagram socket address (host:port), used by probe.
	udpAddr string

	// timeout bounds every request a command makes.
	timeout time.Duration
)

// rootCmd is the top-level cobra command for pgwctl.
var rootCmd = &cobra.Command{
	Use:   "pgwctl",
	Short: "CLI client for the pgwd daemon",
	Long:  "pgwctl talks to the pgwd admin HTTP plane and datagram socket to query and control subscriber sessions.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "addr", "localhost:8080",
		"pgwd admin HTTP address (host:port)")
	rootCmd.PersistentFlags().StringVar(&udpAddr, "udp-addr", "localhost:9000",
		"pgwd datagram socket address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second,
		"per-request timeout")

	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
