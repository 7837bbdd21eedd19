package main

import (
	"fmt"
	"os"

	"github.com/danmuck/rdtctl/internal/config"
	"github.com/danmuck/rdtctl/internal/logging"
	"github.com/danmuck/rdtctl/internal/observability"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	metricsAddr string
	logLevel    string

	// Resolved in PersistentPreRunE
	fileCfg config.FileConfig
)

var rootCmd = &cobra.Command{
	Use:   "rdtctl",
	Short: "Reliable data transfer over UDP",
	Long: `rdtctl moves messages between two hosts with a stop-and-wait protocol
over UDP: a three-way handshake, checksummed frames, acknowledgments and
retransmission with backoff.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		fileCfg = config.Default()
		if cfgFile != "" {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fileCfg = loaded
		}
		if cmd.Flags().Changed("metrics-addr") {
			fileCfg.Metrics.Addr = metricsAddr
		}
		if cmd.Flags().Changed("log-level") {
			if _, ok := logging.ParseLevel(logLevel); !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			fileCfg.Log.Level = logLevel
		}
		logging.ConfigureWith(fileCfg.LogConfig())
		observability.WithApp("rdtctl")
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rdtctl:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
}
