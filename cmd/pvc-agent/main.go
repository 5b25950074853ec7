package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parvane/pvcd/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pvc-agent",
	Short: "Per-node agent for a parallel virtual cluster",
	Long: `pvc-agent runs the hypervisor-node half of a bare-metal virtualization
cluster: it joins the Raft-replicated coordination store, supervises this
node's membership and keepalive, reconciles locally-relevant VM domains
against the desired state, and, on the elected primary, owns cluster
gateway addressing and DHCP.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("pvc-agent version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
