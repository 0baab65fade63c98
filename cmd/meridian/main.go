// Command meridian is a thin operator CLI over the storage/consensus core:
// enough to inspect a database on disk and to drive an in-memory validator
// cluster for demonstration, not a production node process. Grounded on
// the teacher's cmd/warren/main.go root-command shape (persistent
// log-level/log-json flags, cobra.OnInitialize(initLogging), version
// template).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/meridian/pkg/log"
)

var (
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
	Use:     "meridian",
	Short:   "Meridian authenticated key-value storage engine",
	Long:    `Meridian is an authenticated, Merkle-proof-backed key-value store with a byzantine-fault-tolerant consensus core.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("meridian version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
