package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/mgLock/cmd/bench"
	"github.com/ValentinKolb/mgLock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "mglock",
		Short: "hierarchical lock manager",
		Long: fmt.Sprintf(`mgLock (v%s)

A multi-granularity lock manager library written in Go, providing
intent locking over a global/database/collection hierarchy with
scoped guards and batch-writer quiescence.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mgLock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mgLock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	util.InitConfig()
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
