// Package cmd implements the goinst command-line surface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "goinst",
	Short: "Source-level instrumentation for Go packages",
	Long: `goinst rewrites a Go package's source according to a monitoring
configuration, inserting calls into the probe runtime around the
functions, methods, and goroutines it names. The rewritten package is a
regular Go package: it builds and runs without goinst once the probe
import is satisfied.

A companion binary, goinst-collect, listens for the datagrams the probe
runtime emits and records them into a SQLite database.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))
}
