// Command goinst-collect listens for the UDP datagrams a goinst-rewritten
// binary's probe runtime emits and records each one as a row in a SQLite
// database, creating the destination table on first use.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/go-instrument/internal/collector"
)

var (
	dbName    string
	tableName string
	bindAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "goinst-collect <run-name>",
	Short: "Collect instrumentation datagrams into a SQLite database",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollect,
}

func init() {
	rootCmd.Flags().StringVar(&dbName, "db", collector.DefaultDBName, "SQLite database file")
	rootCmd.Flags().StringVar(&tableName, "table", collector.DefaultTableName, "destination table name")
	rootCmd.Flags().StringVar(&bindAddr, "bind", "0.0.0.0:8080", "UDP address to listen on")
}

func runCollect(cmd *cobra.Command, args []string) error {
	c, err := collector.Open(collector.Config{
		DBName:    dbName,
		TableName: tableName,
		RunName:   "run_" + args[0],
		Bind:      bindAddr,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
