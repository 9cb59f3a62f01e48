package cmd

import (
	"bytes"
	"fmt"
	"go/format"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/tools/go/packages"

	"github.com/cwbudde/go-instrument/internal/config"
	"github.com/cwbudde/go-instrument/internal/pipeline"
)

var (
	configPath string
	dryRun     bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <package-pattern>",
	Short: "Instrument a Go package in place",
	Long: `rewrite loads the package(s) matching package-pattern (anything
"go list" accepts, e.g. "./..." or a single import path), applies the
monitoring configuration to each one, and writes the rewritten source back
to disk.

Examples:
  # Instrument one package
  goinst rewrite ./cmd/server

  # Instrument every package under the module
  goinst rewrite ./...

  # Preview the rewrite without touching any file
  goinst rewrite --dry-run ./cmd/server`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	rewriteCmd.Flags().StringVar(&configPath, "config", "", "path to instconfig.toml (default: ~/.goinst/instconfig.toml)")
	rewriteCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the rewritten sources instead of writing them")
}

func runRewrite(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles | packages.NeedSyntax,
	}, args[0])
	if err != nil {
		return fmt.Errorf("rewrite: loading package %s: %w", args[0], err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return fmt.Errorf("rewrite: package %s failed to load", args[0])
	}

	for _, pkg := range pkgs {
		if err := pipeline.Run(pkg.Fset, pkg.Syntax, pkg.PkgPath, cfg); err != nil {
			return fmt.Errorf("rewrite: instrumenting %s: %w", pkg.PkgPath, err)
		}

		for i, file := range pkg.Syntax {
			var buf bytes.Buffer
			if err := format.Node(&buf, pkg.Fset, file); err != nil {
				return fmt.Errorf("rewrite: formatting %s: %w", pkg.CompiledGoFiles[i], err)
			}

			if dryRun {
				fmt.Printf("--- %s ---\n%s\n", pkg.CompiledGoFiles[i], buf.String())
				continue
			}
			if err := os.WriteFile(pkg.CompiledGoFiles[i], buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("rewrite: writing %s: %w", pkg.CompiledGoFiles[i], err)
			}
		}
	}
	return nil
}
