package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/koustreak/tabula/internal/app"
	"github.com/koustreak/tabula/internal/config"
	"github.com/koustreak/tabula/internal/logger"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand creates the tabula command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tabula",
		Short: "Schema inference, form metadata and validation for tabular backends",
		Long: `tabula infers table schemas from sample rows (or reads them from a static
metadata file), turns them into form field specs and validates records
against them. It serves the result over HTTP or answers one-off queries
from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./tabula.yaml)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newTablesCommand(opts))
	root.AddCommand(newSchemaCommand(opts))
	root.AddCommand(newFieldsCommand(opts))
	root.AddCommand(newValidateCommand(opts))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tabula %s (%s, %s)\n", Version, GitCommit, runtime.Version())
		},
	}
}

// openApp loads configuration and wires the components. Logs go to logOut
// so command output stays clean.
func openApp(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	lc := cfg.LoggerConfig()
	lc.Output = logOut
	log := logger.New(lc)
	logger.SetGlobal(log)
	return app.New(ctx, cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
