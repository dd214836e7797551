// Package cli is the querykit command line: schema inspection, query
// adaptation and safe execution against one configured datasource.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/ekaya-querykit/pkg/adapters" // Register datasource adapters
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
)

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(cfg *config.Config, logger *zap.Logger) int {
	if err := Run(context.Background(), cfg, logger, os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// Run executes one command line and releases every connection it opened.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, out io.Writer) error {
	root, a := newRootCommand(cfg, logger)
	defer a.close()

	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, logger *zap.Logger) (*cobra.Command, *app) {
	a := &app{cfg: cfg, logger: logger}

	root := &cobra.Command{
		Use:   "querykit",
		Short: "Schema-adaptive SQL execution",
		Long: `querykit introspects a database, repairs SQL written against guessed
table and column names, and runs it with a fallback when it still fails.

Examples:

  querykit tables
  querykit exec "SELECT name FROM employe WHERE id = 1"
  querykit join employees --suggest
  querykit normalize orders --limit 20
  querykit ask "Which employees work in Engineering?"
`,
		Version:       cfg.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.validateOutput()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.showMetrics {
				return a.writeMetrics(cmd.OutOrStdout())
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.output, "output", "o", formatText, "output format: text, json or yaml")
	flags.BoolVar(&a.showMetrics, "metrics", false, "print prometheus metrics after the command")
	flags.DurationVar(&a.timeout, "timeout", 0, "overall timeout (default from config)")
	flags.StringVar(&cfg.Datasource.Type, "db-type", cfg.Datasource.Type, "datasource type")
	flags.StringVar(&cfg.Datasource.Host, "db-host", cfg.Datasource.Host, "datasource host")
	flags.IntVar(&cfg.Datasource.Port, "db-port", cfg.Datasource.Port, "datasource port")
	flags.StringVar(&cfg.Datasource.User, "db-user", cfg.Datasource.User, "datasource user")
	flags.StringVar(&cfg.Datasource.Database, "db-name", cfg.Datasource.Database, "database name, or file path for sqlite")

	root.AddCommand(
		newAdaptersCmd(a),
		newTablesCmd(a),
		newRelationshipsCmd(a),
		newDescribeCmd(a),
		newAdaptCmd(a),
		newExecCmd(a),
		newJoinCmd(a),
		newNormalizeCmd(a),
		newAskCmd(a),
	)
	return root, a
}

// context returns the command context bounded by --timeout, or by the
// configured query timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := a.timeout
	if timeout <= 0 {
		timeout = a.cfg.Engine.QueryTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (a *app) validateOutput() error {
	switch a.output {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q", a.output)
}
