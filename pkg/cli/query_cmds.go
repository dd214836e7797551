package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-querykit/pkg/assistant"
	"github.com/ekaya-inc/ekaya-querykit/pkg/llm"
	"github.com/ekaya-inc/ekaya-querykit/pkg/normalizer"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// statement joins args into one statement and strips a trailing semicolon.
func statement(args []string) (string, error) {
	v := sqlparse.ValidateAndNormalize(strings.Join(args, " "))
	if v.Error != nil {
		return "", v.Error
	}
	return v.NormalizedSQL, nil
}

type adaptOutput struct {
	SQL      string   `json:"sql"`
	Changed  bool     `json:"changed"`
	Warnings []string `json:"warnings,omitempty"`
}

func newAdaptCmd(a *app) *cobra.Command {
	var repairJoins bool
	cmd := &cobra.Command{
		Use:   "adapt <sql>",
		Short: "Rewrite SQL to the real table and column names without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := statement(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			adapted, warnings := e.AdaptQuery(text)
			if repairJoins {
				var joinWarnings []string
				adapted, joinWarnings = e.ValidateJoinConditions(adapted)
				warnings = append(warnings, joinWarnings...)
			}
			out := adaptOutput{SQL: adapted, Changed: adapted != text, Warnings: warnings}

			return a.render(cmd.OutOrStdout(), out, func(w io.Writer) error {
				fmt.Fprintln(w, out.SQL)
				writeWarnings(w, out.Warnings)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&repairJoins, "repair-joins", false, "also repair JOIN conditions that name missing columns")
	return cmd
}

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Adapt and run SQL, falling back to a related query on failure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := statement(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			result, _ := e.ExecuteSafely(ctx, text)
			return a.render(cmd.OutOrStdout(), result, func(w io.Writer) error {
				writeResult(w, result)
				return nil
			})
		},
	}
}

type joinOutput struct {
	SQL      string   `json:"sql"`
	Warnings []string `json:"warnings,omitempty"`
}

func newJoinCmd(a *app) *cobra.Command {
	var (
		suggest bool
		columns bool
		merge   string
	)
	cmd := &cobra.Command{
		Use:   "join <table>",
		Short: "Generate a LEFT JOIN query from the relationship graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			var out joinOutput
			if suggest {
				out.SQL, err = e.SuggestJoinQuery(args[0])
			} else {
				out.SQL, err = e.BuildJoinQuery(args[0], columns)
			}
			if err != nil {
				return err
			}
			if merge != "" {
				original, err := statement([]string{merge})
				if err != nil {
					return err
				}
				out.SQL, out.Warnings = e.MergeJoinQuery(original, out.SQL)
			}

			return a.render(cmd.OutOrStdout(), out, func(w io.Writer) error {
				fmt.Fprintln(w, out.SQL)
				writeWarnings(w, out.Warnings)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&suggest, "suggest", false, "join referencing tables too, with their columns")
	cmd.Flags().BoolVar(&columns, "columns", false, "project joined columns as <table>_<column>")
	cmd.Flags().StringVar(&merge, "merge", "", "carry the select list and trailing clauses of this query over")
	return cmd
}

type normalizeOutput struct {
	SQL      string           `json:"sql"`
	Records  []map[string]any `json:"records"`
	Warnings []string         `json:"warnings,omitempty"`
}

func newNormalizeCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "normalize <table>",
		Short: "Show table rows with their foreign keys resolved to related entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			view := e.NormalizedTable(ctx, args[0], limit)
			out := normalizeOutput{
				SQL:      view.SQL,
				Records:  normalizer.FormatRelated(view.Records),
				Warnings: view.Warnings,
			}

			return a.render(cmd.OutOrStdout(), out, func(w io.Writer) error {
				heading.Fprintln(w, "SQL:")
				fmt.Fprintln(w, out.SQL)
				fmt.Fprintln(w)
				if len(out.Records) == 0 {
					fmt.Fprintln(w, view.Result.Report)
				} else if err := writeYAML(w, out.Records); err != nil {
					return err
				}
				writeWarnings(w, out.Warnings)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (default from config)")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var noJoins bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question in plain language; a language model writes the SQL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := llm.New(a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			asst := assistant.New(e, svc, a.logger, assistant.WithJoinEnrichment(!noJoins))
			answer, err := asst.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			return a.render(cmd.OutOrStdout(), answer, func(w io.Writer) error {
				if answer.Note != "" {
					heading.Fprintln(w, "Generated SQL:")
					fmt.Fprintln(w, answer.GeneratedSQL)
					warning.Fprintln(w, answer.Note)
					fmt.Fprintln(w)
				}
				writeResult(w, answer.Result)
				if len(answer.Records) > 0 {
					fmt.Fprintln(w)
					heading.Fprintln(w, "Related data:")
					return writeYAML(w, normalizer.FormatRelated(answer.Records))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noJoins, "no-joins", false, "run single-table queries as written instead of joining related tables")
	return cmd
}
