package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

func newAdaptersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List supported datasource types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapters := datasource.RegisteredAdapters()
			return a.render(cmd.OutOrStdout(), adapters, func(w io.Writer) error {
				for _, info := range adapters {
					fmt.Fprintf(w, "%-10s %s\n", info.Type, info.DisplayName)
				}
				return nil
			})
		},
	}
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List introspected tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			cat := e.Catalog()
			tables := make([]models.TableInfo, 0, cat.Len())
			for _, name := range cat.Tables() {
				t, _ := cat.Table(name)
				tables = append(tables, *t)
			}

			return a.render(cmd.OutOrStdout(), tables, func(w io.Writer) error {
				for _, t := range tables {
					heading.Fprintln(w, t.Name)
					for _, col := range t.Columns {
						marker := ""
						if t.IsPrimaryKey(col.Name) {
							marker = " [PK]"
						}
						fmt.Fprintf(w, "  %s %s%s\n", col.Name, col.Type, marker)
					}
				}
				return nil
			})
		},
	}
}

func newRelationshipsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relationships [table]",
		Short: "Show explicit and inferred relationships",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			var rels []models.Relationship
			if len(args) == 1 {
				out, err := e.RelationshipsFor(args[0])
				if err != nil {
					return err
				}
				in, err := e.Incoming(args[0])
				if err != nil {
					return err
				}
				rels = append(out, in...)
			} else {
				rels = e.Relationships()
			}

			return a.render(cmd.OutOrStdout(), rels, func(w io.Writer) error {
				if len(rels) == 0 {
					fmt.Fprintln(w, "No relationships found.")
				}
				for _, r := range rels {
					fmt.Fprintf(w, "%s.%s -> %s.%s (%s)\n",
						r.SourceTable, r.SourceColumn, r.TargetTable, r.TargetColumn, r.Confidence)
				}
				return nil
			})
		},
	}
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the schema description given to language models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			doc := map[string]string{"description": e.Describe(), "join_hints": e.JoinHints()}
			return a.render(cmd.OutOrStdout(), doc, func(w io.Writer) error {
				fmt.Fprintln(w, strings.TrimSpace(doc["description"]))
				fmt.Fprintln(w)
				fmt.Fprintln(w, doc["join_hints"])
				return nil
			})
		},
	}
}
