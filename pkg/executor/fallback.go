package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// fallbackJoin is one LEFT JOIN of a fallback query and how to read its
// projected columns back out of a row.
type fallbackJoin struct {
	rel         models.Relationship
	table       string
	alias       string
	localCol    string // on the main table
	foreignCol  string // on the joined table
	pk          string
	descriptive []string
}

func (j fallbackJoin) outgoing() bool { return j.rel.Direction == models.Outgoing }

func (j fallbackJoin) output(col string) string { return j.alias + "_" + col }

// fallbackPlan is a fallback query with the metadata to decode its rows.
type fallbackPlan struct {
	main  string
	sql   string
	joins []fallbackJoin
}

// fallback runs the single recovery query for a failed statement.
func (e *Executor) fallback(ctx context.Context, original string, execErr error) (*models.QueryResult, bool) {
	plan, ok := e.planFallback(original, execErr)
	if !ok {
		return nil, false
	}

	res, err := e.conn.Query(ctx, plan.sql)
	if err != nil {
		e.metrics.IncFallback("failed")
		e.logger.Debug("Fallback query failed",
			zap.String("query", logging.SanitizeQuery(plan.sql)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, false
	}

	detail := e.columnDetail(plan.main, execErr)
	result := &models.QueryResult{
		SQL:      plan.sql,
		Columns:  res.ColumnNames(),
		Rows:     res.Rows,
		Fallback: true,
	}
	if len(res.Rows) == 0 {
		e.metrics.IncFallback("empty")
		result.Report = fmt.Sprintf("Fallback query executed successfully, but no rows returned.\n\nFallback query: %s%s", plan.sql, detail)
		return result, true
	}

	e.metrics.IncFallback("rows")
	var b strings.Builder
	fmt.Fprintf(&b, "Fallback query executed instead of the original query.\n\nFallback query: %s%s\n\n", plan.sql, detail)
	b.WriteString(models.FormatReport(result.Columns, res.Rows))
	if len(plan.joins) > 0 {
		b.WriteString("\n\nForeign Key Relationships:")
		for _, j := range plan.joins {
			fields := strings.Join(j.descriptive, ", ")
			if fields == "" {
				fields = "No descriptive columns found"
			}
			if j.outgoing() {
				fmt.Fprintf(&b, "\n- %s.%s → %s.%s (Using descriptive fields: %s)", plan.main, j.localCol, j.table, j.foreignCol, fields)
			} else {
				fmt.Fprintf(&b, "\n- %s.%s → %s.%s (Using descriptive fields: %s)", j.table, j.foreignCol, plan.main, j.localCol, fields)
			}
		}
	}
	result.Report = b.String()
	result.Related = e.collapse(plan, res.Rows)
	return result, true
}

// planFallback builds SELECT <main columns> [+ LEFT JOINs] FROM <main> LIMIT n
// from the tables named in the original text. Joins are added only for a
// single-table SELECT, one per outgoing and incoming relationship at or
// above the configured minimum confidence.
func (e *Executor) planFallback(original string, execErr error) (fallbackPlan, bool) {
	stmt := sqlparse.ParseStatement(original)

	var names []string
	for _, t := range stmt.Tables {
		names = append(names, t.Name)
	}
	if missing, ok := unknownTable(execErr); ok {
		names = append(names, missing)
	}

	var tables []string
	seen := make(map[string]bool)
	for _, name := range names {
		resolved, ok := e.matcher.ResolveTable(name)
		if ok && !seen[resolved] {
			seen[resolved] = true
			tables = append(tables, resolved)
		}
	}
	if len(tables) == 0 {
		return fallbackPlan{}, false
	}

	plan := fallbackPlan{main: tables[0]}
	if stmt.Kind == sqlparse.KindSelect && len(tables) == 1 {
		plan.joins = e.fallbackJoins(plan.main)
	}

	main := e.ident(plan.main)
	var columns []string
	for _, col := range e.catalog.Columns(plan.main) {
		columns = append(columns, main+"."+e.ident(col))
	}
	if len(columns) == 0 {
		columns = []string{main + ".*"}
	}

	var joins []string
	for _, j := range plan.joins {
		if j.pk != "" {
			columns = append(columns, fmt.Sprintf("%s.%s AS %s", j.alias, e.ident(j.pk), e.ident(j.output(j.pk))))
		}
		for _, col := range j.descriptive {
			if col == j.pk {
				continue
			}
			columns = append(columns, fmt.Sprintf("%s.%s AS %s", j.alias, e.ident(col), e.ident(j.output(col))))
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			e.ident(j.table), j.alias, main, e.ident(j.localCol), j.alias, e.ident(j.foreignCol)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), main)
	if len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}
	plan.sql = e.conn.LimitQuery(query, e.fallbackLimit)
	return plan, true
}

func (e *Executor) fallbackJoins(main string) []fallbackJoin {
	var joins []fallbackJoin
	used := make(map[string]int)
	add := func(rel models.Relationship, prefix, table, local, foreign string) {
		if rel.Confidence < e.minJoin {
			return
		}
		alias := prefix + table
		if n := used[alias]; n > 0 {
			used[alias]++
			alias = fmt.Sprintf("%s_%d", alias, n)
		} else {
			used[alias] = 1
		}
		j := fallbackJoin{
			rel:         rel,
			table:       table,
			alias:       alias,
			localCol:    local,
			foreignCol:  foreign,
			descriptive: DescriptiveColumns(e.catalog.Columns(table)),
		}
		if pk := e.catalog.PrimaryKey(table); len(pk) > 0 {
			j.pk = pk[0]
		}
		joins = append(joins, j)
	}

	for _, rel := range e.graph.RelationshipsFor(main) {
		add(rel, "fk_out_", rel.TargetTable, rel.SourceColumn, rel.TargetColumn)
	}
	for _, rel := range e.graph.Incoming(main) {
		add(rel, "fk_in_", rel.SourceTable, rel.TargetColumn, rel.SourceColumn)
	}
	return joins
}

// collapse turns fallback rows into records: main-table values plus one
// related entity per outgoing join and a collection entry per incoming one.
func (e *Executor) collapse(plan fallbackPlan, rows []map[string]any) []models.NormalizedRecord {
	mainCols := e.catalog.Columns(plan.main)
	records := make([]models.NormalizedRecord, 0, len(rows))

	for _, row := range rows {
		values := make(map[string]any, len(mainCols))
		for _, col := range mainCols {
			values[col] = row[col]
		}
		rec := models.NewNormalizedRecord(mainCols, values)

		for _, j := range plan.joins {
			fields := make(map[string]any)
			var parts []string
			if j.pk != "" {
				fields[j.pk] = row[j.output(j.pk)]
			}
			for _, col := range j.descriptive {
				v := row[j.output(col)]
				fields[col] = v
				if v != nil && models.FormatValue(v) != "" {
					parts = append(parts, models.FormatValue(v))
				}
			}
			if len(parts) == 0 {
				continue
			}

			entity := models.RelatedEntity{
				Table:        j.table,
				DisplayLabel: strings.Join(parts, " - "),
				Fields:       fields,
			}
			if j.pk != "" {
				entity.ID = fields[j.pk]
			}
			if j.outgoing() {
				entity.ID = values[j.localCol]
				rec.AttachAs(j.table, j.localCol, &entity)
			} else {
				rec.RelatedCollections[j.table] = append(rec.RelatedCollections[j.table], entity)
			}
		}
		records = append(records, rec)
	}
	return records
}

var descriptivePattern = regexp.MustCompile(`(?i)name|title|label|description|summary|text|content`)

// DescriptiveColumns picks the columns that describe a row to a person:
// those named like name/title/label/description/summary/text/content; else
// every column that is neither a key, a timestamp nor an is_ flag; else the first
// column other than id.
func DescriptiveColumns(columns []string) []string {
	var out []string
	for _, col := range columns {
		if !(models.IsIdentifierColumn(col) || models.IsTimestampColumn(col)) && descriptivePattern.MatchString(col) {
			out = append(out, col)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, col := range columns {
		if !(models.IsIdentifierColumn(col) || models.IsTimestampColumn(col)) && !strings.HasPrefix(strings.ToLower(col), "is_") {
			out = append(out, col)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, col := range columns {
		if !strings.EqualFold(col, "id") {
			return []string{col}
		}
	}
	return nil
}

func (e *Executor) ident(name string) string {
	return sqlparse.QuoteIfNeeded(name, e.conn.QuoteIdentifier)
}
