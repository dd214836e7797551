// Package normalizer resolves foreign-key values in result rows into
// labelled related entities.
package normalizer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/logging"
	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/metrics"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	sqlparse "github.com/ekaya-inc/ekaya-querykit/pkg/sql"
)

// DefaultRelatedLimit caps each related collection.
const DefaultRelatedLimit = 5

// Conn is the part of a datasource connection lookups need.
type Conn interface {
	datasource.QueryExecutor
	datasource.Dialect
}

// Normalizer enriches rows of one catalog snapshot.
type Normalizer struct {
	conn         Conn
	catalog      *schema.Catalog
	graph        *relationships.Graph
	matcher      *matcher.Matcher
	metrics      *metrics.Metrics
	relatedLimit int
	logger       *zap.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRelatedLimit overrides DefaultRelatedLimit. Non-positive values are ignored.
func WithRelatedLimit(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.relatedLimit = n
		}
	}
}

// WithMetrics counts lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(nz *Normalizer) {
		nz.metrics = m
	}
}

func New(conn Conn, graph *relationships.Graph, m *matcher.Matcher, logger *zap.Logger, opts ...Option) *Normalizer {
	nz := &Normalizer{
		conn:         conn,
		catalog:      graph.Catalog(),
		graph:        graph,
		matcher:      m,
		relatedLimit: DefaultRelatedLimit,
		logger:       logger.Named("normalizer"),
	}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// lookupKey identifies one lookup so repeated values are fetched once per call.
type lookupKey struct {
	table, column, value string
}

// ResolveForeignKeys returns one record per row. For every outgoing
// relationship of mainTable whose column is set in the row, the referenced
// row is attached under the column name without its _id suffix, with a flat
// <column>_display label. For every incoming relationship, up to the related
// limit of referencing rows are added to RelatedCollections, keyed by the
// referencing table and capped at the limit in total. Failed lookups
// are logged and skipped; the input rows are never modified.
func (nz *Normalizer) ResolveForeignKeys(ctx context.Context, rows []map[string]any, mainTable string) []models.NormalizedRecord {
	records := make([]models.NormalizedRecord, 0, len(rows))
	table, ok := nz.matcher.ResolveTable(mainTable)
	if !ok {
		nz.logger.Debug("Table not in catalog, rows returned unenriched", zap.String("table", mainTable))
		for _, row := range rows {
			records = append(records, models.NewNormalizedRecord(nz.columnOrder("", row), row))
		}
		return records
	}

	outgoing := nz.graph.RelationshipsFor(table)
	incoming := nz.graph.Incoming(table)
	single := make(map[lookupKey]*models.RelatedEntity)
	many := make(map[lookupKey][]models.RelatedEntity)

	for _, row := range rows {
		rec := models.NewNormalizedRecord(nz.columnOrder(table, row), row)

		for _, rel := range outgoing {
			v, present := row[rel.SourceColumn]
			if !present || v == nil {
				continue
			}
			if _, attached := rec.References[models.ReferenceKey(rel.SourceColumn)]; attached {
				continue
			}

			key := lookupKey{rel.TargetTable, rel.TargetColumn, models.FormatValue(v)}
			entity, cached := single[key]
			if !cached {
				entity = nz.lookupOne(ctx, rel.TargetTable, rel.TargetColumn, v)
				single[key] = entity
			}
			if entity != nil {
				rec.Attach(rel.SourceColumn, entity)
			}
		}

		for _, rel := range incoming {
			v, present := row[rel.TargetColumn]
			if !present || v == nil {
				continue
			}

			key := lookupKey{rel.SourceTable, rel.SourceColumn, models.FormatValue(v)}
			related, cached := many[key]
			if !cached {
				related = nz.lookupMany(ctx, rel.SourceTable, rel.SourceColumn, v)
				many[key] = related
			}
			if len(related) > 0 {
				rec.RelatedCollections[rel.SourceTable] = mergeRelated(rec.RelatedCollections[rel.SourceTable], related, nz.relatedLimit)
			}
		}

		records = append(records, rec)
	}
	return records
}

func (nz *Normalizer) lookupOne(ctx context.Context, table, column string, value any) *models.RelatedEntity {
	entities := nz.lookup(ctx, table, column, value, 1)
	if len(entities) == 0 {
		return nil
	}
	entity := entities[0]
	entity.ID = value
	return &entity
}

func (nz *Normalizer) lookupMany(ctx context.Context, table, column string, value any) []models.RelatedEntity {
	return nz.lookup(ctx, table, column, value, nz.relatedLimit)
}

// lookup fetches up to limit rows of table where column equals value.
func (nz *Normalizer) lookup(ctx context.Context, table, column string, value any, limit int) []models.RelatedEntity {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		sqlparse.QuoteIfNeeded(table, nz.conn.QuoteIdentifier),
		sqlparse.QuoteIfNeeded(column, nz.conn.QuoteIdentifier),
		nz.conn.Placeholder(1))
	query = nz.conn.LimitQuery(query, limit)

	res, err := nz.conn.QueryWithParams(ctx, query, []any{value})
	if err != nil {
		nz.metrics.IncLookup("error")
		lookupErr := &apperrors.NormalizationError{Table: table, Column: column, Err: err}
		nz.logger.Debug("Related row lookup failed",
			zap.String("table", table),
			zap.String("column", column),
			zap.String("error", logging.SanitizeError(lookupErr)))
		return nil
	}
	nz.metrics.IncLookup("ok")

	pk := column
	if keys := nz.catalog.PrimaryKey(table); len(keys) > 0 {
		pk = keys[0]
	}
	columns := res.ColumnNames()

	entities := make([]models.RelatedEntity, 0, len(res.Rows))
	for _, row := range res.Rows {
		entities = append(entities, models.RelatedEntity{
			ID:           row[pk],
			Table:        table,
			DisplayLabel: PickDisplayField(table, columns, row),
			Fields:       row,
		})
	}
	return entities
}

// columnOrder lists the row's keys: catalog columns of table first, in
// catalog order, then any others sorted.
func (nz *Normalizer) columnOrder(table string, row map[string]any) []string {
	seen := make(map[string]bool, len(row))
	out := make([]string, 0, len(row))
	for _, col := range nz.catalog.Columns(table) {
		if _, ok := row[col]; ok {
			seen[col] = true
			out = append(out, col)
		}
	}
	var rest []string
	for col := range row {
		if !seen[col] {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// mergeRelated adds entities to a collection that another relationship from
// the same table may already have filled, skipping rows already present and
// stopping at limit.
func mergeRelated(collection, entities []models.RelatedEntity, limit int) []models.RelatedEntity {
	seen := make(map[string]bool, len(collection))
	for _, e := range collection {
		if e.ID != nil {
			seen[models.FormatValue(e.ID)] = true
		}
	}
	for _, e := range entities {
		if len(collection) >= limit {
			break
		}
		if e.ID != nil {
			id := models.FormatValue(e.ID)
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		collection = append(collection, e)
	}
	return collection
}
