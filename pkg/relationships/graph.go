// Package relationships infers the join topology of a catalog from declared
// foreign keys and column naming conventions.
package relationships

import (
	"sort"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
)

// Graph holds every relationship derived from one catalog snapshot.
// It is immutable and safe for concurrent use.
type Graph struct {
	catalog  *schema.Catalog
	all      []models.Relationship
	outgoing map[string][]models.Relationship
	incoming map[string][]models.Relationship
}

// Discover derives relationships from cat. Declared foreign keys come first
// with explicit confidence; heuristic matches for the same (table, column,
// target) are dropped. Relationships to tables outside the catalog are ignored.
func Discover(cat *schema.Catalog) *Graph {
	g := &Graph{
		catalog:  cat,
		outgoing: make(map[string][]models.Relationship),
		incoming: make(map[string][]models.Relationship),
	}
	seen := make(map[string]bool)

	add := func(r models.Relationship) {
		if seen[r.Key()] {
			return
		}
		seen[r.Key()] = true
		g.all = append(g.all, r)
	}

	names := cat.Tables()
	for _, name := range names {
		for _, fk := range cat.ForeignKeys(name) {
			if len(fk.LocalColumns) == 0 || len(fk.ReferredColumns) == 0 || !cat.HasTable(fk.ReferredTable) {
				continue
			}
			// Composite keys are represented by their first column pair.
			add(models.Relationship{
				SourceTable:  name,
				SourceColumn: fk.LocalColumns[0],
				TargetTable:  fk.ReferredTable,
				TargetColumn: fk.ReferredColumns[0],
				Confidence:   models.ConfidenceExplicit,
				Direction:    models.Outgoing,
				Rule:         "foreign_key",
			})
		}
	}

	for _, source := range names {
		src, _ := cat.Table(source)
		for _, target := range names {
			if source == target {
				continue
			}
			tgt, _ := cat.Table(target)
			for _, r := range inferPair(pair{source: src, target: tgt, targetPK: tgt.PrimaryKey()}) {
				add(r)
			}
		}
	}

	for _, r := range g.all {
		g.outgoing[r.SourceTable] = append(g.outgoing[r.SourceTable], r)
		g.incoming[r.TargetTable] = append(g.incoming[r.TargetTable], r.Reversed())
	}
	for table := range g.outgoing {
		sortByRank(g.outgoing[table])
	}
	for table := range g.incoming {
		sortByRank(g.incoming[table])
	}
	return g
}

func sortByRank(rels []models.Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].Confidence.Rank() > rels[j].Confidence.Rank()
	})
}

// Catalog returns the snapshot the graph was derived from.
func (g *Graph) Catalog() *schema.Catalog {
	return g.catalog
}

// RelationshipsFor returns relationships where table holds the reference
// column, strongest first; ties keep discovery order.
func (g *Graph) RelationshipsFor(table string) []models.Relationship {
	return clone(g.outgoing[table])
}

// Incoming returns relationships from other tables that reference table,
// strongest first. Each carries Direction Incoming.
func (g *Graph) Incoming(table string) []models.Relationship {
	return clone(g.incoming[table])
}

// All returns every outgoing relationship in discovery order.
func (g *Graph) All() []models.Relationship {
	return clone(g.all)
}

// Between returns the strongest relationship linking a and b, looking at
// a's outgoing relationships first.
func (g *Graph) Between(a, b string) (models.Relationship, bool) {
	for _, r := range g.outgoing[a] {
		if r.TargetTable == b {
			return r, true
		}
	}
	for _, r := range g.outgoing[b] {
		if r.TargetTable == a {
			return r, true
		}
	}
	return models.Relationship{}, false
}

func clone(rels []models.Relationship) []models.Relationship {
	if len(rels) == 0 {
		return nil
	}
	out := make([]models.Relationship, len(rels))
	copy(out, rels)
	return out
}
