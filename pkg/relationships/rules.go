package relationships

import (
	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
)

// genericReferenceColumns name an owning row without naming its table.
var genericReferenceColumns = []string{
	"parent_id", "child_id", "foreign_id", "related_id", "parent",
	"owner_id", "owner", "user_id", "user",
	"created_by", "updated_by", "assigned_to", "manager_id", "author_id",
}

// sharedColumnExclusions are too common to signal a relationship.
var sharedColumnExclusions = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// pair is the input every rule sees: a source table that may hold a
// reference column and a candidate target table.
type pair struct {
	source *models.TableInfo
	target *models.TableInfo
	// targetPK is the target's first primary-key column, or "id".
	targetPK string
}

func (p pair) relationship(column, targetColumn string, confidence models.Confidence, rule string) models.Relationship {
	return models.Relationship{
		SourceTable:  p.source.Name,
		SourceColumn: column,
		TargetTable:  p.target.Name,
		TargetColumn: targetColumn,
		Confidence:   confidence,
		Direction:    models.Outgoing,
		Rule:         rule,
	}
}

// rule inspects a pair and returns what it found. A terminal rule that
// matches stops evaluation of the remaining rules for the pair.
type rule struct {
	name     string
	terminal bool
	match    func(p pair) []models.Relationship
}

// columnRule matches a single source column derived from the pair.
func columnRule(name string, confidence models.Confidence, column func(p pair) string) rule {
	return rule{
		name:     name,
		terminal: true,
		match: func(p pair) []models.Relationship {
			col := column(p)
			if col == "" || !p.source.HasColumn(col) {
				return nil
			}
			return []models.Relationship{p.relationship(col, p.targetPK, confidence, name)}
		},
	}
}

// heuristicRules are evaluated in order for every ordered pair of tables.
var heuristicRules = []rule{
	columnRule("target_id", models.ConfidenceHigh, func(p pair) string {
		return p.target.Name + "_id"
	}),
	columnRule("singular_target_id", models.ConfidenceHigh, func(p pair) string {
		return matcher.Singular(p.target.Name) + "_id"
	}),
	columnRule("target_name", models.ConfidenceMedium, func(p pair) string {
		return p.target.Name
	}),
	columnRule("singular_target_name", models.ConfidenceMedium, func(p pair) string {
		return matcher.Singular(p.target.Name)
	}),
	columnRule("target_primary_key", models.ConfidenceMedium, func(p pair) string {
		if p.targetPK == "id" {
			return ""
		}
		return p.targetPK
	}),
	{
		name: "generic_reference",
		match: func(p pair) []models.Relationship {
			if !p.target.HasColumn(p.targetPK) {
				return nil
			}
			var out []models.Relationship
			for _, col := range genericReferenceColumns {
				if p.source.HasColumn(col) {
					out = append(out, p.relationship(col, p.targetPK, models.ConfidenceLow, "generic_reference"))
				}
			}
			return out
		},
	},
	{
		name: "shared_column",
		match: func(p pair) []models.Relationship {
			var out []models.Relationship
			for _, col := range p.source.Columns {
				if sharedColumnExclusions[col.Name] || !p.target.HasColumn(col.Name) {
					continue
				}
				out = append(out, p.relationship(col.Name, col.Name, models.ConfidenceLow, "shared_column"))
			}
			return out
		},
	},
}

// inferPair runs the rule list for one ordered pair.
func inferPair(p pair) []models.Relationship {
	var out []models.Relationship
	for _, r := range heuristicRules {
		found := r.match(p)
		if len(found) == 0 {
			continue
		}
		out = append(out, found...)
		if r.terminal {
			break
		}
	}
	return out
}
