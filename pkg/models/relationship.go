package models

import (
	"fmt"
	"strings"
)

// Confidence ranks how a relationship was established.
type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceExplicit
)

// Rank orders confidences: explicit 4, high 3, medium 2, low 1.
func (c Confidence) Rank() int { return int(c) }

func (c Confidence) String() string {
	switch c {
	case ConfidenceExplicit:
		return "explicit"
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	}
	return "unknown"
}

// ParseConfidence reads a confidence by name, case-insensitively.
func ParseConfidence(name string) (Confidence, error) {
	for _, c := range []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceExplicit} {
		if strings.EqualFold(name, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown confidence %q", name)
}

// MarshalText renders the confidence by name.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Direction is relative to the table a relationship was requested for.
type Direction int

const (
	// Outgoing: the table holds the foreign-key column.
	Outgoing Direction = iota
	// Incoming: another table references this one.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// MarshalText renders the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Relationship links SourceTable.SourceColumn to TargetTable.TargetColumn.
// The source always holds the referencing column, regardless of Direction.
type Relationship struct {
	SourceTable  string     `json:"source_table"`
	SourceColumn string     `json:"source_column"`
	TargetTable  string     `json:"target_table"`
	TargetColumn string     `json:"target_column"`
	Confidence   Confidence `json:"confidence"`
	Direction    Direction  `json:"direction"`
	Rule         string     `json:"rule,omitempty"`
}

// Key identifies a relationship by (table, column, target) for deduplication.
func (r Relationship) Key() string {
	return r.SourceTable + "." + r.SourceColumn + "->" + r.TargetTable
}

// Other returns the table on the far side relative to table.
func (r Relationship) Other(table string) string {
	if r.SourceTable == table {
		return r.TargetTable
	}
	return r.SourceTable
}

// Reversed returns the incoming mirror of an outgoing relationship.
func (r Relationship) Reversed() Relationship {
	r.Direction = Incoming
	return r
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s (%s)", r.SourceTable, r.SourceColumn, r.TargetTable, r.TargetColumn, r.Confidence)
}
