package rewriter

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-querykit/pkg/matcher"
	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/relationships"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func newTestRewriter(t *testing.T, tables []models.TableInfo, opts ...Option) *Rewriter {
	t.Helper()
	cat := schema.NewCatalog(tables)
	return New(relationships.Discover(cat), matcher.New(cat), zaptest.NewLogger(t), opts...)
}

func TestEdits_ApplyInReverseOrder(t *testing.T) {
	e := newEdits()
	e.replace(0, 3, "abcdef")
	e.replace(4, 5, "Z")
	e.replace(0, 3, "ignored")

	if got := e.apply("xyz q r"); got != "abcdef Z r" {
		t.Errorf("apply() = %q", got)
	}
}

func TestWarnings_Deduplicated(t *testing.T) {
	w := &warnings{}
	w.add("Table '%s' was replaced with '%s'", "a", "b")
	w.add("Table '%s' was replaced with '%s'", "a", "b")
	w.add("other")

	if len(w.list) != 2 {
		t.Fatalf("expected 2 warnings, got %v", w.list)
	}
}

func TestIdent(t *testing.T) {
	r := newTestRewriter(t, testhelpers.HRTables())
	brackets := newTestRewriter(t, testhelpers.HRTables(), WithQuoter(func(s string) string { return "[" + s + "]" }))

	tests := []struct {
		name string
		want string
		r    *Rewriter
	}{
		{"employees", "employees", r},
		{"order", `"order"`, r},
		{"OrderLines", `"OrderLines"`, r},
		{"order lines", "[order lines]", brackets},
	}
	for _, tt := range tests {
		if got := tt.r.ident(tt.name); got != tt.want {
			t.Errorf("ident(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
