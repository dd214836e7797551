package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-querykit/pkg/models"
	"github.com/ekaya-inc/ekaya-querykit/pkg/schema"
	"github.com/ekaya-inc/ekaya-querykit/pkg/testhelpers"
)

func hrMatcher() *Matcher {
	return New(schema.NewCatalog(testhelpers.HRTables()))
}

func tablesCatalog(names ...string) *schema.Catalog {
	tables := make([]models.TableInfo, len(names))
	for i, n := range names {
		tables[i] = models.TableInfo{Name: n, Columns: []models.ColumnInfo{{Name: "id"}}}
	}
	return schema.NewCatalog(tables)
}

func TestResolveTable_ExactForEveryTable(t *testing.T) {
	for _, cat := range []*schema.Catalog{
		schema.NewCatalog(testhelpers.HRTables()),
		schema.NewCatalog(testhelpers.StoreTables()),
	} {
		m := New(cat)
		for _, name := range cat.Tables() {
			match, ok := m.MatchTable(name)
			require.True(t, ok, name)
			assert.Equal(t, name, match.Name)
			assert.Equal(t, MethodExact, match.Method)
		}
	}
}

func TestResolveTable_PluralSuffix(t *testing.T) {
	m := hrMatcher()
	for _, name := range []string{"employees", "departments"} {
		got, ok := m.ResolveTable(name + "s")
		require.True(t, ok)
		assert.Equal(t, name, got)
	}
}

func TestResolveTable(t *testing.T) {
	tests := []struct {
		name      string
		tables    []string
		candidate string
		want      string
		method    Method
		ok        bool
	}{
		{"case-insensitive", []string{"employees"}, "EMPLOYEES", "employees", MethodCaseInsensitive, true},
		{"singular to plural", []string{"departments", "employees"}, "employee", "employees", MethodInflection, true},
		{"plural to singular", []string{"employee"}, "employees", "employee", MethodInflection, true},
		{"y to ies", []string{"orders", "categories"}, "category", "categories", MethodInflection, true},
		{"ies to y", []string{"category"}, "Categories", "category", MethodInflection, true},
		{"es removal", []string{"box"}, "boxes", "box", MethodInflection, true},
		{"irregular plural", []string{"people"}, "person", "people", MethodInflection, true},
		{"irregular singular", []string{"child"}, "children", "child", MethodInflection, true},
		{"typo within threshold", []string{"departments", "employees"}, "employe", "employees", MethodEditDistance, true},
		{"transposition", []string{"departments", "employees"}, "depratments", "departments", MethodEditDistance, true},
		{"short abbreviation rejected", []string{"departments", "employees"}, "emp", "", 0, false},
		{"far name rejected", []string{"departments", "employees"}, "xyz_does_not_exist", "", 0, false},
		{"empty candidate", []string{"employees"}, "", "", 0, false},
		{"tie keeps enumeration order", []string{"cart", "card"}, "carx", "cart", MethodEditDistance, true},
		{"tie keeps enumeration order reversed", []string{"card", "cart"}, "carx", "card", MethodEditDistance, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tablesCatalog(tt.tables...))
			match, ok := m.MatchTable(tt.candidate)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.want, match.Name)
			assert.Equal(t, tt.method, match.Method)
		})
	}
}

func TestResolveTable_ExactBeatsInflection(t *testing.T) {
	m := New(tablesCatalog("user", "users"))
	got, ok := m.ResolveTable("users")
	require.True(t, ok)
	assert.Equal(t, "users", got)
}

func TestResolveColumn(t *testing.T) {
	m := hrMatcher()

	tests := []struct {
		table     string
		candidate string
		want      string
		ok        bool
	}{
		{"employees", "name", "name", true},
		{"employees", "Name", "name", true},
		{"employees", "salry", "salary", true},
		{"employees", "job_titles", "job_title", true},
		{"employees", "department", "department_id", true},
		{"employees", "employee_name", "", false},
		{"departments", "dept_name", "dept_name", true},
		{"departments", "locations", "location", true},
		{"missing", "name", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.table+"."+tt.candidate, func(t *testing.T) {
			got, ok := m.ResolveColumn(tt.table, tt.candidate)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"employe", "employees", 2},
		{"emp", "employees", 6},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a), "symmetric")
	}
}

func TestAccept(t *testing.T) {
	assert.True(t, Accept(0, 5))
	assert.True(t, Accept(3, 3))
	assert.True(t, Accept(5, 20), "25% of length")
	assert.False(t, Accept(6, 20), "30% is not below the ratio")
	assert.False(t, Accept(4, 3))
	assert.False(t, Accept(1, 0))
	assert.False(t, Accept(-1, 5))
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "exact", MethodExact.String())
	assert.Equal(t, "edit distance", MethodEditDistance.String())
}
