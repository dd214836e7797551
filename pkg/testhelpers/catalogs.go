package testhelpers

import "github.com/ekaya-inc/ekaya-querykit/pkg/models"

// HRTables mirrors HRSchema as introspected tables, in the order the
// adapters enumerate them.
func HRTables() []models.TableInfo {
	return []models.TableInfo{
		{
			Name: "departments",
			Columns: []models.ColumnInfo{
				{Name: "id", Type: "INTEGER"},
				{Name: "dept_name", Type: "VARCHAR(100)"},
				{Name: "location", Type: "VARCHAR(100)", Nullable: true},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []models.ForeignKey{},
		},
		{
			Name: "employees",
			Columns: []models.ColumnInfo{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR(100)"},
				{Name: "job_title", Type: "VARCHAR(100)", Nullable: true},
				{Name: "salary", Type: "INTEGER", Nullable: true},
				{Name: "department_id", Type: "INTEGER", Nullable: true},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []models.ForeignKey{
				{LocalColumns: []string{"department_id"}, ReferredTable: "departments", ReferredColumns: []string{"id"}},
			},
		},
	}
}

// StoreTables is a schema without declared foreign keys, exercising the
// naming heuristics. shipments shares region with orders.
func StoreTables() []models.TableInfo {
	col := func(name string) models.ColumnInfo {
		return models.ColumnInfo{Name: name, Type: "INTEGER", Nullable: true}
	}
	return []models.TableInfo{
		{
			Name:        "customers",
			Columns:     []models.ColumnInfo{col("id"), col("full_name"), col("email"), col("created_at")},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:        "categories",
			Columns:     []models.ColumnInfo{col("category_code"), col("title")},
			PrimaryKeys: []string{"category_code"},
		},
		{
			Name:        "products",
			Columns:     []models.ColumnInfo{col("id"), col("title"), col("category_code"), col("sku")},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:        "orders",
			Columns:     []models.ColumnInfo{col("id"), col("customer_id"), col("region"), col("created_at")},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:        "order_items",
			Columns:     []models.ColumnInfo{col("id"), col("order_id"), col("products"), col("quantity")},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:        "shipments",
			Columns:     []models.ColumnInfo{col("id"), col("carrier"), col("region")},
			PrimaryKeys: []string{"id"},
		},
		{
			Name:        "carriers",
			Columns:     []models.ColumnInfo{col("id"), col("carrier_name")},
			PrimaryKeys: []string{"id"},
		},
	}
}
