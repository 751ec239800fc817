package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/zvdy/dbpulse/src/models"
)

// Column maps a record field onto a typed SQL column
type Column struct {
	Name  string // SQL column
	Field string // record key
	Type  string // TEXT or REAL
}

// IndexDef is a secondary index created with the table
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableSchema describes an application table. The full record is kept as
// JSON in the data column; Columns are projections used for lookups.
type TableSchema struct {
	Name    string
	Columns []Column
	Indexes []IndexDef
}

// DefaultSchemas is the point-of-sale dataset the monitor observes
var DefaultSchemas = []TableSchema{
	{
		Name: "products",
		Columns: []Column{
			{"barcode", "barcode", "TEXT"},
			{"name", "name", "TEXT"},
			{"category", "category", "TEXT"},
			{"price", "price", "REAL"},
			{"stock", "stock", "REAL"},
			{"supplier_id", "supplierId", "TEXT"},
			{"created_at", "createdAt", "TEXT"},
		},
		Indexes: []IndexDef{{Name: "idx_products_barcode", Columns: []string{"barcode"}, Unique: true}},
	},
	{
		Name: "sales",
		Columns: []Column{
			{"customer_id", "customerId", "TEXT"},
			{"total", "total", "REAL"},
			{"payment_method", "paymentMethod", "TEXT"},
			{"status", "status", "TEXT"},
			{"date", "date", "TEXT"},
			{"created_at", "createdAt", "TEXT"},
		},
		Indexes: []IndexDef{{Name: "idx_sales_date", Columns: []string{"date"}}},
	},
	{
		Name: "sale_items",
		Columns: []Column{
			{"sale_id", "saleId", "TEXT"},
			{"product_id", "productId", "TEXT"},
			{"quantity", "quantity", "REAL"},
			{"price", "price", "REAL"},
			{"created_at", "createdAt", "TEXT"},
		},
	},
	{
		Name: "customers",
		Columns: []Column{
			{"name", "name", "TEXT"},
			{"phone", "phone", "TEXT"},
			{"email", "email", "TEXT"},
			{"debt", "debt", "REAL"},
			{"created_at", "createdAt", "TEXT"},
		},
	},
	{
		Name: "suppliers",
		Columns: []Column{
			{"name", "name", "TEXT"},
			{"phone", "phone", "TEXT"},
			{"created_at", "createdAt", "TEXT"},
		},
	},
	{
		Name: "stock_movements",
		Columns: []Column{
			{"product_id", "productId", "TEXT"},
			{"type", "type", "TEXT"},
			{"quantity", "quantity", "REAL"},
			{"date", "date", "TEXT"},
			{"created_at", "createdAt", "TEXT"},
		},
	},
}

// SchemasFor returns the default schemas of the named tables, in default
// order. An empty list selects all of them.
func SchemasFor(tables []string) ([]TableSchema, error) {
	if len(tables) == 0 {
		return DefaultSchemas, nil
	}
	set := newSchemaSet(DefaultSchemas)
	out := make([]TableSchema, 0, len(tables))
	for _, schema := range DefaultSchemas {
		if containsString(tables, schema.Name) {
			out = append(out, schema)
		}
	}
	for _, t := range tables {
		if _, ok := set[t]; !ok {
			return nil, fmt.Errorf("unknown table %q: %w", t, models.ErrTableNotFound)
		}
	}
	return out, nil
}

// schemaSet indexes schemas by table name
type schemaSet map[string]TableSchema

func newSchemaSet(schemas []TableSchema) schemaSet {
	set := make(schemaSet, len(schemas))
	for _, s := range schemas {
		set[s.Name] = s
	}
	return set
}

func (s schemaSet) names() []string {
	names := make([]string, 0, len(s))
	for _, schema := range DefaultSchemas {
		if _, ok := s[schema.Name]; ok {
			names = append(names, schema.Name)
		}
	}
	for name := range s {
		if !containsString(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// createTableSQL renders the DDL for a schema. realType is the driver's
// floating point type name.
func createTableSQL(schema TableSchema, realType string) []string {
	cols := []string{"id TEXT PRIMARY KEY"}
	for _, c := range schema.Columns {
		typ := c.Type
		if typ == "REAL" {
			typ = realType
		}
		cols = append(cols, pq.QuoteIdentifier(c.Name)+" "+typ)
	}
	cols = append(cols, "data TEXT NOT NULL")

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pq.QuoteIdentifier(schema.Name), strings.Join(cols, ", "))}

	for _, idx := range schema.Indexes {
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = pq.QuoteIdentifier(c)
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, pq.QuoteIdentifier(idx.Name), pq.QuoteIdentifier(schema.Name), strings.Join(quoted, ", ")))
	}
	return stmts
}

// prepareRecord copies rec, assigns an id if missing and returns the
// projected column values plus the JSON payload. Timestamps are stored as
// given: a record without createdAt keeps its own date fields as its age.
func prepareRecord(schema TableSchema, rec Record) (string, []interface{}, string, error) {
	out := make(Record, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	id := out.ID()
	if id == "" {
		id = uuid.NewString()
	}
	out["id"] = id

	values := make([]interface{}, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		values = append(values, columnValue(c, out[c.Field]))
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return "", nil, "", fmt.Errorf("encode record: %w", err)
	}
	return id, values, string(payload), nil
}

func columnValue(c Column, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if c.Type == "REAL" {
		if f, ok := FloatValue(v); ok {
			return f
		}
		return nil
	}
	return stringValue(v)
}

func decodeRecord(payload string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// FloatValue converts JSON-ish numeric values to float64
func FloatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
