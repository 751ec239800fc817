package analyzer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/models"
)

// QueryTemplate is a typical query the application issues against a table,
// with its relative frequency (0-100)
type QueryTemplate struct {
	Table     string
	SQL       string
	Frequency float64
}

// DefaultTemplates returns the access paths of the point-of-sale tables
func DefaultTemplates() []QueryTemplate {
	return []QueryTemplate{
		{"products", "SELECT * FROM products WHERE barcode = $1", 95},
		{"products", "SELECT * FROM products WHERE name ILIKE $1 ORDER BY name", 80},
		{"products", "SELECT * FROM products WHERE category = $1 AND stock > $2", 60},
		{"products", "SELECT * FROM products WHERE stock <= $1 ORDER BY stock", 40},
		{"sales", "SELECT * FROM sales WHERE date >= $1 AND date < $2 ORDER BY date DESC", 90},
		{"sales", "SELECT * FROM sales WHERE customer_id = $1 ORDER BY date DESC", 75},
		{"sales", "SELECT * FROM sales WHERE status = $1 AND payment_method = $2", 50},
		{"sale_items", "SELECT * FROM sale_items WHERE sale_id = $1", 95},
		{"sale_items", "SELECT * FROM sale_items WHERE product_id = $1", 70},
		{"customers", "SELECT * FROM customers WHERE name ILIKE $1 ORDER BY name", 80},
		{"customers", "SELECT * FROM customers WHERE phone = $1", 70},
		{"customers", "SELECT * FROM customers WHERE debt > $1 ORDER BY debt DESC", 60},
		{"suppliers", "SELECT * FROM suppliers WHERE name ILIKE $1", 40},
		{"stock_movements", "SELECT * FROM stock_movements WHERE product_id = $1 ORDER BY date DESC", 80},
		{"stock_movements", "SELECT * FROM stock_movements WHERE date >= $1", 50},
	}
}

// ParsedQuery is the access path extracted from one SQL statement
type ParsedQuery struct {
	Table            string
	QueryType        models.QueryType
	Columns          []string
	FilterConditions []string
	SortColumns      []string
}

// QueryPatternAnalyzer derives QueryPatterns from query templates and the
// indexes present in the store
type QueryPatternAnalyzer struct {
	store     db.Store
	log       *logrus.Logger
	random    Random
	templates []QueryTemplate

	mu    sync.Mutex
	cache map[string]*ParsedQuery
}

// NewQueryPatternAnalyzer creates a new QueryPatternAnalyzer instance
func NewQueryPatternAnalyzer(store db.Store, log *logrus.Logger, random Random, templates []QueryTemplate) *QueryPatternAnalyzer {
	if random == nil {
		random = DefaultRandom()
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &QueryPatternAnalyzer{
		store:     store,
		log:       log,
		random:    random,
		templates: templates,
		cache:     make(map[string]*ParsedQuery),
	}
}

// Patterns returns one QueryPattern per template whose table exists.
// Execution times are estimated: a pattern not covered by an existing index
// is assumed 2.5 times slower, plus up to 30ms of noise.
func (qa *QueryPatternAnalyzer) Patterns(ctx context.Context) ([]models.QueryPattern, error) {
	tables, err := qa.store.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	indexes := make(map[string][][]string)
	skipped := make(map[string]bool)
	patterns := make([]models.QueryPattern, 0, len(qa.templates))
	for _, tmpl := range qa.templates {
		if !present[tmpl.Table] {
			if !skipped[tmpl.Table] {
				qa.log.Warnf("Skipping query patterns for missing table %s", tmpl.Table)
				skipped[tmpl.Table] = true
			}
			continue
		}

		parsed, err := qa.Parse(tmpl.SQL)
		if err != nil {
			qa.log.Warnf("Skipping unparsable template for %s: %v", tmpl.Table, err)
			continue
		}

		existing, ok := indexes[tmpl.Table]
		if !ok {
			existing, err = qa.store.Indexes(ctx, tmpl.Table)
			if err != nil {
				qa.log.Warnf("Failed to read indexes of %s, assuming none: %v", tmpl.Table, err)
				existing = nil
			}
			indexes[tmpl.Table] = existing
		}

		base := 50 * (tmpl.Frequency / 100)
		if !covered(parsed.Columns, existing) {
			base *= 2.5
		}

		patterns = append(patterns, models.QueryPattern{
			Table:              tmpl.Table,
			Columns:            parsed.Columns,
			Frequency:          tmpl.Frequency,
			AvgExecutionTimeMs: base + uniform(qa.random, 0, 30),
			QueryType:          parsed.QueryType,
			FilterConditions:   parsed.FilterConditions,
			SortColumns:        parsed.SortColumns,
			Query:              tmpl.SQL,
		})
	}
	return patterns, nil
}

// covered reports whether some index leads with exactly the given columns,
// in any order
func covered(columns []string, indexes [][]string) bool {
	if len(columns) == 0 {
		return true
	}
	for _, idx := range indexes {
		if len(idx) < len(columns) {
			continue
		}
		lead := idx[:len(columns)]
		all := true
		for _, c := range columns {
			if !containsColumn(lead, c) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func containsColumn(list []string, c string) bool {
	for _, v := range list {
		if strings.EqualFold(v, c) {
			return true
		}
	}
	return false
}

// Parse extracts the access path of a single SQL statement
func (qa *QueryPatternAnalyzer) Parse(query string) (*ParsedQuery, error) {
	cacheKey := qa.generateCacheKey(query)

	qa.mu.Lock()
	cached, exists := qa.cache[cacheKey]
	qa.mu.Unlock()
	if exists {
		return cached, nil
	}

	parseResult, err := pg_query.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	if len(parseResult.Stmts) == 0 || parseResult.Stmts[0].Stmt == nil {
		return nil, fmt.Errorf("no statement in query")
	}

	parsed := &ParsedQuery{}
	var where *pg_query.Node
	switch node := parseResult.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		parsed.QueryType = models.QueryTypeSelect
		stmt := node.SelectStmt
		parsed.Table = firstRelation(stmt.FromClause)
		where = stmt.WhereClause
		for _, s := range stmt.SortClause {
			if sortBy, ok := s.Node.(*pg_query.Node_SortBy); ok && sortBy.SortBy != nil {
				if col := columnName(sortBy.SortBy.Node); col != "" {
					parsed.SortColumns = appendUnique(parsed.SortColumns, col)
				}
			}
		}
	case *pg_query.Node_UpdateStmt:
		parsed.QueryType = models.QueryTypeUpdate
		parsed.Table = relationName(node.UpdateStmt.Relation)
		where = node.UpdateStmt.WhereClause
	case *pg_query.Node_DeleteStmt:
		parsed.QueryType = models.QueryTypeDelete
		parsed.Table = relationName(node.DeleteStmt.Relation)
		where = node.DeleteStmt.WhereClause
	case *pg_query.Node_InsertStmt:
		parsed.QueryType = models.QueryTypeInsert
		parsed.Table = relationName(node.InsertStmt.Relation)
	default:
		return nil, fmt.Errorf("unsupported statement type %T", node)
	}

	qa.collectFilters(where, parsed)
	for _, c := range parsed.SortColumns {
		parsed.Columns = appendUnique(parsed.Columns, c)
	}

	qa.mu.Lock()
	qa.cache[cacheKey] = parsed
	qa.mu.Unlock()
	return parsed, nil
}

// collectFilters walks a WHERE clause, recording filtered columns in order
func (qa *QueryPatternAnalyzer) collectFilters(node *pg_query.Node, parsed *ParsedQuery) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		if n.BoolExpr == nil {
			return
		}
		for _, arg := range n.BoolExpr.Args {
			qa.collectFilters(arg, parsed)
		}
	case *pg_query.Node_AExpr:
		if n.AExpr == nil {
			return
		}
		col := columnName(n.AExpr.Lexpr)
		if col == "" {
			return
		}
		parsed.Columns = appendUnique(parsed.Columns, col)
		parsed.FilterConditions = append(parsed.FilterConditions, col+" "+operatorName(n.AExpr.Name))
	case *pg_query.Node_NullTest:
		if n.NullTest == nil {
			return
		}
		if col := columnName(n.NullTest.Arg); col != "" {
			cond := col + " IS NULL"
			if n.NullTest.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL {
				cond = col + " IS NOT NULL"
			}
			parsed.Columns = appendUnique(parsed.Columns, col)
			parsed.FilterConditions = append(parsed.FilterConditions, cond)
		}
	}
}

func firstRelation(from []*pg_query.Node) string {
	for _, node := range from {
		if node == nil {
			continue
		}
		if rv, ok := node.Node.(*pg_query.Node_RangeVar); ok {
			return relationName(rv.RangeVar)
		}
	}
	return ""
}

func relationName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return ""
	}
	return rv.Relname
}

// columnName returns the last field of a column reference
func columnName(node *pg_query.Node) string {
	if node == nil {
		return ""
	}
	ref, ok := node.Node.(*pg_query.Node_ColumnRef)
	if !ok || ref.ColumnRef == nil || len(ref.ColumnRef.Fields) == 0 {
		return ""
	}
	last := ref.ColumnRef.Fields[len(ref.ColumnRef.Fields)-1]
	if s, ok := last.Node.(*pg_query.Node_String_); ok && s.String_ != nil {
		return s.String_.Sval
	}
	return ""
}

func operatorName(names []*pg_query.Node) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if s, ok := n.Node.(*pg_query.Node_String_); ok && s.String_ != nil {
			parts = append(parts, s.String_.Sval)
		}
	}
	op := strings.Join(parts, ".")
	switch op {
	case "~~":
		return "LIKE"
	case "~~*":
		return "ILIKE"
	}
	return op
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// generateCacheKey generates a cache key for the query
func (qa *QueryPatternAnalyzer) generateCacheKey(query string) string {
	normalized := strings.TrimSpace(strings.ToLower(query))
	hash := md5.Sum([]byte(normalized))
	return hex.EncodeToString(hash[:])
}
