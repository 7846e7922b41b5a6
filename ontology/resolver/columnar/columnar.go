// Package columnar implements the Columnar-File Resolver (spec §4.G):
// predicate-pushdown reads over parquet files rooted at a configured data
// directory, using the out-of-pack parquet-go library already wired into
// clips/index for columnar export.
package columnar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/ontology/resolver"
)

// Resolver reads <dataRoot>/analytics/<snake_case(name)>.parquet files.
type Resolver struct {
	dataRoot string
	bindings map[string]string // objectType -> primary key column override
}

func New(dataRoot string) *Resolver {
	return &Resolver{dataRoot: dataRoot, bindings: make(map[string]string)}
}

func (r *Resolver) Name() string { return "columnar" }

// RegisterPrimaryKey overrides the <camelCase(name)>Id convention for objectType.
func (r *Resolver) RegisterPrimaryKey(objectType, column string) {
	r.bindings[objectType] = column
}

func (r *Resolver) primaryKey(objectType string) string {
	if pk, ok := r.bindings[objectType]; ok && pk != "" {
		return pk
	}
	return toCamelCase(objectType) + "Id"
}

func (r *Resolver) filePath(objectType string) string {
	return filepath.Join(r.dataRoot, "analytics", toSnakeCase(objectType)+".parquet")
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, ch := range s {
		if ch >= 'A' && ch <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(ch + ('a' - 'A'))
		} else {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func toCamelCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// readAll loads every row of objectType's file as generic maps, projecting
// down to the requested columns when given.
func (r *Resolver) readAll(objectType string, projection []string) ([]resolver.Record, error) {
	path := r.filePath(objectType)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open columnar file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}

	projSet := make(map[string]bool, len(projection))
	for _, p := range projection {
		projSet[p] = true
	}

	schema := pf.Schema()
	fields := schema.Fields()
	columnNames := make([]string, len(fields))
	for i, f := range fields {
		columnNames[i] = f.Name()
	}

	reader := parquet.NewReader(f, schema)
	defer reader.Close()

	var out []resolver.Record
	row := make(parquet.Row, 0, len(columnNames))
	for {
		row, err = reader.ReadRow(row[:0])
		if err != nil {
			break
		}

		rec := make(resolver.Record, len(columnNames))
		for _, v := range row {
			idx := v.Column()
			if idx < 0 || idx >= len(columnNames) {
				continue
			}
			name := columnNames[idx]
			if len(projSet) > 0 && !projSet[name] {
				continue
			}
			rec[name] = valueToGo(v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func valueToGo(v parquet.Value) interface{} {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32, parquet.Int64:
		return v.Int64()
	case parquet.Float, parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	default:
		return nil
	}
}

func (r *Resolver) GetByID(ctx context.Context, objectType, id string, projection []string) (resolver.Record, error) {
	pk := r.primaryKey(objectType)
	proj := projection
	if len(proj) > 0 {
		proj = ensureColumn(proj, pk)
	}

	rows, err := r.readAll(objectType, proj)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if fmt.Sprintf("%v", row[pk]) == id {
			return row, nil
		}
	}
	return nil, nil
}

func ensureColumn(projection []string, col string) []string {
	for _, p := range projection {
		if p == col {
			return projection
		}
	}
	return append(append([]string(nil), projection...), col)
}

// GetByFilter pushes scalar equality filters down to the post-read scan
// (parquet-go's generic reader does not expose row-group predicate
// pushdown for arbitrary maps, so the "pushdown" here is a full-file scan
// with early filtering rather than a skip-row-group optimisation); list
// filters are applied identically, as a post-filter over the frame, per
// spec. Limit/offset are applied after filtering.
func (r *Resolver) GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]resolver.Record, error) {
	rows, err := r.readAll(objectType, projection)
	if err != nil {
		return nil, err
	}

	var rowFilter string
	if rf, ok := filters[resolver.RowFilterKey]; ok {
		rowFilter, _ = rf.(string)
	}

	var matched []resolver.Record
	for _, row := range rows {
		if matchesFilters(row, filters) && matchesRowFilter(row, rowFilter) {
			matched = append(matched, row)
		}
	}

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchesFilters(row resolver.Record, filters map[string]interface{}) bool {
	for field, want := range filters {
		if field == resolver.RowFilterKey {
			continue
		}
		got, ok := row[field]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []interface{}:
			if !containsValue(w, got) {
				return false
			}
		case []string:
			matched := false
			for _, v := range w {
				if fmt.Sprintf("%v", got) == v {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
				return false
			}
		}
	}
	return true
}

// matchesRowFilter evaluates the conjunctive expression ontology/policy's
// buildRowFilter produces (clauses joined by " AND ", each either
// "field = 'value'" or "field IN (v1, v2, ...)") against row, since this
// backend has no query planner to push the filter into.
func matchesRowFilter(row resolver.Record, rowFilter string) bool {
	if rowFilter == "" {
		return true
	}
	for _, clause := range strings.Split(rowFilter, " AND ") {
		if !matchesRowFilterClause(row, clause) {
			return false
		}
	}
	return true
}

func matchesRowFilterClause(row resolver.Record, clause string) bool {
	clause = strings.TrimSpace(clause)

	if idx := strings.Index(clause, " IN ("); idx >= 0 && strings.HasSuffix(clause, ")") {
		field := strings.TrimSpace(clause[:idx])
		inner := clause[idx+len(" IN (") : len(clause)-1]
		got := fmt.Sprintf("%v", row[field])
		for _, v := range strings.Split(inner, ",") {
			if got == strings.Trim(strings.TrimSpace(v), `'"`) {
				return true
			}
		}
		return false
	}

	if idx := strings.Index(clause, "="); idx >= 0 {
		field := strings.TrimSpace(clause[:idx])
		want := strings.Trim(strings.TrimSpace(clause[idx+1:]), `'"`)
		return fmt.Sprintf("%v", row[field]) == want
	}

	return true
}

func containsValue(haystack []interface{}, v interface{}) bool {
	for _, h := range haystack {
		if fmt.Sprintf("%v", h) == fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}

// TraverseLink supports foreign_key only; join_table is unsupported on
// this backend, logs a warning and returns an empty result.
func (r *Resolver) TraverseLink(ctx context.Context, fromType, fromID, linkType, toType string, linkConfig map[string]interface{}, projection []string, limit int) ([]resolver.Record, error) {
	resolverType, _ := linkConfig["resolver_type"].(string)
	if resolverType == "join_table" {
		common.Logger.WithField("link_type", linkType).Warn("columnar resolver: join_table links are unsupported, returning no rows")
		return nil, nil
	}

	toField, _ := linkConfig["to_field"].(string)
	return r.GetByFilter(ctx, toType, map[string]interface{}{toField: fromID}, projection, limit, 0)
}
