// Package sqlresolver implements the SQL/Warehouse Resolver (spec §4.F):
// parameterised query generation over a registry of (objectType →
// tableName, primaryKeyColumn) bindings, using the teacher's raw pgx pool
// wrapper (db.PostgresDB) rather than GORM, since the resolver hand-builds
// its own SQL.
package sqlresolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"oms.heartbeat.dev/db"
	"oms.heartbeat.dev/errs"
	"oms.heartbeat.dev/ontology/resolver"
)

// Binding names the physical table and primary-key column for an object
// type. Populated at start-up from the schema registry; both fields fall
// back to naming conventions when left blank.
type Binding struct {
	Table      string
	PrimaryKey string
}

type Resolver struct {
	pg       *db.PostgresDB
	bindings map[string]Binding
}

func New(pg *db.PostgresDB) *Resolver {
	return &Resolver{pg: pg, bindings: make(map[string]Binding)}
}

func (r *Resolver) Name() string { return "sql" }

// Register records an explicit table/pk binding for objectType, overriding
// the naming-convention defaults.
func (r *Resolver) Register(objectType string, binding Binding) {
	r.bindings[objectType] = binding
}

func (r *Resolver) binding(objectType string) Binding {
	if b, ok := r.bindings[objectType]; ok {
		if b.Table == "" {
			b.Table = defaultTableName(objectType)
		}
		if b.PrimaryKey == "" {
			b.PrimaryKey = defaultPrimaryKeyColumn(objectType)
		}
		return b
	}
	return Binding{Table: defaultTableName(objectType), PrimaryKey: defaultPrimaryKeyColumn(objectType)}
}

// defaultTableName is <snake_case(name)>s.
func defaultTableName(name string) string {
	return toSnakeCase(name) + "s"
}

// defaultPrimaryKeyColumn is <camelCase(name)>Id.
func defaultPrimaryKeyColumn(name string) string {
	return toCamelCase(name) + "Id"
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
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

func (r *Resolver) GetByID(ctx context.Context, objectType, id string, projection []string) (resolver.Record, error) {
	b := r.binding(objectType)
	cols := columnList(projection)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 LIMIT 1", cols, b.Table, b.PrimaryKey)
	rows, err := r.pg.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows)
}

func (r *Resolver) GetByFilter(ctx context.Context, objectType string, filters map[string]interface{}, projection []string, limit, offset int) ([]resolver.Record, error) {
	b := r.binding(objectType)
	cols := columnList(projection)

	var clauses []string
	var args []interface{}
	i := 1
	for field, value := range filters {
		if field == resolver.RowFilterKey {
			continue
		}
		switch v := value.(type) {
		case []interface{}:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", field, i))
			args = append(args, v)
		case []string:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", field, i))
			args = append(args, v)
		default:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", field, i))
			args = append(args, value)
		}
		i++
	}
	if rf, ok := filters[resolver.RowFilterKey]; ok {
		if rowFilter, _ := rf.(string); rowFilter != "" {
			clauses = append(clauses, "("+rowFilter+")")
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, b.Table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" LIMIT $%d", i)
	args = append(args, limit)
	i++
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", i)
		args = append(args, offset)
	}

	rows, err := r.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resolver.Record
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TraverseLink implements both resolver-type tags: foreign_key delegates
// to GetByFilter; join_table emits a parameterised inner join.
func (r *Resolver) TraverseLink(ctx context.Context, fromType, fromID, linkType, toType string, linkConfig map[string]interface{}, projection []string, limit int) ([]resolver.Record, error) {
	resolverType, _ := linkConfig["resolver_type"].(string)

	switch resolverType {
	case "join_table":
		table, _ := linkConfig["table"].(string)
		fromField, _ := linkConfig["from_field"].(string)
		toField, _ := linkConfig["to_field"].(string)
		if table == "" || fromField == "" || toField == "" {
			return nil, errs.InvalidRequest("join_table link config missing table/from_field/to_field")
		}

		toBinding := r.binding(toType)
		cols := prefixedColumnList(projection, "t")
		query := fmt.Sprintf(
			"SELECT %s FROM %s t INNER JOIN %s j ON t.%s = j.%s WHERE j.%s = $1",
			cols, toBinding.Table, table, toBinding.PrimaryKey, toField, fromField,
		)
		args := []interface{}{fromID}
		if limit > 0 {
			query += " LIMIT $2"
			args = append(args, limit)
		}

		rows, err := r.pg.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []resolver.Record
		for rows.Next() {
			rec, err := scanRow(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, rows.Err()

	default: // foreign_key
		toField, _ := linkConfig["to_field"].(string)
		return r.GetByFilter(ctx, toType, map[string]interface{}{toField: fromID}, projection, limit, 0)
	}
}

func columnList(projection []string) string {
	if len(projection) == 0 {
		return "*"
	}
	return strings.Join(projection, ", ")
}

func prefixedColumnList(projection []string, alias string) string {
	if len(projection) == 0 {
		return alias + ".*"
	}
	prefixed := make([]string, len(projection))
	for i, p := range projection {
		prefixed[i] = alias + "." + p
	}
	return strings.Join(prefixed, ", ")
}

func scanRow(rows pgx.Rows) (resolver.Record, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	rec := make(resolver.Record, len(values))
	for i, v := range values {
		name := fmt.Sprintf("col%d", i)
		if i < len(fields) {
			name = fields[i].Name
		}
		rec[name] = v
	}
	return rec, nil
}
