package postgres

import (
	"context"
	"fmt"
)

// loadColumns reads the table's current column names from
// information_schema. Importers use the result to decide which optional
// attributes can be persisted, so the same snapshot format survives schema
// variants that lack newer columns.
func loadColumns(ctx context.Context, q querier, table string) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "Store.loadColumns")
	defer span.End()

	rows, err := q.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("introspect %s: table not found", table)
	}
	return cols, nil
}

// insertBuilder accumulates a dynamic column/value list for one INSERT,
// appending optional columns only when the live schema has them.
type insertBuilder struct {
	table string
	cols  []string
	casts []string
	vals  []any
	caps  map[string]bool
}

func newInsert(table string, caps map[string]bool) *insertBuilder {
	return &insertBuilder{table: table, caps: caps}
}

func (b *insertBuilder) add(col, cast string, val any) *insertBuilder {
	b.cols = append(b.cols, col)
	b.casts = append(b.casts, cast)
	b.vals = append(b.vals, val)
	return b
}

// set appends a mandatory column.
func (b *insertBuilder) set(col string, val any) *insertBuilder {
	return b.add(col, "", val)
}

// setIfPresent appends the column only when the schema has it.
func (b *insertBuilder) setIfPresent(col string, val any) *insertBuilder {
	if b.caps[col] {
		return b.set(col, val)
	}
	return b
}

// setJSONIfPresent appends a jsonb column only when the schema has it,
// mapping an empty raw message to NULL.
func (b *insertBuilder) setJSONIfPresent(col string, raw []byte) *insertBuilder {
	if !b.caps[col] {
		return b
	}
	var val any
	if len(raw) > 0 {
		val = string(raw)
	}
	return b.add(col, "::jsonb", val)
}

// sql renders `INSERT ... RETURNING id`.
func (b *insertBuilder) sql() string {
	placeholders := ""
	colList := ""
	for i, c := range b.cols {
		if i > 0 {
			placeholders += ", "
			colList += ", "
		}
		colList += c
		placeholders += fmt.Sprintf("$%d%s", i+1, b.casts[i])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", b.table, colList, placeholders)
}
