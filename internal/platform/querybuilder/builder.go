package querybuilder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type SelectBuilder struct {
	columns []string
	table   string
	where   []Condition
	orderBy []string
	limit   int
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: columns}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

func (b *SelectBuilder) Where(conditions ...Condition) *SelectBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *SelectBuilder) OrderBy(columns ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, columns...)
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

func (b *SelectBuilder) ToSQL() (string, []any, error) {
	switch {
	case len(b.columns) == 0:
		return "", nil, errors.New("select: no columns")
	case strings.TrimSpace(b.table) == "":
		return "", nil, errors.New("select: no table")
	}

	var a args
	sql := "SELECT " + strings.Join(b.columns, ", ") + " FROM " + b.table + a.where(b.where)
	if len(b.orderBy) > 0 {
		sql += " ORDER BY " + strings.Join(b.orderBy, ", ")
	}
	if b.limit > 0 {
		sql += " LIMIT " + strconv.Itoa(b.limit)
	}
	return sql, a.values, nil
}

type InsertBuilder struct {
	table   string
	columns []string
	rows    [][]any
	suffix  rawCondition
}

func InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = columns
	return b
}

func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, values)
	return b
}

// Suffix appends trailing SQL such as ON CONFLICT; each ? binds the next arg
// after the row values.
func (b *InsertBuilder) Suffix(sql string, values ...any) *InsertBuilder {
	b.suffix = rawCondition{sql: strings.TrimSpace(sql), values: values}
	return b
}

func (b *InsertBuilder) ToSQL() (string, []any, error) {
	switch {
	case strings.TrimSpace(b.table) == "":
		return "", nil, errors.New("insert: no table")
	case len(b.columns) == 0:
		return "", nil, errors.New("insert: no columns")
	case len(b.rows) == 0:
		return "", nil, errors.New("insert: no values")
	}

	var a args
	tuples := make([]string, len(b.rows))
	for i, row := range b.rows {
		if len(row) != len(b.columns) {
			return "", nil, fmt.Errorf("insert: row %d has %d values for %d columns", i, len(row), len(b.columns))
		}
		binds := make([]string, len(row))
		for j, v := range row {
			binds[j] = a.bind(v)
		}
		tuples[i] = "(" + strings.Join(binds, ", ") + ")"
	}

	sql := "INSERT INTO " + b.table + " (" + strings.Join(b.columns, ", ") + ") VALUES " + strings.Join(tuples, ", ")
	if b.suffix.sql != "" {
		sql += " " + b.suffix.render(&a)
	}
	return sql, a.values, nil
}

type UpdateBuilder struct {
	table string
	sets  []rawCondition
	where []Condition
}

func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	return b.SetExpr(column, "?", value)
}

// SetExpr assigns an SQL expression; each ? binds the next value.
func (b *UpdateBuilder) SetExpr(column, expr string, values ...any) *UpdateBuilder {
	b.sets = append(b.sets, rawCondition{sql: column + " = " + expr, values: values})
	return b
}

func (b *UpdateBuilder) Where(conditions ...Condition) *UpdateBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *UpdateBuilder) ToSQL() (string, []any, error) {
	switch {
	case strings.TrimSpace(b.table) == "":
		return "", nil, errors.New("update: no table")
	case len(b.sets) == 0:
		return "", nil, errors.New("update: nothing to set")
	}

	var a args
	assignments := make([]string, len(b.sets))
	for i, s := range b.sets {
		assignments[i] = s.render(&a)
	}
	return "UPDATE " + b.table + " SET " + strings.Join(assignments, ", ") + a.where(b.where), a.values, nil
}

type DeleteBuilder struct {
	table string
	where []Condition
}

func DeleteFrom(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (b *DeleteBuilder) Where(conditions ...Condition) *DeleteBuilder {
	b.where = append(b.where, conditions...)
	return b
}

// ToSQL refuses a DELETE without conditions.
func (b *DeleteBuilder) ToSQL() (string, []any, error) {
	switch {
	case strings.TrimSpace(b.table) == "":
		return "", nil, errors.New("delete: no table")
	case len(b.where) == 0:
		return "", nil, errors.New("delete: refusing to delete without a where clause")
	}

	var a args
	return "DELETE FROM " + b.table + a.where(b.where), a.values, nil
}
