package querybuilder

// Condition is one predicate of a WHERE clause; predicates are joined with AND.
type Condition interface {
	render(a *args) string
}

type rawCondition struct {
	sql    string
	values []any
}

func (c rawCondition) render(a *args) string {
	return a.expand(c.sql, c.values)
}

func Eq(column string, value any) Condition {
	return rawCondition{sql: column + " = ?", values: []any{value}}
}

// Contains matches rows whose jsonb column contains the given JSON object.
func Contains(column, jsonObject string) Condition {
	return rawCondition{sql: column + " @> ?::jsonb", values: []any{jsonObject}}
}
