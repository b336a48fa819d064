package querybuilder

import (
	"strconv"
	"strings"
)

// args collects bind values and numbers them as postgres $n placeholders in
// the order they are rendered.
type args struct {
	values []any
}

func (a *args) bind(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// expand binds each ? in sql to the next value. A ? without a value is left
// alone so jsonb operators such as ?| survive.
func (a *args) expand(sql string, values []any) string {
	if len(values) == 0 {
		return sql
	}

	var out strings.Builder
	out.Grow(len(sql) + 2*len(values))
	rest := values
	for _, r := range sql {
		if r == '?' && len(rest) > 0 {
			out.WriteString(a.bind(rest[0]))
			rest = rest[1:]
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func (a *args) where(conditions []Condition) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, len(conditions))
	for i, c := range conditions {
		parts[i] = c.render(a)
	}
	return " WHERE " + strings.Join(parts, " AND ")
}
