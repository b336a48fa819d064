package querybuilder

import (
	"errors"
	"reflect"
	"strings"
)

// InsertModel inserts one row built from the exported, db-tagged fields of
// model, in field order.
func InsertModel(table string, model any, suffix string) (string, []any, error) {
	columns, values, err := modelColumns(model)
	if err != nil {
		return "", nil, err
	}
	return InsertInto(table).Columns(columns...).Values(values...).Suffix(suffix).ToSQL()
}

func modelColumns(model any) ([]string, []any, error) {
	v := reflect.Indirect(reflect.ValueOf(model))
	if !v.IsValid() {
		return nil, nil, errors.New("insert model: nil model")
	}
	if v.Kind() != reflect.Struct {
		return nil, nil, errors.New("insert model: model must be a struct")
	}

	var (
		columns []string
		values  []any
	)
	for _, field := range reflect.VisibleFields(v.Type()) {
		if !field.IsExported() || len(field.Index) > 1 {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("db"), ",")
		name = strings.TrimSpace(name)
		if name == "" || name == "-" {
			continue
		}
		columns = append(columns, name)
		values = append(values, v.FieldByIndex(field.Index).Interface())
	}
	if len(columns) == 0 {
		return nil, nil, errors.New("insert model: no db columns")
	}
	return columns, values, nil
}
