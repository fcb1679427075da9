package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
	"github.com/jackc/pgx/v5"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

/*
Performs a SQL query and returns a slice of all the result rows. T must be a struct
with `db:"column_name"` tags; use the $columns placeholder to select exactly those
columns. Embedded structs without a tag contribute their fields directly.

Any SQL query may be performed, including INSERT and UPDATE - as long as it returns a
result set, you can use this.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	rows, err := conn.Query(ctx, compileQuery[T](query), args...)
	if err != nil {
		return nil, err
	}
	result, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		return nil, oops.New(err, "error while iterating through db results")
	}
	return result, nil
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	rows, err := conn.Query(ctx, compileQuery[T](query), args...)
	if err != nil {
		return nil, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound
		}
		return nil, err
	}
	return result, nil
}

/*
Queries a single column into concrete values. More convenient for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result, err := pgx.CollectRows(rows, pgx.RowTo[T])
	if err != nil {
		return nil, oops.New(err, "error while iterating through db results")
	}
	return result, nil
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowTo[T])
	if err != nil {
		var zero T
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, NotFound
		}
		return zero, err
	}
	return result, nil
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery[T any](query string) string {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return query
	}

	var destExample T
	destType := reflect.TypeOf(destExample)
	if destType.Kind() != reflect.Struct {
		panic("$columns can only be used when querying into a struct")
	}

	prefix := columnsMatch[2]
	names := ColumnNames(destType)
	columns := make([]string, len(names))
	for i, name := range names {
		if prefix != "" {
			columns[i] = prefix + "." + name
		} else {
			columns[i] = name
		}
	}

	return reColumnsPlaceholder.ReplaceAllString(query, strings.Join(columns, ", "))
}

// ColumnNames lists the `db` tags of a struct type in field order, descending into
// untagged embedded structs.
func ColumnNames(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Errorf("can only get column names from a struct, got type '%v'", t))
	}

	var names []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == "-" {
			continue
		}
		// pgx scans into embedded structs whether or not they are exported.
		if field.Anonymous && tag == "" && field.Type.Kind() == reflect.Struct {
			names = append(names, ColumnNames(field.Type)...)
			continue
		}
		if !field.IsExported() {
			continue
		}
		if tag != "" {
			names = append(names, tag)
		}
	}
	return names
}
