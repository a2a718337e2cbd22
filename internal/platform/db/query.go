package db

import (
	sq "github.com/Masterminds/squirrel"
)

// Psql builds PostgreSQL statements with $n placeholders.
var Psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ScopedSelect starts a SELECT on table already filtered to the scope's
// tenant. The returned builder can only narrow the result further.
func ScopedSelect(scope Scope, table string, columns ...string) (sq.SelectBuilder, error) {
	if err := scope.Check(); err != nil {
		return sq.SelectBuilder{}, err
	}
	return Psql.Select(columns...).From(table).Where(sq.Eq{"tenant_id": scope.TenantID()}), nil
}
