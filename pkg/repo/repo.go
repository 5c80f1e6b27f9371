// Package repo contains small SQL building helpers shared by the pgx repositories.
package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx.Tx and *pgxpool.Pool used by repositories.
type Tx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Join concatenates non-empty SQL fragments with a single space.
func Join(expressions ...string) string {
	parts := make([]string, 0, len(expressions))
	for _, e := range expressions {
		if strings.TrimSpace(e) == "" {
			continue
		}
		parts = append(parts, e)
	}
	return strings.Join(parts, " ")
}

// JoinWhere builds a WHERE clause out of AND-ed conditions. It returns an empty string for no conditions.
func JoinWhere(expressions ...string) string {
	if len(expressions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(expressions, " AND ")
}

// FormatLimitOffset renders LIMIT/OFFSET, skipping non-positive values.
func FormatLimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}

// Insert renders an INSERT statement with positional placeholders.
func Insert(tableName string, fields []string, returning ...string) string {
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := Join(
		"INSERT INTO", tableName,
		"("+strings.Join(fields, ", ")+")",
		"VALUES",
		"("+strings.Join(placeholders, ", ")+")",
	)
	if len(returning) > 0 {
		q = Join(q, "RETURNING", strings.Join(returning, ", "))
	}
	return q
}

// Update renders an UPDATE statement assigning fields to $1..$n followed by the optional WHERE conditions.
func Update(tableName string, fields []string, where ...string) string {
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	return Join("UPDATE", tableName, "SET", strings.Join(assignments, ", "), JoinWhere(where...))
}
