package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// ForUpdate adds a row-level locking clause on dialects that support it.
// SQLite serializes writers at the connection level and rejects FOR UPDATE,
// so the clause is omitted there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GreatestExpr returns a SQL expression selecting the greater of two
// arguments. SQLite spells the variadic form MAX; PostgreSQL uses GREATEST.
func GreatestExpr(conn *gorm.DB, left, right string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("MAX(%s, %s)", left, right)
	}
	return fmt.Sprintf("GREATEST(%s, %s)", left, right)
}
