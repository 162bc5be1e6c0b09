package store

import (
	"context"
	"database/sql"
)

// ColumnInfo is one row of a table's column catalog, in declaration order.
type ColumnInfo struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	NotNull bool    `json:"not_null"`
	Default *string `json:"default,omitempty"`
	PK      int     `json:"pk"` // 1-based position within the primary key, 0 when not part of it
}

// ResolveTable returns the catalog spelling of a table name, matched
// case-insensitively. Missing tables yield a NotFoundError.
func (db *DB) ResolveTable(ctx context.Context, name string) (string, error) {
	var query string
	switch db.driver {
	case DriverPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' AND lower(table_name) = lower(?)`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`
	}
	var canonical string
	err := db.QueryRowContext(ctx, db.Q(query), name).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{What: "table", Key: name}
	}
	if err != nil {
		return "", &PersistenceError{Op: "resolve table", Err: err}
	}
	return canonical, nil
}

// TableExists reports whether a table with the given name exists.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	_, err := db.ResolveTable(ctx, name)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*NotFoundError); ok {
		return false, nil
	}
	return false, err
}

// ListTables returns user tables sorted by name.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch db.driver {
	case DriverPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "list tables", Err: err}
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// TableColumns introspects a table's columns in declaration order.
func (db *DB) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	var query string
	switch db.driver {
	case DriverPostgres:
		query = `SELECT c.column_name, c.data_type, c.is_nullable = 'NO', c.column_default,
			COALESCE((SELECT k.ordinal_position FROM information_schema.key_column_usage k
				JOIN information_schema.table_constraints tc
				  ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY' AND k.table_schema = c.table_schema
				  AND k.table_name = c.table_name AND k.column_name = c.column_name), 0)
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = ?
			ORDER BY c.ordinal_position`
	default:
		query = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	}
	rows, err := db.QueryContext(ctx, db.Q(query), table)
	if err != nil {
		return nil, &PersistenceError{Op: "table columns", Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var dflt sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &c.NotNull, &dflt, &c.PK); err != nil {
			return nil, &PersistenceError{Op: "scan table columns", Err: err}
		}
		if dflt.Valid {
			d := dflt.String
			c.Default = &d
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// TableObjects returns the DDL of indexes and triggers attached to a SQLite
// table. Automatic indexes (PRIMARY KEY / UNIQUE) have no SQL and are skipped.
func (db *DB) TableObjects(ctx context.Context, table string) ([]string, error) {
	if db.driver != DriverSQLite {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL ORDER BY type, name`, table)
	if err != nil {
		return nil, &PersistenceError{Op: "table objects", Err: err}
	}
	defer rows.Close()
	var ddl []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		ddl = append(ddl, s)
	}
	return ddl, rows.Err()
}

// KeyViolations counts, for column of table, the rows whose value repeats an
// earlier row's value and the rows holding NULL.
func (db *DB) KeyViolations(ctx context.Context, table, column string) (dups, nulls int64, err error) {
	t := db.dialect.QuoteIdent(table)
	c := db.dialect.QuoteIdent(column)
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(`+c+`) - COUNT(DISTINCT `+c+`), COUNT(*) - COUNT(`+c+`) FROM `+t).Scan(&dups, &nulls)
	if err != nil {
		return 0, 0, &PersistenceError{Op: "check key values", Err: err}
	}
	return dups, nulls, nil
}

// NonIntegerValues counts the non-NULL values of column that SQLite does not
// store as integers.
func (db *DB) NonIntegerValues(ctx context.Context, table, column string) (int64, error) {
	c := db.dialect.QuoteIdent(column)
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+db.dialect.QuoteIdent(table)+` WHERE `+c+` IS NOT NULL AND typeof(`+c+`) <> 'integer'`).Scan(&n)
	if err != nil {
		return 0, &PersistenceError{Op: "check integer key", Err: err}
	}
	return n, nil
}

// CountRows returns the number of rows in table.
func (db *DB) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+db.dialect.QuoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, &PersistenceError{Op: "count rows", Err: err}
	}
	return n, nil
}

// PrimaryKeyConstraint returns the name of a PostgreSQL table's primary key
// constraint, or "" when the table has none. SQLite has no named constraints.
func (db *DB) PrimaryKeyConstraint(ctx context.Context, table string) (string, error) {
	if db.driver != DriverPostgres {
		return "", nil
	}
	var name string
	err := db.QueryRowContext(ctx, db.Q(`SELECT constraint_name FROM information_schema.table_constraints
		WHERE table_schema = current_schema() AND table_name = ? AND constraint_type = 'PRIMARY KEY'`), table).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &PersistenceError{Op: "primary key constraint", Err: err}
	}
	return name, nil
}
