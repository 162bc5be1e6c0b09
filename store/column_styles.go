package store

import (
	"context"
	"database/sql"
)

// ColumnStyle is a d_culum_style row: display metadata for one column of a
// table, including whether the UI should treat it as the key column.
type ColumnStyle struct {
	Table       string `json:"table_name"`
	Column      string `json:"column_name"`
	DisplayName string `json:"display_name"`
	Width       int    `json:"width"`
	SortOrder   int    `json:"sort_order"`
	IsKey       bool   `json:"is_key"`
}

func (db *DB) ListColumnStyles(ctx context.Context, table string) ([]*ColumnStyle, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT table_name, column_name, display_name, width, sort_order, isKey
		FROM d_culum_style WHERE table_name=? ORDER BY sort_order, column_name`), table)
	if err != nil {
		return nil, Classify("list column styles", err)
	}
	defer rows.Close()
	var styles []*ColumnStyle
	for rows.Next() {
		var s ColumnStyle
		var isKey int
		if err := rows.Scan(&s.Table, &s.Column, &s.DisplayName, &s.Width, &s.SortOrder, &isKey); err != nil {
			return nil, Classify("scan column style", err)
		}
		s.IsKey = isKey != 0
		styles = append(styles, &s)
	}
	return styles, rows.Err()
}

// SetKeyColumn marks column as the key of table in d_culum_style and clears
// the flag on every other column. Rows are created for columns that lack one.
func (db *DB) SetKeyColumn(ctx context.Context, table, column string, columns []string) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		return db.SetKeyColumnTx(ctx, tx, table, column, columns)
	})
}

// SetKeyColumnTx is SetKeyColumn inside a caller-owned transaction.
func (db *DB) SetKeyColumnTx(ctx context.Context, tx *sql.Tx, table, column string, columns []string) error {
	for i, c := range columns {
		if _, err := tx.ExecContext(ctx, db.Q(`INSERT INTO d_culum_style (table_name, column_name, display_name, sort_order)
			VALUES (?, ?, ?, ?) ON CONFLICT (table_name, column_name) DO NOTHING`), table, c, c, i); err != nil {
			return Classify("ensure column style", err)
		}
	}
	_, err := tx.ExecContext(ctx, db.Q(`UPDATE d_culum_style SET isKey = CASE WHEN column_name=? THEN 1 ELSE 0 END WHERE table_name=?`),
		column, table)
	return Classify("set key column", err)
}
