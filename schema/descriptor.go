// Package schema changes the primary key of existing tables. SQLite cannot
// alter a key in place, so tables are rebuilt through a shadow copy.
package schema

import (
	"context"
	"strings"

	"bomdesk/store"
)

// Column is one column of a table descriptor.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key"`
}

// Table is an ordered column list. Column order is significant: copies
// between a table and its shadow use the same generated list on both sides.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Describe introspects table into a descriptor. The name must be the catalog
// spelling returned by store.DB.ResolveTable.
func Describe(ctx context.Context, db *store.DB, table string) (Table, error) {
	infos, err := db.TableColumns(ctx, table)
	if err != nil {
		return Table{}, err
	}
	if len(infos) == 0 {
		return Table{}, &store.NotFoundError{What: "table", Key: table}
	}
	t := Table{Name: table, Columns: make([]Column, len(infos))}
	for i, ci := range infos {
		t.Columns[i] = Column{
			Name:       ci.Name,
			Type:       ci.Type,
			NotNull:    ci.NotNull,
			Default:    ci.Default,
			PrimaryKey: ci.PK > 0,
		}
	}
	return t, nil
}

// Column looks up a column by name, case-insensitively.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t Table) PrimaryKeys() []string {
	var keys []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// WithPrimaryKey returns a copy of t in which only the named column is
// flagged as primary key. An empty name clears every flag.
func (t Table) WithPrimaryKey(name string) Table {
	out := Table{Name: t.Name, Columns: make([]Column, len(t.Columns))}
	for i, c := range t.Columns {
		c.PrimaryKey = name != "" && c.Name == name
		out.Columns[i] = c
	}
	return out
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quotedList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quote(n)
	}
	return strings.Join(q, ", ")
}

// RenderCreateTable renders the CREATE TABLE statement for t. Identifiers are
// quoted, defaults are always parenthesized so expression defaults survive,
// and the flagged primary key column carries a column-level PRIMARY KEY.
func RenderCreateTable(t Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quote(t.Name))
	b.WriteString(" (\n")
	for i, c := range t.Columns {
		b.WriteString("    ")
		b.WriteString(quote(c.Name))
		if c.Type != "" {
			b.WriteString(" ")
			b.WriteString(c.Type)
		}
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Default != nil {
			b.WriteString(" DEFAULT (")
			b.WriteString(*c.Default)
			b.WriteString(")")
		}
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}
