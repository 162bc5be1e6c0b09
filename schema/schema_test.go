package schema

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bomdesk/config"
	"bomdesk/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: store.DriverSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func exec(t *testing.T, db *store.DB, query string) {
	t.Helper()
	_, err := db.Exec(query)
	require.NoError(t, err, query)
}

func strp(s string) *string { return &s }

func TestRenderCreateTable(t *testing.T) {
	tbl := Table{Name: "items", Columns: []Column{
		{Name: "code", Type: "TEXT", NotNull: true, PrimaryKey: true},
		{Name: "qty", Type: "REAL", NotNull: true, Default: strp("0")},
		{Name: "created", Type: "TEXT", Default: strp("datetime('now','localtime')")},
		{Name: `odd"name`},
	}}
	want := `CREATE TABLE "items" (
    "code" TEXT PRIMARY KEY NOT NULL,
    "qty" REAL NOT NULL DEFAULT (0),
    "created" TEXT DEFAULT (datetime('now','localtime')),
    "odd""name"
)`
	assert.Equal(t, want, RenderCreateTable(tbl))

	plain := RenderCreateTable(tbl.WithPrimaryKey(""))
	assert.NotContains(t, plain, "PRIMARY KEY")
}

func TestWithPrimaryKeyDoesNotAlias(t *testing.T) {
	tbl := Table{Name: "t", Columns: []Column{{Name: "a", PrimaryKey: true}, {Name: "b"}}}
	moved := tbl.WithPrimaryKey("b")
	assert.Equal(t, []string{"b"}, moved.PrimaryKeys())
	assert.Equal(t, []string{"a"}, tbl.PrimaryKeys())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "ShadowCreated", StageShadowCreated.String())
	assert.Equal(t, "Stage(99)", Stage(99).String())
}

// stripKeys drops the primary key flags so descriptors of the same table
// before and after a key change can be compared column for column.
func stripKeys(tbl Table) Table { return tbl.WithPrimaryKey("") }

func TestSetPrimaryKeyPreservesColumnsAndRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `INSERT INTO BOM_PART (PART_ID, PART_PROJECT_ID, PART_NAME, PART_TANNI_WEIGHT) VALUES
		('P1', 'A', 'bolt', 1.5), ('P2', 'A', 'nut', 0.25), ('P3', 'B', 'washer', 0)`)

	before, err := Describe(ctx, db, "BOM_PART")
	require.NoError(t, err)

	m := New(db, zaptest.NewLogger(t))
	res, err := m.SetPrimaryKey(ctx, "bom_part", "part_name")
	require.NoError(t, err)
	assert.Equal(t, &Result{Table: "BOM_PART", Column: "PART_NAME", Rebuilds: 2, Rows: 3}, res)

	after, err := Describe(ctx, db, "BOM_PART")
	require.NoError(t, err)
	if diff := cmp.Diff(stripKeys(before), stripKeys(after)); diff != "" {
		t.Errorf("columns changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, []string{"PART_NAME"}, after.PrimaryKeys())

	n, err := db.CountRows(ctx, "BOM_PART")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var weight float64
	require.NoError(t, db.QueryRow(`SELECT PART_TANNI_WEIGHT FROM BOM_PART WHERE PART_NAME='bolt'`).Scan(&weight))
	assert.Equal(t, 1.5, weight)

	objs, err := db.TableObjects(ctx, "BOM_PART")
	require.NoError(t, err)
	require.Len(t, objs, 1, "index restored")
	assert.Contains(t, objs[0], "idx_bom_part_project")

	// Expression defaults still apply after the rebuild.
	exec(t, db, `INSERT INTO BOM_PART (PART_ID, PART_PROJECT_ID, PART_NAME) VALUES ('P4', 'A', 'pin')`)
	var created string
	require.NoError(t, db.QueryRow(`SELECT CREATED_AT FROM BOM_PART WHERE PART_NAME='pin'`).Scan(&created))
	assert.NotEmpty(t, created)
}

func TestSetPrimaryKeyUpdatesColumnStyles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `INSERT INTO d_culum_style (table_name, column_name, isKey) VALUES ('KONPO_LIST', 'KONPO_LIST_ID', 1)`)

	m := New(db, nil)
	_, err := m.SetPrimaryKey(ctx, "KONPO_LIST", "KONPO_NAME")
	require.NoError(t, err)

	styles, err := db.ListColumnStyles(ctx, "KONPO_LIST")
	require.NoError(t, err)
	require.Len(t, styles, 5)
	for _, s := range styles {
		assert.Equal(t, s.Column == "KONPO_NAME", s.IsKey, s.Column)
	}
}

func TestSetPrimaryKeyOnKeylessTable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `CREATE TABLE legacy (code TEXT, label TEXT DEFAULT 'x')`)
	exec(t, db, `CREATE TRIGGER legacy_touch AFTER INSERT ON legacy BEGIN SELECT 1; END`)
	exec(t, db, `INSERT INTO legacy (code) VALUES ('a'), ('b')`)

	res, err := New(db, nil).SetPrimaryKey(ctx, "legacy", "code")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rebuilds)

	after, err := Describe(ctx, db, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, after.PrimaryKeys())

	objs, err := db.TableObjects(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Contains(t, objs[0], "legacy_touch")
}

func TestSetPrimaryKeyAlreadyKey(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	res, err := New(db, nil).SetPrimaryKey(ctx, "KONPO_LIST", "KONPO_LIST_ID")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rebuilds)

	styles, err := db.ListColumnStyles(ctx, "KONPO_LIST")
	require.NoError(t, err)
	assert.Len(t, styles, 5)
}

func TestSetPrimaryKeyErrors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := New(db, nil)
	exec(t, db, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID, KONPO_NAME) VALUES ('K1', 'A', 'x'), ('K2', 'A', 'x')`)
	exec(t, db, `INSERT INTO BOM_BUZAI (BUZAI_ID, BUZAI_PROJECT_ID, PART_ID) VALUES ('B1', 'A', 'P1')`)

	cases := []struct {
		name, table, column, code, what string
	}{
		{"empty table", "", "x", store.CodeValidation, ""},
		{"empty column", "BOM_PART", " ", store.CodeValidation, ""},
		{"missing table", "NOPE", "x", store.CodeNotFound, "table"},
		{"missing column", "BOM_PART", "NOPE", store.CodeNotFound, "column"},
		{"duplicates", "KONPO_LIST", "KONPO_NAME", store.CodeConflict, ""},
		{"nulls", "BOM_BUZAI", "BUZAI_WEIGHT", store.CodeValidation, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := m.SetPrimaryKey(ctx, c.table, c.column)
			require.Error(t, err)
			assert.Equal(t, c.code, store.Code(err), err.Error())
			if c.what != "" {
				var nf *store.NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, c.what, nf.What)
			}
		})
	}

	// Rejected requests leave the table untouched.
	tbl, err := Describe(ctx, db, "KONPO_LIST")
	require.NoError(t, err)
	assert.Equal(t, []string{"KONPO_LIST_ID"}, tbl.PrimaryKeys())
}

func TestSetPrimaryKeyWithDependentView(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `CREATE TABLE items (code TEXT, qty REAL)`)
	exec(t, db, `CREATE TABLE item_log (code TEXT)`)
	exec(t, db, `CREATE VIEW v_items AS SELECT code, qty FROM items`)
	exec(t, db, `CREATE TRIGGER item_log_check AFTER INSERT ON item_log BEGIN SELECT COUNT(*) FROM items; END`)
	exec(t, db, `INSERT INTO items VALUES ('a', 1), ('b', 2)`)

	res, err := New(db, zaptest.NewLogger(t)).SetPrimaryKey(ctx, "items", "code")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rebuilds)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM v_items`).Scan(&n))
	assert.Equal(t, 2, n)
	exec(t, db, `INSERT INTO item_log VALUES ('a')`)

	var legacy int
	require.NoError(t, db.QueryRow(`PRAGMA legacy_alter_table`).Scan(&legacy))
	assert.Zero(t, legacy)
}

func TestSetPrimaryKeyIntegerColumn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := New(db, nil)
	exec(t, db, `CREATE TABLE seqs (id TEXT PRIMARY KEY, n INTEGER)`)
	exec(t, db, `INSERT INTO seqs VALUES ('a', 1), ('b', 2.5)`)

	_, err := m.SetPrimaryKey(ctx, "seqs", "n")
	require.Error(t, err)
	assert.Equal(t, store.CodeValidation, store.Code(err), err.Error())

	exec(t, db, `UPDATE seqs SET n = 2 WHERE id = 'b'`)
	_, err = m.SetPrimaryKey(ctx, "seqs", "n")
	require.NoError(t, err)
	tbl, err := Describe(ctx, db, "seqs")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, tbl.PrimaryKeys())
}

func TestSetPrimaryKeyFailureRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `CREATE TABLE fragile (id TEXT PRIMARY KEY, code TEXT)`)
	exec(t, db, `INSERT INTO fragile VALUES ('1', 'a'), ('2', 'b')`)
	// A leftover table holding the shadow name makes the first rebuild fail.
	exec(t, db, `CREATE TABLE fragile__bomdesk_shadow (x TEXT)`)

	_, err := New(db, nil).SetPrimaryKey(ctx, "fragile", "code")
	var se *store.SchemaMutationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fragile", se.Table)
	assert.Equal(t, StageIntrospected.String(), se.Stage)

	tbl, err := Describe(ctx, db, "fragile")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, tbl.PrimaryKeys())
	n, err := db.CountRows(ctx, "fragile")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSetPrimaryKeyConcurrentSameTable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	exec(t, db, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID, KONPO_NAME) VALUES ('K1', 'A', 'x'), ('K2', 'B', 'y')`)
	m := New(db, nil)

	cols := []string{"KONPO_NAME", "KONPO_LIST_ID", "KONPO_NAME", "KONPO_LIST_ID"}
	var wg sync.WaitGroup
	errs := make([]error, len(cols))
	for i, c := range cols {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			_, errs[i] = m.SetPrimaryKey(ctx, "KONPO_LIST", c)
		}(i, c)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	tbl, err := Describe(ctx, db, "KONPO_LIST")
	require.NoError(t, err)
	assert.Len(t, tbl.PrimaryKeys(), 1)
	assert.Len(t, tbl.Columns, 5)
	n, err := db.CountRows(ctx, "KONPO_LIST")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
