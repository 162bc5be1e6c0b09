package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"bomdesk/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: DriverSQLite,
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err, query)
}

// --- Parts and materials ---

func TestPartCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ1", Name: "Bracket", Manufacturer: "ACME"}))

	got, err := db.GetPart(ctx, "PRJ1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "Bracket", got.Name)
	assert.Equal(t, "ACME", got.Manufacturer)
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be parsed")

	require.NoError(t, db.UpdatePartUnitWeight(ctx, "PRJ1", "P1", 4.5))
	got, err = db.GetPart(ctx, "PRJ1", "P1")
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.UnitWeight)

	// Same part ID in another project is a different part.
	require.NoError(t, db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ2"}))
	n, err := db.CountParts(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ1"})
	assert.Equal(t, CodeConflict, Code(err), "duplicate part: %v", err)

	_, err = db.GetPart(ctx, "PRJ1", "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "part", nf.What)

	err = db.CreatePart(ctx, &Part{ProjectID: "PRJ1"})
	assert.Equal(t, CodeValidation, Code(err))
}

func TestDeletePartRemovesMaterials(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ1"}))
	w := 2.0
	require.NoError(t, db.CreateMaterial(ctx, &Material{ID: "B1", ProjectID: "PRJ1", PartID: "P1", Weight: &w}))

	require.NoError(t, db.DeletePart(ctx, "PRJ1", "P1"))
	mats, err := db.ListMaterials(ctx, "PRJ1", "P1")
	require.NoError(t, err)
	assert.Empty(t, mats)

	assert.Equal(t, CodeNotFound, Code(db.DeletePart(ctx, "PRJ1", "P1")))
}

func TestMaterialWeightSums(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a, b := 2.5, 1.5
	require.NoError(t, db.CreateMaterial(ctx, &Material{ID: "B1", ProjectID: "PRJ1", PartID: "P1", Weight: &a}))
	require.NoError(t, db.CreateMaterial(ctx, &Material{ID: "B2", ProjectID: "PRJ1", PartID: "P1", Weight: &b}))
	require.NoError(t, db.CreateMaterial(ctx, &Material{ID: "B3", ProjectID: "PRJ1", PartID: "P2"}))
	mustExec(t, db, `INSERT INTO BOM_BUZAI (BUZAI_ID, BUZAI_PROJECT_ID, PART_ID, BUZAI_WEIGHT) VALUES ('B4', 'PRJ1', 'P2', 'n/a')`)
	mustExec(t, db, `INSERT INTO BOM_BUZAI (BUZAI_ID, BUZAI_PROJECT_ID, PART_ID, BUZAI_WEIGHT) VALUES ('B5', 'PRJ1', 'P2', '0.75')`)
	require.NoError(t, db.CreateMaterial(ctx, &Material{ID: "B6", ProjectID: "OTHER", PartID: "P1", Weight: &a}))

	sums, err := db.MaterialWeightSums(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"P1": 4.0, "P2": 0.75}, sums)

	mats, err := db.ListMaterials(ctx, "PRJ1", "P2")
	require.NoError(t, err)
	require.Len(t, mats, 3)
	assert.Nil(t, mats[0].Weight, "missing weight")
	assert.Nil(t, mats[1].Weight, "non-numeric weight")
	require.NotNil(t, mats[2].Weight)
	assert.Equal(t, 0.75, *mats[2].Weight)
}

func TestParseWeight(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{nil, 0, false},
		{2.5, 2.5, true},
		{int64(3), 3, true},
		{" 1.25 ", 1.25, true},
		{[]byte("4"), 4, true},
		{"kg", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseWeight(c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
	}
}

// --- Packaging units and lists ---

func TestCreateUnitCopiesPartAndDerives(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ1", Name: "Frame", Manufacturer: "ACME", UnitWeight: 4}))
	u := &KonpoUnit{ProjectID: "PRJ1", PartID: "P1", PartKo: 3, ZensuKo: 2}
	require.NoError(t, db.CreateUnit(ctx, u))
	assert.NotEmpty(t, u.ID, "ID should be generated")

	got, err := db.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Frame", got.PartName)
	assert.Equal(t, "ACME", got.Manufacturer)
	assert.Equal(t, 4.0, got.PartUnitWeight)
	assert.Equal(t, 6.0, got.BuzaiQuantity)
	assert.Equal(t, 24.0, got.BuzaiWeight)
	assert.Equal(t, "", got.ListID)

	// Units may reference parts that do not exist yet.
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U9", ProjectID: "PRJ1", PartID: "GHOST", PartKo: 1, ZensuKo: 1}))
	got, err = db.GetUnit(ctx, "U9")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.BuzaiWeight)
}

func TestListUnitsUnassignedTreatsEmptyAsNull(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U3", ProjectID: "PRJ1", PartID: "P1", ListID: "K000001"}))
	mustExec(t, db, `UPDATE KONPO_TANNI SET KONPO_LIST_ID = '' WHERE KONPO_TANNI_ID = 'U2'`)

	all, err := db.ListUnits(ctx, "PRJ1", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := db.ListUnits(ctx, "PRJ1", true)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "U1", open[0].ID)
	assert.Equal(t, "U2", open[1].ID)

	unreg, err := db.ListUnregisteredUnits(ctx, "")
	require.NoError(t, err)
	assert.Len(t, unreg, 2)
	assert.False(t, unreg[0].HasPart)
}

func TestNextKonpoListID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.NextKonpoListID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "K000001", id)

	mustExec(t, db, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID) VALUES ('K000001', 'PRJ1'), ('K000002', 'PRJ2'), ('Kmanual', 'PRJ1')`)
	id, err = db.NextKonpoListID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "K000003", id)
}

func TestCreatePackagingList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"U1", "U2", "U3"} {
		require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: id, ProjectID: "PRJ1", PartID: "P1", PartKo: 1, ZensuKo: 1}))
	}
	mustExec(t, db, `UPDATE KONPO_TANNI SET BUZAI_WEIGHT = 2.5`)

	list, n, err := db.CreatePackagingList(ctx, "PRJ1", "", "alice", []string{"U1", "U2", "U1"})
	require.NoError(t, err)
	assert.Equal(t, "K000001", list.ID)
	assert.Equal(t, 2, n)

	lists, err := db.ListKonpoLists(ctx, "PRJ1")
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, 2, lists[0].UnitCount)
	assert.InDelta(t, 5.0, lists[0].TotalWeight, 1e-9)
	assert.Equal(t, "alice", lists[0].CreatedBy)

	got, err := db.GetKonpoList(ctx, "PRJ1", "K000001")
	require.NoError(t, err)
	assert.Len(t, got.Units, 2)
	assert.InDelta(t, 5.0, got.TotalWeight, 1e-9)

	require.NoError(t, db.DeleteKonpoList(ctx, "PRJ1", "K000001"))
	open, err := db.ListUnits(ctx, "PRJ1", true)
	require.NoError(t, err)
	assert.Len(t, open, 3, "deleting a list unassigns its units")
	assert.Equal(t, CodeNotFound, Code(db.DeleteKonpoList(ctx, "PRJ1", "K000001")))
}

func TestCreatePackagingListRollsBackOnUnknownUnit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U2", ProjectID: "PRJ2", PartID: "P1"}))

	_, _, err := db.CreatePackagingList(ctx, "PRJ1", "", "", []string{"U1", "U2"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "U2", nf.Key)

	lists, err := db.ListKonpoLists(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Empty(t, lists)
	u, err := db.GetUnit(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "", u.ListID)

	_, _, err = db.CreatePackagingList(ctx, "PRJ1", "", "", nil)
	assert.Equal(t, CodeValidation, Code(err))
}

func TestCreatePackagingListRejectsListedUnit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "P1"}))
	first, _, err := db.CreatePackagingList(ctx, "PRJ1", "", "", []string{"U1"})
	require.NoError(t, err)

	_, _, err = db.CreatePackagingList(ctx, "PRJ1", "", "", []string{"U2", "U1"})
	assert.Equal(t, CodeConflict, Code(err), err)
	assert.Contains(t, err.Error(), first.ID)

	got, err := db.GetKonpoList(ctx, "PRJ1", first.ID)
	require.NoError(t, err)
	assert.Len(t, got.Units, 1)
	u2, err := db.GetUnit(ctx, "U2")
	require.NoError(t, err)
	assert.Equal(t, "", u2.ListID)
	lists, err := db.ListKonpoLists(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestProjectTotals(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePart(ctx, &Part{ID: "P1", ProjectID: "PRJ1", UnitWeight: 2}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1", PartKo: 1, ZensuKo: 1}))
	require.NoError(t, db.CreateUnit(ctx, &KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "P1", PartKo: 2, ZensuKo: 1}))
	_, _, err := db.CreatePackagingList(ctx, "PRJ1", "first", "", []string{"U1"})
	require.NoError(t, err)

	got, err := db.ProjectTotals(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, &ProjectTotals{ProjectID: "PRJ1", PartCount: 1, UnitCount: 2, UnassignedCount: 1, ListCount: 1, TotalWeight: 6}, got)
}

// --- Catalog and column styles ---

func TestCatalog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	name, err := db.ResolveTable(ctx, "bom_part")
	require.NoError(t, err)
	assert.Equal(t, "BOM_PART", name)

	ok, err := db.TableExists(ctx, "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	cols, err := db.TableColumns(ctx, "BOM_PART")
	require.NoError(t, err)
	require.Len(t, cols, 7)
	assert.Equal(t, "PART_ID", cols[0].Name)
	assert.Equal(t, 1, cols[0].PK)
	assert.Equal(t, 2, cols[1].PK)
	assert.Equal(t, 0, cols[2].PK)
	assert.True(t, cols[2].NotNull)
	require.NotNil(t, cols[2].Default)
	assert.Equal(t, "''", *cols[2].Default)

	objs, err := db.TableObjects(ctx, "KONPO_TANNI")
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "d_culum_style")
	assert.Contains(t, tables, "KONPO_LIST")
}

func TestKeyViolations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mustExec(t, db, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID, KONPO_NAME) VALUES ('K1', 'A', 'x'), ('K2', 'A', 'x'), ('K3', 'B', 'y')`)
	dups, nulls, err := db.KeyViolations(ctx, "KONPO_LIST", "KONPO_NAME")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dups)
	assert.Equal(t, int64(0), nulls)

	dups, _, err = db.KeyViolations(ctx, "KONPO_LIST", "KONPO_LIST_ID")
	require.NoError(t, err)
	assert.Equal(t, int64(0), dups)
}

func TestSetKeyColumn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mustExec(t, db, `INSERT INTO d_culum_style (table_name, column_name, display_name, isKey) VALUES ('T', 'a', 'A', 1)`)
	require.NoError(t, db.SetKeyColumn(ctx, "T", "b", []string{"a", "b", "c"}))

	styles, err := db.ListColumnStyles(ctx, "T")
	require.NoError(t, err)
	require.Len(t, styles, 3)
	keys := map[string]bool{}
	for _, s := range styles {
		keys[s.Column] = s.IsKey
	}
	assert.Equal(t, map[string]bool{"a": false, "b": true, "c": false}, keys)
	assert.Equal(t, "A", styles[0].DisplayName, "existing rows keep their display name")
}

// --- Audit, outbox, admin users ---

func TestAuditLog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.AppendAudit(ctx, "table", "KONPO_LIST", "set_primary_key", "", "KONPO_NAME", "alice"))
	require.NoError(t, db.AppendAudit(ctx, "project", "PRJ1", "recompute", "", "3", ""))

	entries, err := db.ListAuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "recompute", entries[0].Action)
	assert.Equal(t, "system", entries[0].Actor)

	byEntity, err := db.ListEntityAudit(ctx, "table", "KONPO_LIST")
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	assert.Equal(t, "alice", byEntity[0].Actor)
}

func TestOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnqueueOutbox(ctx, "bomdesk.events", []byte(`{"a":1}`), "list.created", "bomdesk"))
	require.NoError(t, db.EnqueueOutbox(ctx, "bomdesk.events", []byte(`{"a":2}`), "units.synced", "bomdesk"))

	msgs, err := db.ListPendingOutbox(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "list.created", msgs[0].MsgType)

	require.NoError(t, db.AckOutbox(ctx, msgs[0].ID))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.IncrementOutboxRetries(ctx, msgs[1].ID))
	}
	msgs, err = db.ListPendingOutbox(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, msgs, "acked and exhausted messages are not pending")

	n, err := db.CountPendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdminUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ok, err := db.AdminUserExists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.CreateAdminUser(ctx, "admin", "hash1"))
	require.NoError(t, db.UpdateAdminPassword(ctx, "admin", "hash2"))
	u, err := db.GetAdminUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash2", u.PasswordHash)

	assert.Equal(t, CodeConflict, Code(db.CreateAdminUser(ctx, "admin", "x")))
	assert.Equal(t, CodeNotFound, Code(db.UpdateAdminPassword(ctx, "ghost", "x")))
}

// --- Errors ---

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("op", nil))

	nf := &NotFoundError{What: "table", Key: "X"}
	assert.Same(t, nf, Classify("op", nf))

	raw := errors.New("disk I/O error")
	err := Classify("write", raw)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, raw)

	assert.Equal(t, CodeSchemaMutation, Code(&SchemaMutationError{Table: "T", Stage: "ShadowCreated", Err: raw}))
	assert.Equal(t, CodePersistence, Code(raw))
}

func TestInTxRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID) VALUES ('K1', 'A')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	id, err := db.NextKonpoListID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "K000001", id)
}
