package konpo

import (
	"context"
	"math"
	"path/filepath"
	"testing"

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

func weight(w float64) *float64 { return &w }

// seedRollup builds the P1/U1 scenario: two materials of 2.5 and 1.5 and a
// unit of 3 parts times 2.
func seedRollup(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P1", ProjectID: "PRJ1", Name: "Frame"}))
	require.NoError(t, db.CreateMaterial(ctx, &store.Material{ID: "B1", ProjectID: "PRJ1", PartID: "P1", Weight: weight(2.5)}))
	require.NoError(t, db.CreateMaterial(ctx, &store.Material{ID: "B2", ProjectID: "PRJ1", PartID: "P1", Weight: weight(1.5)}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1", PartKo: 3, ZensuKo: 2}))
}

func TestRecomputeWeightRollup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedRollup(t, db)

	p := New(db, zaptest.NewLogger(t))
	res, err := p.RecomputePartWeights(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedPartCount)
	assert.Equal(t, 1, res.UpdatedUnitCount)

	part, err := db.GetPart(ctx, "PRJ1", "P1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, part.UnitWeight)

	u, err := db.GetUnit(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 24.0, u.BuzaiWeight)
	assert.Equal(t, 6.0, u.BuzaiQuantity)
	assert.Equal(t, 4.0, u.PartUnitWeight)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedRollup(t, db)
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P2", ProjectID: "PRJ1"}))
	require.NoError(t, db.CreateMaterial(ctx, &store.Material{ID: "B3", ProjectID: "PRJ1", PartID: "P2", Weight: weight(0.1)}))
	require.NoError(t, db.CreateMaterial(ctx, &store.Material{ID: "B4", ProjectID: "PRJ1", PartID: "P2", Weight: weight(0.2)}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "P2", PartKo: 7, ZensuKo: 0.5}))

	p := New(db, nil)
	snapshot := func() ([]*store.Part, []*store.KonpoUnit) {
		parts, err := db.ListParts(ctx, "PRJ1")
		require.NoError(t, err)
		units, err := db.ListUnits(ctx, "PRJ1", false)
		require.NoError(t, err)
		return parts, units
	}

	_, err := p.RecomputePartWeights(ctx, "PRJ1")
	require.NoError(t, err)
	parts1, units1 := snapshot()
	_, err = p.RecomputePartWeights(ctx, "PRJ1")
	require.NoError(t, err)
	parts2, units2 := snapshot()

	require.Len(t, parts2, len(parts1))
	for i := range parts1 {
		assert.Equal(t, parts1[i].UnitWeight, parts2[i].UnitWeight, parts1[i].ID)
	}
	require.Len(t, units2, len(units1))
	for i := range units1 {
		assert.Equal(t, units1[i].BuzaiWeight, units2[i].BuzaiWeight, units1[i].ID)
		assert.Equal(t, units1[i].BuzaiQuantity, units2[i].BuzaiQuantity, units1[i].ID)
	}
}

func TestFormulaHoldsAfterPropagation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedRollup(t, db)
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P2", ProjectID: "PRJ1"}))
	require.NoError(t, db.CreateMaterial(ctx, &store.Material{ID: "B3", ProjectID: "PRJ1", PartID: "P2", Weight: weight(1.0 / 3)}))
	exec(t, db, `INSERT INTO BOM_BUZAI (BUZAI_ID, BUZAI_PROJECT_ID, PART_ID, BUZAI_WEIGHT) VALUES ('B4', 'PRJ1', 'P2', 'heavy')`)
	for i, ko := range []float64{1, 2.5, 11} {
		id := []string{"V1", "V2", "V3"}[i]
		require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: id, ProjectID: "PRJ1", PartID: "P2", PartKo: ko, ZensuKo: 3}))
	}

	_, err := New(db, nil).RecomputePartWeights(ctx, "PRJ1")
	require.NoError(t, err)

	parts, err := db.ListParts(ctx, "PRJ1")
	require.NoError(t, err)
	unitWeight := map[string]float64{}
	for _, p := range parts {
		unitWeight[p.ID] = p.UnitWeight
	}
	assert.InDelta(t, 1.0/3, unitWeight["P2"], 1e-9, "non-numeric material weight counts as zero")

	units, err := db.ListUnits(ctx, "PRJ1", false)
	require.NoError(t, err)
	require.Len(t, units, 4)
	for _, u := range units {
		want := u.PartKo * u.ZensuKo * unitWeight[u.PartID]
		assert.LessOrEqual(t, math.Abs(u.BuzaiWeight-want), 1e-9, u.ID)
	}
}

func TestRecomputeRequiresProject(t *testing.T) {
	_, err := New(testDB(t), nil).RecomputePartWeights(context.Background(), "")
	assert.Equal(t, store.CodeValidation, store.Code(err))
}

func TestSyncTreatsEmptyListIDAsUnregistered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P1", ProjectID: "PRJ1"}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U_NULL", ProjectID: "PRJ1", PartID: "P1", PartKo: 2, ZensuKo: 1}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U_EMPTY", ProjectID: "PRJ1", PartID: "P1", PartKo: 2, ZensuKo: 1}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U_LISTED", ProjectID: "PRJ1", PartID: "P1", PartKo: 2, ZensuKo: 1, ListID: "K000001"}))
	exec(t, db, `UPDATE KONPO_TANNI SET KONPO_LIST_ID = '' WHERE KONPO_TANNI_ID = 'U_EMPTY'`)
	// Part weight changes after the units were created.
	require.NoError(t, db.UpdatePartUnitWeight(ctx, "PRJ1", "P1", 5))

	res, err := New(db, nil).SyncUnregisteredUnits(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCount)
	assert.Equal(t, 2, res.UpdatedWeightCount)

	for _, id := range []string{"U_NULL", "U_EMPTY"} {
		u, err := db.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10.0, u.BuzaiWeight, id)
		assert.Equal(t, 2.0, u.BuzaiQuantity, id)
		assert.Equal(t, "", u.ListID, "sync never assigns a list")
	}
	listed, err := db.GetUnit(ctx, "U_LISTED")
	require.NoError(t, err)
	assert.Equal(t, 0.0, listed.BuzaiWeight)

	// A second run changes nothing.
	res, err = New(db, nil).SyncUnregisteredUnits(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCount)
	assert.Equal(t, 0, res.UpdatedWeightCount)
}

func TestSyncAllProjects(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, prj := range []string{"A", "B"} {
		require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P", ProjectID: prj}))
		require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: prj + "1", ProjectID: prj, PartID: "P"}))
	}

	res, err := New(db, nil).SyncUnregisteredUnits(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCount)
	assert.Zero(t, res.SkippedCount)
}

func TestSyncKeepsUnitsOfDeletedParts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P1", ProjectID: "PRJ1"}))
	require.NoError(t, db.UpdatePartUnitWeight(ctx, "PRJ1", "P1", 4))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1", PartKo: 3, ZensuKo: 2}))
	require.NoError(t, db.DeletePart(ctx, "PRJ1", "P1"))

	res, err := New(db, zaptest.NewLogger(t)).SyncUnregisteredUnits(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Zero(t, res.SyncedCount)
	assert.Zero(t, res.UpdatedWeightCount)
	assert.Equal(t, 1, res.SkippedCount)

	u, err := db.GetUnit(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 24.0, u.BuzaiWeight)
	assert.Equal(t, 4.0, u.PartUnitWeight)
	assert.Equal(t, 6.0, u.BuzaiQuantity)
}

func TestCreatePackagingListIDs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"U1", "U2", "U3"} {
		require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: id, ProjectID: "PRJ1", PartID: "P1"}))
	}
	p := New(db, nil)

	res, err := p.CreatePackagingList(ctx, "PRJ1", []string{"U1"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "K000001", res.KonpoID)
	assert.Equal(t, 1, res.UpdatedCount)

	exec(t, db, `INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID) VALUES ('K000002', 'OTHER')`)
	res, err = p.CreatePackagingList(ctx, "PRJ1", []string{"U2", "U3"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "K000003", res.KonpoID)
	assert.Equal(t, 2, res.UpdatedCount)

	u, err := db.GetUnit(ctx, "U3")
	require.NoError(t, err)
	assert.Equal(t, "K000003", u.ListID)
}

func TestCreatePackagingListIsAtomic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "P1"}))
	// Fail every unit assignment after the list row is inserted.
	exec(t, db, `CREATE TRIGGER fail_assign BEFORE UPDATE OF KONPO_LIST_ID ON KONPO_TANNI
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)

	_, err := New(db, nil).CreatePackagingList(ctx, "PRJ1", []string{"U1", "U2"}, "")
	require.Error(t, err)
	assert.Equal(t, store.CodePersistence, store.Code(err))

	lists, err := db.ListKonpoLists(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Empty(t, lists, "list row must be rolled back")
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM KONPO_TANNI WHERE KONPO_LIST_ID IS NOT NULL`).Scan(&n))
	assert.Zero(t, n)
}

func TestCreatePackagingListValidation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := New(db, nil)

	_, err := p.CreatePackagingList(ctx, "PRJ1", nil, "")
	assert.Equal(t, store.CodeValidation, store.Code(err))

	_, err = p.CreatePackagingList(ctx, "PRJ1", []string{"nope"}, "")
	assert.Equal(t, store.CodeNotFound, store.Code(err))
}

func TestRefreshSkipsUnitsWithoutPart(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreatePart(ctx, &store.Part{ID: "P1", ProjectID: "PRJ1", Name: "old", Manufacturer: "M1"}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U1", ProjectID: "PRJ1", PartID: "P1"}))
	require.NoError(t, db.CreateUnit(ctx, &store.KonpoUnit{ID: "U2", ProjectID: "PRJ1", PartID: "GONE", PartName: "kept"}))
	exec(t, db, `UPDATE BOM_PART SET PART_NAME = 'new', MANUFACTURER = 'M2', PART_TANNI_WEIGHT = 9`)

	res, err := New(db, nil).RefreshPartInfoOnUnits(ctx, "PRJ1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 1, res.SkippedCount)

	u1, err := db.GetUnit(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "new", u1.PartName)
	assert.Equal(t, "M2", u1.Manufacturer)
	assert.Equal(t, 9.0, u1.PartUnitWeight)

	u2, err := db.GetUnit(ctx, "U2")
	require.NoError(t, err)
	assert.Equal(t, "kept", u2.PartName)
}
