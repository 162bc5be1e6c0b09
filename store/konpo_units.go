package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// KonpoUnit is a packaging unit (KONPO_TANNI): PartKo parts of one Part,
// multiplied by ZensuKo. PartName, Manufacturer and PartUnitWeight are
// denormalized copies of the part row. ListID is empty while unassigned.
type KonpoUnit struct {
	ID             string    `json:"konpo_tanni_id"`
	ProjectID      string    `json:"project_id"`
	PartID         string    `json:"part_id"`
	PartName       string    `json:"part_name"`
	Manufacturer   string    `json:"manufacturer"`
	PartUnitWeight float64   `json:"part_tanni_weight"`
	PartKo         float64   `json:"part_ko"`
	ZensuKo        float64   `json:"zensu_ko"`
	BuzaiWeight    float64   `json:"buzai_weight"`
	BuzaiQuantity  float64   `json:"buzai_quantity"`
	ListID         string    `json:"konpo_list_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Derive recomputes the unit's derived numbers from a part unit weight.
func (u *KonpoUnit) Derive(unitWeight float64) {
	u.PartUnitWeight = unitWeight
	u.BuzaiQuantity = u.PartKo * u.ZensuKo
	u.BuzaiWeight = u.PartKo * u.ZensuKo * unitWeight
}

const unitSelectCols = `KONPO_TANNI_ID, PROJECT_ID, PART_ID, PART_NAME, MANUFACTURER, PART_TANNI_WEIGHT,
	PART_KO, ZENSU_KO, BUZAI_WEIGHT, BUZAI_QUANTITY, KONPO_LIST_ID, CREATED_AT, UPDATED_AT`

func scanUnit(row interface{ Scan(...any) error }) (*KonpoUnit, error) {
	var u KonpoUnit
	var listID sql.NullString
	var createdAt, updatedAt any
	if err := row.Scan(&u.ID, &u.ProjectID, &u.PartID, &u.PartName, &u.Manufacturer, &u.PartUnitWeight,
		&u.PartKo, &u.ZensuKo, &u.BuzaiWeight, &u.BuzaiQuantity, &listID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.ListID = listID.String
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func scanUnits(rows *sql.Rows) ([]*KonpoUnit, error) {
	defer rows.Close()
	var units []*KonpoUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, Classify("scan unit", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// CreateUnit inserts a packaging unit. When the referenced part exists its
// name, manufacturer and unit weight are copied onto the unit; the derived
// weight and quantity are computed before insert. An empty ID gets a UUID.
func (db *DB) CreateUnit(ctx context.Context, u *KonpoUnit) error {
	if u.ProjectID == "" {
		return &ValidationError{Field: "project_id", Reason: "required"}
	}
	if u.PartID == "" {
		return &ValidationError{Field: "part_id", Reason: "required"}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if p, err := db.GetPart(ctx, u.ProjectID, u.PartID); err == nil {
		u.PartName = p.Name
		u.Manufacturer = p.Manufacturer
		u.PartUnitWeight = p.UnitWeight
	}
	u.Derive(u.PartUnitWeight)

	var listID any
	if u.ListID != "" {
		listID = u.ListID
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO KONPO_TANNI (KONPO_TANNI_ID, PROJECT_ID, PART_ID, PART_NAME, MANUFACTURER,
		PART_TANNI_WEIGHT, PART_KO, ZENSU_KO, BUZAI_WEIGHT, BUZAI_QUANTITY, KONPO_LIST_ID) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.ProjectID, u.PartID, u.PartName, u.Manufacturer,
		u.PartUnitWeight, u.PartKo, u.ZensuKo, u.BuzaiWeight, u.BuzaiQuantity, listID)
	return Classify("unit", err)
}

func (db *DB) GetUnit(ctx context.Context, unitID string) (*KonpoUnit, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+unitSelectCols+` FROM KONPO_TANNI WHERE KONPO_TANNI_ID=?`), unitID)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "unit", Key: unitID}
	}
	return u, Classify("get unit", err)
}

// ListUnits returns the units of a project. With unassignedOnly, units whose
// KONPO_LIST_ID is NULL or empty.
func (db *DB) ListUnits(ctx context.Context, projectID string, unassignedOnly bool) ([]*KonpoUnit, error) {
	query := `SELECT ` + unitSelectCols + ` FROM KONPO_TANNI WHERE PROJECT_ID=?`
	if unassignedOnly {
		query += ` AND (KONPO_LIST_ID IS NULL OR KONPO_LIST_ID = '')`
	}
	rows, err := db.QueryContext(ctx, db.Q(query+` ORDER BY KONPO_TANNI_ID`), projectID)
	if err != nil {
		return nil, Classify("list units", err)
	}
	return scanUnits(rows)
}

func (db *DB) ListUnitsByPart(ctx context.Context, projectID, partID string) ([]*KonpoUnit, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+unitSelectCols+` FROM KONPO_TANNI WHERE PROJECT_ID=? AND PART_ID=? ORDER BY KONPO_TANNI_ID`),
		projectID, partID)
	if err != nil {
		return nil, Classify("list units by part", err)
	}
	return scanUnits(rows)
}

// ListAllUnits returns every unit of a project, or of all projects when
// projectID is empty.
func (db *DB) ListAllUnits(ctx context.Context, projectID string) ([]*KonpoUnit, error) {
	query := `SELECT ` + unitSelectCols + ` FROM KONPO_TANNI`
	var args []any
	if projectID != "" {
		query += ` WHERE PROJECT_ID=?`
		args = append(args, projectID)
	}
	rows, err := db.QueryContext(ctx, db.Q(query+` ORDER BY PROJECT_ID, KONPO_TANNI_ID`), args...)
	if err != nil {
		return nil, Classify("list units", err)
	}
	return scanUnits(rows)
}

// UnregisteredUnit is an unassigned unit joined with its part's current unit
// weight. HasPart is false when no matching part row exists.
type UnregisteredUnit struct {
	KonpoUnit
	CurrentUnitWeight float64
	HasPart           bool
}

// ListUnregisteredUnits returns units with a NULL or empty KONPO_LIST_ID,
// read-joined with BOM_PART on part and project. An empty projectID selects
// all projects.
func (db *DB) ListUnregisteredUnits(ctx context.Context, projectID string) ([]*UnregisteredUnit, error) {
	query := `SELECT t.KONPO_TANNI_ID, t.PROJECT_ID, t.PART_ID, t.PART_NAME, t.MANUFACTURER, t.PART_TANNI_WEIGHT,
		t.PART_KO, t.ZENSU_KO, t.BUZAI_WEIGHT, t.BUZAI_QUANTITY, t.KONPO_LIST_ID, t.CREATED_AT, t.UPDATED_AT,
		p.PART_TANNI_WEIGHT
		FROM KONPO_TANNI t
		LEFT JOIN BOM_PART p ON p.PART_ID = t.PART_ID AND p.PART_PROJECT_ID = t.PROJECT_ID
		WHERE (t.KONPO_LIST_ID IS NULL OR t.KONPO_LIST_ID = '')`
	var args []any
	if projectID != "" {
		query += ` AND t.PROJECT_ID=?`
		args = append(args, projectID)
	}
	rows, err := db.QueryContext(ctx, db.Q(query+` ORDER BY t.PROJECT_ID, t.KONPO_TANNI_ID`), args...)
	if err != nil {
		return nil, Classify("list unregistered units", err)
	}
	defer rows.Close()

	var out []*UnregisteredUnit
	for rows.Next() {
		var uu UnregisteredUnit
		var listID sql.NullString
		var partWeight sql.NullFloat64
		var createdAt, updatedAt any
		u := &uu.KonpoUnit
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.PartID, &u.PartName, &u.Manufacturer, &u.PartUnitWeight,
			&u.PartKo, &u.ZensuKo, &u.BuzaiWeight, &u.BuzaiQuantity, &listID, &createdAt, &updatedAt, &partWeight); err != nil {
			return nil, Classify("scan unregistered unit", err)
		}
		u.ListID = listID.String
		u.CreatedAt = parseTime(createdAt)
		u.UpdatedAt = parseTime(updatedAt)
		uu.CurrentUnitWeight = partWeight.Float64
		uu.HasPart = partWeight.Valid
		out = append(out, &uu)
	}
	return out, rows.Err()
}

// UpdateUnitDerived writes a unit's part unit weight and derived numbers.
func (db *DB) UpdateUnitDerived(ctx context.Context, u *KonpoUnit) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE KONPO_TANNI SET PART_TANNI_WEIGHT=?, BUZAI_WEIGHT=?, BUZAI_QUANTITY=?, UPDATED_AT=`+db.dialect.Now()+`
		WHERE KONPO_TANNI_ID=?`), u.PartUnitWeight, u.BuzaiWeight, u.BuzaiQuantity, u.ID)
	return Classify("update unit weight", err)
}

// UpdateUnitPartInfo overwrites the unit's denormalized copy of part p.
func (db *DB) UpdateUnitPartInfo(ctx context.Context, unitID string, p *Part) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE KONPO_TANNI SET PART_NAME=?, MANUFACTURER=?, PART_TANNI_WEIGHT=?, UPDATED_AT=`+db.dialect.Now()+`
		WHERE KONPO_TANNI_ID=?`), p.Name, p.Manufacturer, p.UnitWeight, unitID)
	return Classify("update unit part info", err)
}

func (db *DB) DeleteUnit(ctx context.Context, unitID string) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM KONPO_TANNI WHERE KONPO_TANNI_ID=?`), unitID)
	if err != nil {
		return Classify("delete unit", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{What: "unit", Key: unitID}
	}
	return nil
}
