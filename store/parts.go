package store

import (
	"context"
	"database/sql"
	"time"
)

// Part is a BOM line item within a project (BOM_PART). UnitWeight is derived
// from the part's materials and only authoritative right after a propagation run.
type Part struct {
	ID           string    `json:"part_id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"part_name"`
	Manufacturer string    `json:"manufacturer"`
	UnitWeight   float64   `json:"part_tanni_weight"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const partSelectCols = `PART_ID, PART_PROJECT_ID, PART_NAME, MANUFACTURER, PART_TANNI_WEIGHT, CREATED_AT, UPDATED_AT`

func scanPart(row interface{ Scan(...any) error }) (*Part, error) {
	var p Part
	var createdAt, updatedAt any
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Manufacturer, &p.UnitWeight, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (db *DB) CreatePart(ctx context.Context, p *Part) error {
	if p.ID == "" {
		return &ValidationError{Field: "part_id", Reason: "required"}
	}
	if p.ProjectID == "" {
		return &ValidationError{Field: "project_id", Reason: "required"}
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO BOM_PART (PART_ID, PART_PROJECT_ID, PART_NAME, MANUFACTURER, PART_TANNI_WEIGHT) VALUES (?, ?, ?, ?, ?)`),
		p.ID, p.ProjectID, p.Name, p.Manufacturer, p.UnitWeight)
	return Classify("part", err)
}

func (db *DB) GetPart(ctx context.Context, projectID, partID string) (*Part, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+partSelectCols+` FROM BOM_PART WHERE PART_ID=? AND PART_PROJECT_ID=?`), partID, projectID)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "part", Key: partID}
	}
	return p, Classify("get part", err)
}

func (db *DB) ListParts(ctx context.Context, projectID string) ([]*Part, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+partSelectCols+` FROM BOM_PART WHERE PART_PROJECT_ID=? ORDER BY PART_ID`), projectID)
	if err != nil {
		return nil, Classify("list parts", err)
	}
	defer rows.Close()
	var parts []*Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, Classify("scan part", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (db *DB) UpdatePartUnitWeight(ctx context.Context, projectID, partID string, weight float64) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE BOM_PART SET PART_TANNI_WEIGHT=?, UPDATED_AT=`+db.dialect.Now()+` WHERE PART_ID=? AND PART_PROJECT_ID=?`),
		weight, partID, projectID)
	return Classify("update part weight", err)
}

// DeletePart removes a part and its materials. Packaging units referencing
// the part are left in place; their denormalized fields keep the last values.
func (db *DB) DeletePart(ctx context.Context, projectID, partID string) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.Q(`DELETE FROM BOM_PART WHERE PART_ID=? AND PART_PROJECT_ID=?`), partID, projectID)
		if err != nil {
			return Classify("delete part", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{What: "part", Key: partID}
		}
		if _, err := tx.ExecContext(ctx, db.Q(`DELETE FROM BOM_BUZAI WHERE PART_ID=? AND BUZAI_PROJECT_ID=?`), partID, projectID); err != nil {
			return Classify("delete part materials", err)
		}
		return nil
	})
}

// CountParts returns the number of parts in a project.
func (db *DB) CountParts(ctx context.Context, projectID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM BOM_PART WHERE PART_PROJECT_ID=?`), projectID).Scan(&n)
	return n, Classify("count parts", err)
}
