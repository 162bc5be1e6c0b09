package store

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Material is a raw-material weight record attached to a part (BOM_BUZAI).
// Weight is nil when the stored value is missing or not numeric.
type Material struct {
	ID        string    `json:"buzai_id"`
	ProjectID string    `json:"project_id"`
	PartID    string    `json:"part_id"`
	Name      string    `json:"buzai_name"`
	Material  string    `json:"material"`
	Weight    *float64  `json:"buzai_weight"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseWeight interprets a scanned BUZAI_WEIGHT value. Missing and
// non-numeric values count as zero.
func ParseWeight(v any) (float64, bool) {
	switch w := v.(type) {
	case float64:
		return w, true
	case int64:
		return float64(w), true
	case []byte:
		return ParseWeight(string(w))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func (db *DB) CreateMaterial(ctx context.Context, m *Material) error {
	if m.ID == "" {
		return &ValidationError{Field: "buzai_id", Reason: "required"}
	}
	if m.PartID == "" {
		return &ValidationError{Field: "part_id", Reason: "required"}
	}
	var weight any
	if m.Weight != nil {
		weight = *m.Weight
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO BOM_BUZAI (BUZAI_ID, BUZAI_PROJECT_ID, PART_ID, BUZAI_NAME, MATERIAL, BUZAI_WEIGHT) VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID, m.ProjectID, m.PartID, m.Name, m.Material, weight)
	return Classify("material", err)
}

func (db *DB) ListMaterials(ctx context.Context, projectID, partID string) ([]*Material, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT BUZAI_ID, BUZAI_PROJECT_ID, PART_ID, BUZAI_NAME, MATERIAL, BUZAI_WEIGHT, CREATED_AT
		FROM BOM_BUZAI WHERE BUZAI_PROJECT_ID=? AND PART_ID=? ORDER BY BUZAI_ID`), projectID, partID)
	if err != nil {
		return nil, Classify("list materials", err)
	}
	defer rows.Close()
	var out []*Material
	for rows.Next() {
		var m Material
		var weight, createdAt any
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.PartID, &m.Name, &m.Material, &weight, &createdAt); err != nil {
			return nil, Classify("scan material", err)
		}
		if w, ok := ParseWeight(weight); ok {
			m.Weight = &w
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (db *DB) DeleteMaterial(ctx context.Context, projectID, buzaiID string) error {
	res, err := db.ExecContext(ctx, db.Q(`DELETE FROM BOM_BUZAI WHERE BUZAI_ID=? AND BUZAI_PROJECT_ID=?`), buzaiID, projectID)
	if err != nil {
		return Classify("delete material", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{What: "material", Key: buzaiID}
	}
	return nil
}

// MaterialWeightSums returns SUM(BUZAI_WEIGHT) per part of a project. Parts
// without materials are absent from the map.
func (db *DB) MaterialWeightSums(ctx context.Context, projectID string) (map[string]float64, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT PART_ID, BUZAI_WEIGHT FROM BOM_BUZAI WHERE BUZAI_PROJECT_ID=?`), projectID)
	if err != nil {
		return nil, Classify("material weights", err)
	}
	defer rows.Close()
	sums := make(map[string]float64)
	for rows.Next() {
		var partID string
		var weight any
		if err := rows.Scan(&partID, &weight); err != nil {
			return nil, Classify("scan material weight", err)
		}
		w, _ := ParseWeight(weight)
		sums[partID] += w
	}
	return sums, rows.Err()
}
