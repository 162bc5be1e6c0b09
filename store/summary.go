package store

import "context"

// ProjectTotals is a packaging summary of one project computed from SQL.
type ProjectTotals struct {
	ProjectID       string  `json:"project"`
	PartCount       int     `json:"part_count"`
	UnitCount       int     `json:"unit_count"`
	UnassignedCount int     `json:"unassigned_count"`
	ListCount       int     `json:"list_count"`
	TotalWeight     float64 `json:"total_weight"`
}

func (db *DB) ProjectTotals(ctx context.Context, projectID string) (*ProjectTotals, error) {
	t := &ProjectTotals{ProjectID: projectID}
	err := db.QueryRowContext(ctx, db.Q(`SELECT
		(SELECT COUNT(*) FROM BOM_PART WHERE PART_PROJECT_ID=?),
		(SELECT COUNT(*) FROM KONPO_TANNI WHERE PROJECT_ID=?),
		(SELECT COUNT(*) FROM KONPO_TANNI WHERE PROJECT_ID=? AND (KONPO_LIST_ID IS NULL OR KONPO_LIST_ID = '')),
		(SELECT COUNT(*) FROM KONPO_LIST WHERE PROJECT_ID=?),
		(SELECT COALESCE(SUM(BUZAI_WEIGHT), 0) FROM KONPO_TANNI WHERE PROJECT_ID=?)`),
		projectID, projectID, projectID, projectID, projectID).
		Scan(&t.PartCount, &t.UnitCount, &t.UnassignedCount, &t.ListCount, &t.TotalWeight)
	if err != nil {
		return nil, Classify("project totals", err)
	}
	return t, nil
}
