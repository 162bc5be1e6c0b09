package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KonpoList is a packaging list (KONPO_LIST). TotalWeight and UnitCount are
// computed from the assigned units on read.
type KonpoList struct {
	ID          string       `json:"konpo_list_id"`
	ProjectID   string       `json:"project_id"`
	Name        string       `json:"konpo_name"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	TotalWeight float64      `json:"total_weight"`
	UnitCount   int          `json:"unit_count"`
	Units       []*KonpoUnit `json:"units,omitempty"`
}

const konpoListPrefix = "K"

// FormatKonpoListID renders the list ID for sequence number n.
func FormatKonpoListID(n int) string {
	return fmt.Sprintf("%s%06d", konpoListPrefix, n)
}

// nextKonpoListID returns "K" followed by the largest existing numeric suffix
// plus one, zero-padded to six digits. IDs without a numeric suffix are ignored.
func nextKonpoListID(ctx context.Context, q queryer) (string, error) {
	rows, err := q.QueryContext(ctx, `SELECT KONPO_LIST_ID FROM KONPO_LIST WHERE KONPO_LIST_ID LIKE 'K%'`)
	if err != nil {
		return "", Classify("next list id", err)
	}
	defer rows.Close()
	max := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", Classify("scan list id", err)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, konpoListPrefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", Classify("next list id", err)
	}
	return FormatKonpoListID(max + 1), nil
}

// NextKonpoListID previews the ID the next list creation would use.
func (db *DB) NextKonpoListID(ctx context.Context) (string, error) {
	return nextKonpoListID(ctx, db.DB)
}

// CreatePackagingList generates a new list ID, inserts the list row and
// assigns every unit in unitIDs to it, all in one transaction. A unit that
// does not belong to the project aborts the transaction with a NotFoundError;
// a unit already in another list aborts it with a ConflictError.
// It returns the created list and the number of units assigned.
func (db *DB) CreatePackagingList(ctx context.Context, projectID, name, createdBy string, unitIDs []string) (*KonpoList, int, error) {
	if len(unitIDs) == 0 {
		return nil, 0, &ValidationError{Field: "units", Reason: "at least one unit is required"}
	}
	var list *KonpoList
	updated := 0
	err := db.InTx(ctx, func(tx *sql.Tx) error {
		id, err := nextKonpoListID(ctx, tx)
		if err != nil {
			return err
		}
		if name == "" {
			name = id
		}
		if _, err := tx.ExecContext(ctx, db.Q(`INSERT INTO KONPO_LIST (KONPO_LIST_ID, PROJECT_ID, KONPO_NAME, CREATED_BY) VALUES (?, ?, ?, ?)`),
			id, projectID, name, createdBy); err != nil {
			return Classify("create list", err)
		}
		seen := make(map[string]bool, len(unitIDs))
		for _, unitID := range unitIDs {
			if seen[unitID] {
				continue
			}
			seen[unitID] = true
			res, err := tx.ExecContext(ctx, db.Q(`UPDATE KONPO_TANNI SET KONPO_LIST_ID=?, UPDATED_AT=`+db.dialect.Now()+`
				WHERE KONPO_TANNI_ID=? AND PROJECT_ID=? AND (KONPO_LIST_ID IS NULL OR KONPO_LIST_ID = '')`), id, unitID, projectID)
			if err != nil {
				return Classify("assign unit", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return unassignableUnit(ctx, db, tx, projectID, unitID)
			}
			updated++
		}
		list = &KonpoList{ID: id, ProjectID: projectID, Name: name, CreatedBy: createdBy, CreatedAt: time.Now()}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return list, updated, nil
}

// unassignableUnit explains why unitID could not be assigned to a new list.
func unassignableUnit(ctx context.Context, db *DB, tx *sql.Tx, projectID, unitID string) error {
	var current sql.NullString
	err := tx.QueryRowContext(ctx, db.Q(`SELECT KONPO_LIST_ID FROM KONPO_TANNI WHERE KONPO_TANNI_ID=? AND PROJECT_ID=?`),
		unitID, projectID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{What: "unit", Key: unitID}
	}
	if err != nil {
		return Classify("check unit", err)
	}
	return &ConflictError{What: "unit " + unitID, Err: fmt.Errorf("already in packaging list %s", current.String)}
}

func (db *DB) ListKonpoLists(ctx context.Context, projectID string) ([]*KonpoList, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT l.KONPO_LIST_ID, l.PROJECT_ID, l.KONPO_NAME, l.CREATED_BY, l.CREATED_AT,
		COALESCE(SUM(t.BUZAI_WEIGHT), 0), COUNT(t.KONPO_TANNI_ID)
		FROM KONPO_LIST l
		LEFT JOIN KONPO_TANNI t ON t.KONPO_LIST_ID = l.KONPO_LIST_ID
		WHERE l.PROJECT_ID=?
		GROUP BY l.KONPO_LIST_ID, l.PROJECT_ID, l.KONPO_NAME, l.CREATED_BY, l.CREATED_AT
		ORDER BY l.KONPO_LIST_ID`), projectID)
	if err != nil {
		return nil, Classify("list packaging lists", err)
	}
	defer rows.Close()
	var lists []*KonpoList
	for rows.Next() {
		var l KonpoList
		var createdAt any
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.CreatedBy, &createdAt, &l.TotalWeight, &l.UnitCount); err != nil {
			return nil, Classify("scan packaging list", err)
		}
		l.CreatedAt = parseTime(createdAt)
		lists = append(lists, &l)
	}
	return lists, rows.Err()
}

// GetKonpoList returns a list with its units and computed totals.
func (db *DB) GetKonpoList(ctx context.Context, projectID, listID string) (*KonpoList, error) {
	var l KonpoList
	var createdAt any
	err := db.QueryRowContext(ctx, db.Q(`SELECT KONPO_LIST_ID, PROJECT_ID, KONPO_NAME, CREATED_BY, CREATED_AT
		FROM KONPO_LIST WHERE KONPO_LIST_ID=? AND PROJECT_ID=?`), listID, projectID).
		Scan(&l.ID, &l.ProjectID, &l.Name, &l.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{What: "list", Key: listID}
	}
	if err != nil {
		return nil, Classify("get packaging list", err)
	}
	l.CreatedAt = parseTime(createdAt)

	rows, err := db.QueryContext(ctx, db.Q(`SELECT `+unitSelectCols+` FROM KONPO_TANNI WHERE KONPO_LIST_ID=? ORDER BY KONPO_TANNI_ID`), listID)
	if err != nil {
		return nil, Classify("list units of list", err)
	}
	l.Units, err = scanUnits(rows)
	if err != nil {
		return nil, err
	}
	for _, u := range l.Units {
		l.TotalWeight += u.BuzaiWeight
	}
	l.UnitCount = len(l.Units)
	return &l, nil
}

// DeleteKonpoList removes a list and unassigns its units in one transaction.
func (db *DB) DeleteKonpoList(ctx context.Context, projectID, listID string) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.Q(`DELETE FROM KONPO_LIST WHERE KONPO_LIST_ID=? AND PROJECT_ID=?`), listID, projectID)
		if err != nil {
			return Classify("delete packaging list", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{What: "list", Key: listID}
		}
		if _, err := tx.ExecContext(ctx, db.Q(`UPDATE KONPO_TANNI SET KONPO_LIST_ID=NULL, UPDATED_AT=`+db.dialect.Now()+`
			WHERE KONPO_LIST_ID=?`), listID); err != nil {
			return Classify("unassign units", err)
		}
		return nil
	})
}
