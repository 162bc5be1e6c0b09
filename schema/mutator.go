package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bomdesk/logging"
	"bomdesk/metrics"
	"bomdesk/store"
)

// Stage is a step of a table rebuild. A SchemaMutationError names the last
// stage that completed before the failure.
type Stage int

const (
	StageNone Stage = iota
	StageIntrospected
	StageShadowCreated
	StageDataCopied
	StageOriginalDropped
	StageRenamed
	StageIndexesRestored
	StageKeyDropped
	StageKeyAdded
	StageStylesUpdated
)

var stageNames = map[Stage]string{
	StageNone:            "None",
	StageIntrospected:    "Introspected",
	StageShadowCreated:   "ShadowCreated",
	StageDataCopied:      "DataCopied",
	StageOriginalDropped: "OriginalDropped",
	StageRenamed:         "Renamed",
	StageIndexesRestored: "IndexesRestored",
	StageKeyDropped:      "KeyDropped",
	StageKeyAdded:        "KeyAdded",
	StageStylesUpdated:   "StylesUpdated",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Result summarizes a completed primary key change.
type Result struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Rebuilds int    `json:"rebuilds"`
	Rows     int64  `json:"rows"`
}

// Mutator makes a single column the primary key of a table. Calls for the
// same table are serialized; different tables proceed independently, subject
// to the database's own write lock.
type Mutator struct {
	db  *store.DB
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *store.DB, log *zap.Logger) *Mutator {
	return &Mutator{
		db:    db,
		log:   logging.OrNop(log).Named("schema"),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Mutator) tableLock(table string) *sync.Mutex {
	key := strings.ToLower(table)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// SetPrimaryKey makes column the sole primary key of table, preserving every
// row and every other column definition, and records the choice in
// d_culum_style. The whole change runs in one transaction.
func (m *Mutator) SetPrimaryKey(ctx context.Context, table, column string) (res *Result, err error) {
	defer func() { metrics.SchemaMutations.WithLabelValues(metrics.Status(err)).Inc() }()

	table = strings.TrimSpace(table)
	column = strings.TrimSpace(column)
	if table == "" {
		return nil, &store.ValidationError{Field: "tableName", Reason: "required"}
	}
	if column == "" {
		return nil, &store.ValidationError{Field: "columnName", Reason: "required"}
	}

	canonical, err := m.db.ResolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	lock := m.tableLock(canonical)
	lock.Lock()
	defer lock.Unlock()

	desc, err := Describe(ctx, m.db, canonical)
	if err != nil {
		return nil, err
	}
	target, ok := desc.Column(column)
	if !ok {
		return nil, &store.NotFoundError{What: "column", Key: column}
	}
	if err := m.checkKeyValues(ctx, canonical, target); err != nil {
		return nil, err
	}
	rows, err := m.db.CountRows(ctx, canonical)
	if err != nil {
		return nil, err
	}

	log := m.log.With(zap.String("table", canonical), zap.String("column", target.Name))
	res = &Result{Table: canonical, Column: target.Name, Rows: rows}

	if m.db.Driver() == store.DriverPostgres {
		err = m.alterPostgres(ctx, desc, target.Name)
		if err == nil {
			res.Rebuilds = 1
		}
	} else {
		res.Rebuilds, err = m.rebuildSQLite(ctx, desc, target.Name)
	}
	if err != nil {
		log.Error("set primary key failed", zap.Error(err))
		return nil, err
	}
	log.Info("primary key set", zap.Int("rebuilds", res.Rebuilds), zap.Int64("rows", rows))
	return res, nil
}

// checkKeyValues rejects columns that cannot hold a primary key. On SQLite an
// INTEGER key becomes the rowid, so every value must already be an integer.
func (m *Mutator) checkKeyValues(ctx context.Context, table string, col Column) error {
	column := col.Name
	dups, nulls, err := m.db.KeyViolations(ctx, table, column)
	if err != nil {
		return err
	}
	if dups > 0 {
		return &store.ConflictError{What: "primary key", Err: fmt.Errorf("column %s has %d duplicate values", column, dups)}
	}
	if nulls > 0 {
		return &store.ValidationError{Field: "columnName", Reason: fmt.Sprintf("column %s has %d NULL values", column, nulls)}
	}
	if m.db.Driver() == store.DriverSQLite && strings.EqualFold(strings.TrimSpace(col.Type), "INTEGER") {
		n, err := m.db.NonIntegerValues(ctx, table, column)
		if err != nil {
			return err
		}
		if n > 0 {
			return &store.ValidationError{Field: "columnName", Reason: fmt.Sprintf("INTEGER column %s has %d non-integer values", column, n)}
		}
	}
	return nil
}

func (m *Mutator) rebuildSQLite(ctx context.Context, desc Table, column string) (int, error) {
	// Indexes and triggers go away with the original table; capture them
	// before the transaction since the connection is held by it afterwards.
	objects, err := m.db.TableObjects(ctx, desc.Name)
	if err != nil {
		return 0, err
	}

	keys := desc.PrimaryKeys()
	if len(keys) == 1 && keys[0] == column {
		err := m.db.InTx(ctx, func(tx *sql.Tx) error {
			return m.db.SetKeyColumnTx(ctx, tx, desc.Name, column, desc.ColumnNames())
		})
		if err != nil {
			return 0, &store.SchemaMutationError{Table: desc.Name, Stage: StageIntrospected.String(), Err: err}
		}
		return 0, nil
	}

	r := &rebuild{db: m.db, log: m.log, table: desc.Name, stage: StageIntrospected}
	err = m.db.InTx(ctx, func(tx *sql.Tx) error {
		// Views and triggers of other tables that name this table would fail
		// the schema check of RENAME while the original is dropped.
		if _, err := tx.ExecContext(ctx, "PRAGMA legacy_alter_table=ON"); err != nil {
			return r.fail(fmt.Errorf("legacy alter: %w", err))
		}
		defer tx.ExecContext(context.WithoutCancel(ctx), "PRAGMA legacy_alter_table=OFF")
		if len(keys) > 0 {
			if err := r.run(ctx, tx, desc.WithPrimaryKey("")); err != nil {
				return err
			}
		}
		if err := r.run(ctx, tx, desc.WithPrimaryKey(column)); err != nil {
			return err
		}
		if err := r.restore(ctx, tx, objects); err != nil {
			return err
		}
		if err := m.db.SetKeyColumnTx(ctx, tx, desc.Name, column, desc.ColumnNames()); err != nil {
			return r.fail(err)
		}
		r.advance(StageStylesUpdated)
		return nil
	})
	if err != nil {
		if _, ok := err.(*store.SchemaMutationError); !ok {
			err = r.fail(err)
		}
		return 0, err
	}
	return r.passes, nil
}

// rebuild drives the shadow-table state machine for one table. Each pass
// walks Introspected → ShadowCreated → DataCopied → OriginalDropped → Renamed.
type rebuild struct {
	db     *store.DB
	log    *zap.Logger
	table  string
	stage  Stage
	passes int
}

func (r *rebuild) shadowName() string { return r.table + "__bomdesk_shadow" }

func (r *rebuild) advance(s Stage) {
	r.stage = s
	r.log.Debug("rebuild stage", zap.String("table", r.table), zap.Int("pass", r.passes+1), zap.Stringer("stage", s))
}

func (r *rebuild) fail(err error) error {
	return &store.SchemaMutationError{Table: r.table, Stage: r.stage.String(), Err: err}
}

func (r *rebuild) run(ctx context.Context, tx *sql.Tx, target Table) error {
	r.advance(StageIntrospected)
	shadow := r.shadowName()
	cols := quotedList(target.ColumnNames())

	shadowDesc := target
	shadowDesc.Name = shadow
	if _, err := tx.ExecContext(ctx, RenderCreateTable(shadowDesc)); err != nil {
		return r.fail(fmt.Errorf("create shadow: %w", err))
	}
	r.advance(StageShadowCreated)

	res, err := tx.ExecContext(ctx, "INSERT INTO "+quote(shadow)+" ("+cols+") SELECT "+cols+" FROM "+quote(r.table))
	if err != nil {
		return r.fail(fmt.Errorf("copy rows: %w", err))
	}
	var before, after int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(r.table)).Scan(&before); err != nil {
		return r.fail(fmt.Errorf("count original: %w", err))
	}
	if after, err = res.RowsAffected(); err != nil {
		return r.fail(fmt.Errorf("count copied rows: %w", err))
	}
	if after != before {
		return r.fail(fmt.Errorf("copied %d of %d rows", after, before))
	}
	r.advance(StageDataCopied)

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quote(r.table)); err != nil {
		return r.fail(fmt.Errorf("drop original: %w", err))
	}
	r.advance(StageOriginalDropped)

	if _, err := tx.ExecContext(ctx, "ALTER TABLE "+quote(shadow)+" RENAME TO "+quote(r.table)); err != nil {
		return r.fail(fmt.Errorf("rename shadow: %w", err))
	}
	r.advance(StageRenamed)
	r.passes++
	return nil
}

func (r *rebuild) restore(ctx context.Context, tx *sql.Tx, objects []string) error {
	for _, ddl := range objects {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return r.fail(fmt.Errorf("restore %q: %w", ddl, err))
		}
	}
	r.advance(StageIndexesRestored)
	return nil
}

// alterPostgres swaps the primary key constraint in place.
func (m *Mutator) alterPostgres(ctx context.Context, desc Table, column string) error {
	constraint, err := m.db.PrimaryKeyConstraint(ctx, desc.Name)
	if err != nil {
		return err
	}
	stage := StageIntrospected
	err = m.db.InTx(ctx, func(tx *sql.Tx) error {
		if constraint != "" {
			if _, err := tx.ExecContext(ctx, "ALTER TABLE "+quote(desc.Name)+" DROP CONSTRAINT "+quote(constraint)); err != nil {
				return fmt.Errorf("drop constraint: %w", err)
			}
			stage = StageKeyDropped
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+quote(desc.Name)+" ADD PRIMARY KEY ("+quote(column)+")"); err != nil {
			return fmt.Errorf("add primary key: %w", err)
		}
		stage = StageKeyAdded
		if err := m.db.SetKeyColumnTx(ctx, tx, desc.Name, column, desc.ColumnNames()); err != nil {
			return err
		}
		stage = StageStylesUpdated
		return nil
	})
	if err != nil {
		return &store.SchemaMutationError{Table: desc.Name, Stage: stage.String(), Err: err}
	}
	return nil
}
