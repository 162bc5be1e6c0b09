package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS BOM_PART (
    PART_ID           TEXT NOT NULL,
    PART_PROJECT_ID   TEXT NOT NULL,
    PART_NAME         TEXT NOT NULL DEFAULT '',
    MANUFACTURER      TEXT NOT NULL DEFAULT '',
    PART_TANNI_WEIGHT REAL NOT NULL DEFAULT 0,
    CREATED_AT        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    UPDATED_AT        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    PRIMARY KEY (PART_ID, PART_PROJECT_ID)
);
CREATE INDEX IF NOT EXISTS idx_bom_part_project ON BOM_PART(PART_PROJECT_ID);

CREATE TABLE IF NOT EXISTS BOM_BUZAI (
    BUZAI_ID         TEXT PRIMARY KEY,
    BUZAI_PROJECT_ID TEXT NOT NULL,
    PART_ID          TEXT NOT NULL,
    BUZAI_NAME       TEXT NOT NULL DEFAULT '',
    MATERIAL         TEXT NOT NULL DEFAULT '',
    BUZAI_WEIGHT     REAL,
    CREATED_AT       TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_bom_buzai_part ON BOM_BUZAI(BUZAI_PROJECT_ID, PART_ID);

CREATE TABLE IF NOT EXISTS KONPO_TANNI (
    KONPO_TANNI_ID    TEXT PRIMARY KEY,
    PROJECT_ID        TEXT NOT NULL,
    PART_ID           TEXT NOT NULL,
    PART_NAME         TEXT NOT NULL DEFAULT '',
    MANUFACTURER      TEXT NOT NULL DEFAULT '',
    PART_TANNI_WEIGHT REAL NOT NULL DEFAULT 0,
    PART_KO           REAL NOT NULL DEFAULT 0,
    ZENSU_KO          REAL NOT NULL DEFAULT 1,
    BUZAI_WEIGHT      REAL NOT NULL DEFAULT 0,
    BUZAI_QUANTITY    REAL NOT NULL DEFAULT 0,
    KONPO_LIST_ID     TEXT,
    CREATED_AT        TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    UPDATED_AT        TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_konpo_tanni_part ON KONPO_TANNI(PROJECT_ID, PART_ID);
CREATE INDEX IF NOT EXISTS idx_konpo_tanni_list ON KONPO_TANNI(KONPO_LIST_ID);

CREATE TABLE IF NOT EXISTS KONPO_LIST (
    KONPO_LIST_ID TEXT PRIMARY KEY,
    PROJECT_ID    TEXT NOT NULL,
    KONPO_NAME    TEXT NOT NULL DEFAULT '',
    CREATED_BY    TEXT NOT NULL DEFAULT '',
    CREATED_AT    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_konpo_list_project ON KONPO_LIST(PROJECT_ID);

CREATE TABLE IF NOT EXISTS d_culum_style (
    table_name   TEXT NOT NULL,
    column_name  TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    width        INTEGER NOT NULL DEFAULT 120,
    sort_order   INTEGER NOT NULL DEFAULT 0,
    isKey        INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    station_id  TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
