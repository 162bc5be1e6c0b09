package messaging

import "time"

// Envelope is the wrapper for every message bomdesk publishes or consumes.
type Envelope struct {
	MsgType   string    `json:"msg_type"`
	MsgID     string    `json:"msg_id"`
	StationID string    `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Outbound message types.
const (
	TypePartsRecomputed = "parts.recomputed"
	TypeUnitsSynced     = "units.synced"
	TypeListCreated     = "list.created"
	TypeUnitsRefreshed  = "units.refreshed"
	TypeKeyChanged      = "schema.key_changed"
)

// Inbound command types.
const (
	TypeRecomputeRequest = "recompute.request"
	TypeSyncRequest      = "sync.request"
	TypeRefreshRequest   = "refresh.request"
)

// --- Outbound payloads ---

type PartsRecomputed struct {
	Project          string `json:"project"`
	UpdatedPartCount int    `json:"updated_part_count"`
	UpdatedUnitCount int    `json:"updated_unit_count"`
	Actor            string `json:"actor"`
}

type UnitsSynced struct {
	Project            string `json:"project,omitempty"`
	SyncedCount        int    `json:"synced_count"`
	UpdatedWeightCount int    `json:"updated_weight_count"`
	SkippedCount       int    `json:"skipped_count"`
	Actor              string `json:"actor"`
}

type ListCreated struct {
	Project      string `json:"project"`
	KonpoID      string `json:"konpo_id"`
	UpdatedCount int    `json:"updated_count"`
	Actor        string `json:"actor"`
}

type UnitsRefreshed struct {
	Project      string `json:"project,omitempty"`
	UpdatedCount int    `json:"updated_count"`
	SkippedCount int    `json:"skipped_count"`
	Actor        string `json:"actor"`
}

type KeyChanged struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Rebuilds int    `json:"rebuilds"`
	Rows     int64  `json:"rows"`
	Actor    string `json:"actor"`
}

// --- Inbound payloads ---

// ProjectCommand asks bomdesk to run a propagation for a project. An empty
// project means every project where the operation allows it.
type ProjectCommand struct {
	Project string `json:"project"`
	Actor   string `json:"actor,omitempty"`
}
