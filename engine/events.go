package engine

const (
	EventPartsRecomputed EventType = iota + 1
	EventUnitsSynced
	EventListCreated
	EventListDeleted
	EventUnitsRefreshed
	EventKeyChanged
	EventBOMChanged
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventPartsRecomputed:       "parts-recomputed",
	EventUnitsSynced:           "units-synced",
	EventListCreated:           "list-created",
	EventListDeleted:           "list-deleted",
	EventUnitsRefreshed:        "units-refreshed",
	EventKeyChanged:            "key-changed",
	EventBOMChanged:            "bom-changed",
	EventMessagingConnected:    "messaging-connected",
	EventMessagingDisconnected: "messaging-disconnected",
}

// String returns the SSE event name.
func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type PartsRecomputedEvent struct {
	ProjectID        string `json:"project"`
	UpdatedPartCount int    `json:"updated_part_count"`
	UpdatedUnitCount int    `json:"updated_unit_count"`
	Actor            string `json:"actor"`
}

type UnitsSyncedEvent struct {
	ProjectID          string `json:"project"`
	SyncedCount        int    `json:"synced_count"`
	UpdatedWeightCount int    `json:"updated_weight_count"`
	SkippedCount       int    `json:"skipped_count"`
	Actor              string `json:"actor"`
}

type ListCreatedEvent struct {
	ProjectID    string `json:"project"`
	KonpoID      string `json:"konpo_id"`
	UpdatedCount int    `json:"updated_count"`
	Actor        string `json:"actor"`
}

type ListDeletedEvent struct {
	ProjectID string `json:"project"`
	KonpoID   string `json:"konpo_id"`
	Actor     string `json:"actor"`
}

type UnitsRefreshedEvent struct {
	ProjectID    string `json:"project"`
	UpdatedCount int    `json:"updated_count"`
	SkippedCount int    `json:"skipped_count"`
	Actor        string `json:"actor"`
}

type KeyChangedEvent struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Rebuilds int    `json:"rebuilds"`
	Rows     int64  `json:"rows"`
	Actor    string `json:"actor"`
}

// BOMChangedEvent reports a CRUD change to parts, materials or units.
type BOMChangedEvent struct {
	ProjectID string `json:"project"`
	Entity    string `json:"entity"` // "part", "material", "unit"
	EntityID  string `json:"entity_id"`
	Action    string `json:"action"` // "created", "deleted"
	Actor     string `json:"actor"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}

// ProjectOf returns the project an event concerns, if any.
func ProjectOf(evt Event) (string, bool) {
	switch ev := evt.Payload.(type) {
	case PartsRecomputedEvent:
		return ev.ProjectID, true
	case UnitsSyncedEvent:
		return ev.ProjectID, true
	case ListCreatedEvent:
		return ev.ProjectID, true
	case ListDeletedEvent:
		return ev.ProjectID, true
	case UnitsRefreshedEvent:
		return ev.ProjectID, true
	case BOMChangedEvent:
		return ev.ProjectID, true
	}
	return "", false
}
