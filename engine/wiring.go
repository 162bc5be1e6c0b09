package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bomdesk/messaging"
)

func (e *Engine) wireEventHandlers() {
	// Audit every domain change.
	e.Events.SubscribeTypes(func(evt Event) {
		e.audit(evt)
	}, EventPartsRecomputed, EventUnitsSynced, EventListCreated, EventListDeleted,
		EventUnitsRefreshed, EventKeyChanged, EventBOMChanged)

	// Anything touching a project's rows makes its cached summary stale.
	e.Events.SubscribeTypes(func(evt Event) {
		if project, ok := ProjectOf(evt); ok {
			e.summary.Invalidate(context.Background(), project)
		}
	}, EventPartsRecomputed, EventUnitsSynced, EventListCreated, EventListDeleted,
		EventUnitsRefreshed, EventBOMChanged)

	// A key change can rebuild any table, so drop every cached summary.
	e.Events.SubscribeTypes(func(evt Event) {
		e.summary.Invalidate(context.Background(), "")
	}, EventKeyChanged)

	// Broker notifications go through the outbox.
	if e.publishing() {
		e.Events.SubscribeTypes(func(evt Event) {
			e.enqueue(evt)
		}, EventPartsRecomputed, EventUnitsSynced, EventListCreated,
			EventUnitsRefreshed, EventKeyChanged)
	}

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.log.Info("messaging status", zap.String("event", evt.Type.String()), zap.String("detail", ev.Detail))
	}, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) audit(evt Event) {
	var entityType, entityID, action, newValue, actor string
	switch ev := evt.Payload.(type) {
	case PartsRecomputedEvent:
		entityType, entityID, action, actor = "project", ev.ProjectID, "recomputed", ev.Actor
		newValue = fmt.Sprintf("parts=%d units=%d", ev.UpdatedPartCount, ev.UpdatedUnitCount)
	case UnitsSyncedEvent:
		entityType, entityID, action, actor = "project", ev.ProjectID, "synced", ev.Actor
		newValue = fmt.Sprintf("synced=%d weight_changed=%d skipped=%d", ev.SyncedCount, ev.UpdatedWeightCount, ev.SkippedCount)
	case ListCreatedEvent:
		entityType, entityID, action, actor = "konpo_list", ev.KonpoID, "created", ev.Actor
		newValue = fmt.Sprintf("project=%s units=%d", ev.ProjectID, ev.UpdatedCount)
	case ListDeletedEvent:
		entityType, entityID, action, actor = "konpo_list", ev.KonpoID, "deleted", ev.Actor
		newValue = "project=" + ev.ProjectID
	case UnitsRefreshedEvent:
		entityType, entityID, action, actor = "project", ev.ProjectID, "refreshed", ev.Actor
		newValue = fmt.Sprintf("updated=%d skipped=%d", ev.UpdatedCount, ev.SkippedCount)
	case KeyChangedEvent:
		entityType, entityID, action, actor = "table", ev.Table, "key_changed", ev.Actor
		newValue = fmt.Sprintf("column=%s rows=%d", ev.Column, ev.Rows)
	case BOMChangedEvent:
		entityType, entityID, action, actor = ev.Entity, ev.EntityID, ev.Action, ev.Actor
		newValue = "project=" + ev.ProjectID
	default:
		return
	}
	if err := e.db.AppendAudit(context.Background(), entityType, entityID, action, "", newValue, actor); err != nil {
		e.log.Error("append audit", zap.String("event", evt.Type.String()), zap.Error(err))
	}
}

// outboundMessage maps an event to its broker message type and payload.
func outboundMessage(evt Event) (string, any, bool) {
	switch ev := evt.Payload.(type) {
	case PartsRecomputedEvent:
		return messaging.TypePartsRecomputed, messaging.PartsRecomputed{
			Project: ev.ProjectID, UpdatedPartCount: ev.UpdatedPartCount, UpdatedUnitCount: ev.UpdatedUnitCount, Actor: ev.Actor,
		}, true
	case UnitsSyncedEvent:
		return messaging.TypeUnitsSynced, messaging.UnitsSynced{
			Project: ev.ProjectID, SyncedCount: ev.SyncedCount, UpdatedWeightCount: ev.UpdatedWeightCount, SkippedCount: ev.SkippedCount, Actor: ev.Actor,
		}, true
	case ListCreatedEvent:
		return messaging.TypeListCreated, messaging.ListCreated{
			Project: ev.ProjectID, KonpoID: ev.KonpoID, UpdatedCount: ev.UpdatedCount, Actor: ev.Actor,
		}, true
	case UnitsRefreshedEvent:
		return messaging.TypeUnitsRefreshed, messaging.UnitsRefreshed{
			Project: ev.ProjectID, UpdatedCount: ev.UpdatedCount, SkippedCount: ev.SkippedCount, Actor: ev.Actor,
		}, true
	case KeyChangedEvent:
		return messaging.TypeKeyChanged, messaging.KeyChanged{
			Table: ev.Table, Column: ev.Column, Rebuilds: ev.Rebuilds, Rows: ev.Rows, Actor: ev.Actor,
		}, true
	}
	return "", nil, false
}

func (e *Engine) enqueue(evt Event) {
	msgType, payload, ok := outboundMessage(evt)
	if !ok {
		return
	}
	station := e.cfg.Messaging.StationID
	data, err := messaging.NewEnvelope(msgType, station, payload).Encode()
	if err != nil {
		e.log.Error("encode envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := e.db.EnqueueOutbox(context.Background(), e.cfg.Messaging.EventsTopic, data, msgType, station); err != nil {
		e.log.Error("enqueue outbox", zap.String("type", msgType), zap.Error(err))
	}
}
