package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bomdesk/config"
	"bomdesk/konpo"
	"bomdesk/logging"
	"bomdesk/messaging"
	"bomdesk/schema"
	"bomdesk/store"
	"bomdesk/summary"
)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Summary    *summary.Manager
	MsgClient  *messaging.Client
	Logger     *zap.Logger
}

// Engine owns the core procedures and fans their outcomes out as events.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	summary    *summary.Manager
	msgClient  *messaging.Client
	mutator    *schema.Mutator
	propagator *konpo.Propagator
	drainer    *messaging.OutboxDrainer
	consumer   *messaging.Consumer
	Events     *EventBus
	log        *zap.Logger

	started      atomic.Bool
	stopOnce     sync.Once
	stopChan     chan struct{}
	healthDone   chan struct{}
	msgConnected bool
}

func New(c Config) *Engine {
	log := logging.OrNop(c.Logger)
	sm := c.Summary
	if sm == nil {
		sm = summary.NewManager(c.DB, nil, log)
	}
	mc := c.MsgClient
	if mc == nil {
		mc = messaging.NewClient(&c.AppConfig.Messaging, log)
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		summary:    sm,
		msgClient:  mc,
		mutator:    schema.New(c.DB, log),
		propagator: konpo.New(c.DB, log),
		Events:     NewEventBus(log),
		log:        log.Named("engine"),
		stopChan:   make(chan struct{}),
		healthDone: make(chan struct{}),
	}
}

// Start wires event handlers and starts the outbox drainer, the command
// consumer and the connection health loop.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wireEventHandlers()

	if e.publishing() {
		e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval, e.log)
		e.drainer.Start()

		if e.cfg.Messaging.CommandsTopic != "" {
			e.consumer = messaging.NewConsumer(e.msgClient, e.cfg.Messaging.CommandsTopic, &commandAdapter{e: e}, e.log)
			if err := e.consumer.Start(); err != nil {
				e.log.Warn("command consumer not started", zap.Error(err))
			}
		}
	}

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.log.Info("engine started", zap.String("messaging", e.msgClient.Backend()))
}

// Stop halts the background loops and waits for them to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if !e.started.Load() {
			return
		}
		<-e.healthDone
		if e.drainer != nil {
			e.drainer.Stop()
		}
		e.log.Info("engine stopped")
	})
}

// publishing reports whether events go to a broker through the outbox.
func (e *Engine) publishing() bool {
	return e.msgClient.Backend() != messaging.BackendNone
}

// Accessors
func (e *Engine) DB() *store.DB                 { return e.db }
func (e *Engine) AppConfig() *config.Config     { return e.cfg }
func (e *Engine) ConfigPath() string            { return e.configPath }
func (e *Engine) Summary() *summary.Manager     { return e.summary }
func (e *Engine) MsgClient() *messaging.Client  { return e.msgClient }
func (e *Engine) Mutator() *schema.Mutator      { return e.mutator }
func (e *Engine) Propagator() *konpo.Propagator { return e.propagator }

func (e *Engine) checkConnectionStatus() {
	if !e.publishing() {
		return
	}
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: e.msgClient.Backend() + " connected"}})
		}
	} else if e.msgConnected {
		e.msgConnected = false
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: e.msgClient.Backend() + " disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	defer close(e.healthDone)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// --- Core operations ---
//
// Each wrapper runs the procedure and emits an event on success. The acting
// user is read from ctx (see WithActor).

func (e *Engine) SetPrimaryKey(ctx context.Context, table, column string) (*schema.Result, error) {
	res, err := e.mutator.SetPrimaryKey(ctx, table, column)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventKeyChanged, Payload: KeyChangedEvent{
		Table: res.Table, Column: res.Column, Rebuilds: res.Rebuilds, Rows: res.Rows, Actor: ActorFrom(ctx),
	}})
	return res, nil
}

func (e *Engine) RecomputePartWeights(ctx context.Context, projectID string) (*konpo.RecomputeResult, error) {
	res, err := e.propagator.RecomputePartWeights(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventPartsRecomputed, Payload: PartsRecomputedEvent{
		ProjectID: projectID, UpdatedPartCount: res.UpdatedPartCount, UpdatedUnitCount: res.UpdatedUnitCount, Actor: ActorFrom(ctx),
	}})
	return res, nil
}

func (e *Engine) SyncUnregisteredUnits(ctx context.Context, projectID string) (*konpo.SyncResult, error) {
	res, err := e.propagator.SyncUnregisteredUnits(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventUnitsSynced, Payload: UnitsSyncedEvent{
		ProjectID: projectID, SyncedCount: res.SyncedCount, UpdatedWeightCount: res.UpdatedWeightCount, SkippedCount: res.SkippedCount, Actor: ActorFrom(ctx),
	}})
	return res, nil
}

func (e *Engine) CreatePackagingList(ctx context.Context, projectID string, unitIDs []string) (*konpo.ListResult, error) {
	actor := ActorFrom(ctx)
	res, err := e.propagator.CreatePackagingList(ctx, projectID, unitIDs, actor)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventListCreated, Payload: ListCreatedEvent{
		ProjectID: projectID, KonpoID: res.KonpoID, UpdatedCount: res.UpdatedCount, Actor: actor,
	}})
	return res, nil
}

func (e *Engine) RefreshPartInfoOnUnits(ctx context.Context, projectID string) (*konpo.RefreshResult, error) {
	res, err := e.propagator.RefreshPartInfoOnUnits(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventUnitsRefreshed, Payload: UnitsRefreshedEvent{
		ProjectID: projectID, UpdatedCount: res.UpdatedCount, SkippedCount: res.SkippedCount, Actor: ActorFrom(ctx),
	}})
	return res, nil
}

func (e *Engine) DeletePackagingList(ctx context.Context, projectID, listID string) error {
	if err := e.db.DeleteKonpoList(ctx, projectID, listID); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventListDeleted, Payload: ListDeletedEvent{ProjectID: projectID, KonpoID: listID, Actor: ActorFrom(ctx)}})
	return nil
}

// NotifyBOMChanged records a CRUD change made outside the propagator.
func (e *Engine) NotifyBOMChanged(ctx context.Context, projectID, entity, entityID, action string) {
	e.Events.Emit(Event{Type: EventBOMChanged, Payload: BOMChangedEvent{
		ProjectID: projectID, Entity: entity, EntityID: entityID, Action: action, Actor: ActorFrom(ctx),
	}})
}
