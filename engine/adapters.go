package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bomdesk/messaging"
)

const commandTimeout = 5 * time.Minute

// commandAdapter runs broker commands through the engine so they are audited
// and published like requests from the web UI.
type commandAdapter struct {
	e *Engine
}

func (a *commandAdapter) context(env *messaging.Envelope, cmd messaging.ProjectCommand) (context.Context, context.CancelFunc) {
	actor := cmd.Actor
	if actor == "" {
		actor = "station:" + env.StationID
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	return WithActor(ctx, actor), cancel
}

func (a *commandAdapter) HandleRecompute(env *messaging.Envelope, cmd messaging.ProjectCommand) {
	ctx, cancel := a.context(env, cmd)
	defer cancel()
	if _, err := a.e.RecomputePartWeights(ctx, cmd.Project); err != nil {
		a.fail(env, cmd, err)
	}
}

func (a *commandAdapter) HandleSync(env *messaging.Envelope, cmd messaging.ProjectCommand) {
	ctx, cancel := a.context(env, cmd)
	defer cancel()
	if _, err := a.e.SyncUnregisteredUnits(ctx, cmd.Project); err != nil {
		a.fail(env, cmd, err)
	}
}

func (a *commandAdapter) HandleRefresh(env *messaging.Envelope, cmd messaging.ProjectCommand) {
	ctx, cancel := a.context(env, cmd)
	defer cancel()
	if _, err := a.e.RefreshPartInfoOnUnits(ctx, cmd.Project); err != nil {
		a.fail(env, cmd, err)
	}
}

func (a *commandAdapter) fail(env *messaging.Envelope, cmd messaging.ProjectCommand, err error) {
	a.e.log.Warn("command failed",
		zap.String("type", env.MsgType), zap.String("msg_id", env.MsgID),
		zap.String("project", cmd.Project), zap.Error(err))
}
