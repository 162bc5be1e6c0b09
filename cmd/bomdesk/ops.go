package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"bomdesk/engine"
)

// One-shot maintenance commands. They run the same engine operations as the
// HTTP routes, so runs are audited; broker publishing is left to the service.

var actorName string

var setPrimaryKeyCmd = &cobra.Command{
	Use:   "set-primary-key <table> <column>",
	Short: "Make column the sole primary key of table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.SetPrimaryKey(ctx, args[0], args[1])
		})
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <project>",
	Short: "Recompute part unit weights and unit weights of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.RecomputePartWeights(ctx, args[0])
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [project]",
	Short: "Sync derived numbers of units not in a packaging list (all projects when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := ""
		if len(args) == 1 {
			project = args[0]
		}
		return runOp(cmd.Context(), func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.SyncUnregisteredUnits(ctx, project)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh-parts <project>",
	Short: "Copy part name, manufacturer and unit weight onto the project's units",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.RefreshPartInfoOnUnits(ctx, args[0])
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{setPrimaryKeyCmd, recomputeCmd, syncCmd, refreshCmd} {
		c.Flags().StringVar(&actorName, "actor", "cli", "name recorded in the audit log")
	}
}

// runOp opens the database, runs op through an engine with messaging
// disabled and prints the result as JSON.
func runOp(ctx context.Context, op func(context.Context, *engine.Engine) (any, error)) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.cfg.Messaging.Backend = "none"
	eng := engine.New(engine.Config{AppConfig: a.cfg, ConfigPath: configPath, DB: a.db, Logger: a.log})
	eng.Start()
	defer eng.Stop()

	if ctx == nil {
		ctx = context.Background()
	}
	res, err := op(engine.WithActor(ctx, actorName), eng)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
