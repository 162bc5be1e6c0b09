package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bomdesk/config"
	"bomdesk/logging"
	"bomdesk/store"
)

var Version = "dev"

var (
	configPath string
	overlay    *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "bomdesk",
	Short: "BOM packaging weight service",
	Long: `bomdesk keeps part, material and packaging unit weights consistent and
groups packaging units into shipping lists.

Run without a subcommand to start the HTTP service.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bomdesk", Version)
	},
}

func init() {
	overlay = config.NewOverlay()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "bomdesk.yaml", "path to config file")
	pf.Int(config.KeyPort, 0, "HTTP port (overrides config)")
	pf.String(config.KeyDriver, "", "database driver: sqlite or postgres")
	pf.String(config.KeyDBPath, "", "SQLite database path")
	pf.String(config.KeyLogLevel, "", "log level")
	for _, key := range []string{config.KeyPort, config.KeyDriver, config.KeyDBPath, config.KeyLogLevel} {
		overlay.BindPFlag(key, pf.Lookup(key))
	}

	rootCmd.AddCommand(serveCmd, setPrimaryKeyCmd, recomputeCmd, syncCmd, refreshCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every subcommand needs: config, logger and an open database.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *store.DB
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Apply(overlay)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database open", zap.String("driver", cfg.Database.Driver))
	return &app{cfg: cfg, log: logger, db: db}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.log.Sync()
}
