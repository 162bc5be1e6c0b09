package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bomdesk/engine"
	"bomdesk/messaging"
	"bomdesk/summary"
	"bomdesk/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis not available, summaries served from SQL", zap.Error(err))
	} else {
		log.Info("redis connected", zap.String("addr", cfg.Redis.Address))
	}
	cancel()
	summaries := summary.NewManager(a.db, summary.NewRedisStore(redisClient, cfg.Redis.TTL), log)

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging, log)
	if err := msgClient.Connect(); err != nil {
		log.Warn("messaging connect failed", zap.String("backend", msgClient.Backend()), zap.Error(err))
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: configPath,
		DB:         a.db,
		Summary:    summaries,
		MsgClient:  msgClient,
		Logger:     log,
	})
	eng.Start()
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng, log)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("web server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("ready", zap.String("version", Version))
	if err := g.Wait(); err != nil {
		log.Error("serve", zap.Error(err))
		return err
	}
	log.Info("stopped")
	return nil
}
