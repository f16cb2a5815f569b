package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"agrimate/internal/api"
	"agrimate/internal/auth"
	"agrimate/internal/kvstore"
	"agrimate/internal/service/ai"
	"agrimate/internal/worker"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Printf("storage: %s (%s)", cfg.Storage.Backend, cfg.Storage.Driver)
	store, closer, err := kvstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closer.Close()

	if err := os.MkdirAll(cfg.BasicConfig.MediaDir, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assistant, err := ai.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init assistant: %w", err)
	}
	workers := worker.NewManager(store, assistant, worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	defer workers.Close()

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTL) * time.Hour
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	authService := auth.NewService(kvstore.WithPrefix(store, "auth/"), tokenTTL)
	handlers := api.NewHandler(assistant, authService, workers, cfg.BasicConfig.MediaDir)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
