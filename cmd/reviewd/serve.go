package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/pr-reviewer/internal/config"
	"github.com/jonathan/pr-reviewer/internal/gateway"
	"github.com/jonathan/pr-reviewer/internal/pipeline"
	"github.com/jonathan/pr-reviewer/internal/server"
	"github.com/jonathan/pr-reviewer/internal/store"
	"github.com/jonathan/pr-reviewer/internal/worker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server and worker pool",
	Long:  `Start the HTTP server that accepts review submissions and the worker pool that executes the review pipeline.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jobStore store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		jobStore = pg
		log.Printf("[reviewd] using PostgreSQL job store")
	} else {
		jobStore = store.NewMemory()
		log.Printf("[reviewd] using in-memory job store")
	}

	analysis, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("failed to create analysis client: %w", err)
	}
	defer analysis.Close()

	codeHost := gateway.NewGitHub(cfg.GitHubAPIURL)
	engine := pipeline.New(jobStore, codeHost, analysis, pipeline.Options{MaxAttempts: cfg.MaxAttempts})
	scheduler := worker.NewScheduler(engine, cfg.WorkerCount, cfg.QueueSize)

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- scheduler.Run(ctx)
	}()

	srv := server.New(server.Config{Port: cfg.Port}, jobStore, scheduler)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	select {
	case err := <-serverDone:
		stop()
		<-workersDone
		return err
	case <-ctx.Done():
	}

	log.Println("[reviewd] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-workersDone; err != nil {
		return err
	}
	log.Println("[reviewd] stopped")
	return nil
}
