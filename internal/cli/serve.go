package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"attendsync/internal/api"
	"attendsync/internal/syncer"
)

// NewServeCommand creates the serve command: the local HTTP surface plus the
// background sync worker.
func NewServeCommand() *cobra.Command {
	var syncInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API and the background sync worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(syncInterval)
		},
	}

	cmd.Flags().DurationVar(&syncInterval, "sync-interval", 5*time.Minute,
		"periodic reconciliation interval (0 disables the ticker)")
	return cmd
}

func runServe(syncInterval time.Duration) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := &syncer.Worker{
		Queue:      a.triggers,
		Reconciler: a.reconciler,
		Interval:   syncInterval,
	}
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sync worker failed: %v", err)
		}
	}()

	server := api.New(a.cfg, a.store, a.orchestrator, a.triggers, a.exporter, a.monitor, a.redis)
	srv := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      server.Engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting agent on :%s", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("agent exited")
	return nil
}
