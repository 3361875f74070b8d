// cmd/serve.go

package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/api"
	"github.com/amareque/challenge-senior-engineer/pkg/events"
	"github.com/amareque/challenge-senior-engineer/pkg/outbound"
	"github.com/amareque/challenge-senior-engineer/pkg/reconcile"
	"github.com/amareque/challenge-senior-engineer/pkg/remote"
	"github.com/amareque/challenge-senior-engineer/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CRUD API, the outbound synchronizer and the reconciliation loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return cerr.Wrap(err, "invalid configuration")
	}
	log := zap.L().Named("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return cerr.Wrap(err, "open store")
	}
	defer st.Close()
	if err := st.AutoMigrate(); err != nil {
		return cerr.Wrap(err, "migrate schema")
	}

	bus, err := events.NewBus(ctx, events.BusConfig{URL: cfg.RedisURL})
	if err != nil {
		return cerr.Wrap(err, "connect event stream")
	}
	defer bus.Close()

	remoteClient := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteBaseURL,
		Timeout: cfg.RemoteTimeout,
	})

	// Outbound: one consumer goroutine draining the change event stream.
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	syncer := outbound.NewSyncer(st, remoteClient)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- bus.Run(consumerCtx, syncer.Handle)
	}()

	// Inbound: the periodic reconciliation loop.
	scheduler := reconcile.NewScheduler(
		reconcile.NewReconciler(st, remoteClient),
		cfg.ReconcileInterval,
		cfg.ReconcileTimeout,
	)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(st, bus).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return cerr.Wrap(err, "http server")
	case err := <-consumerDone:
		return cerr.Wrap(err, "event consumer stopped")
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	cancelConsumer()
	if err := <-consumerDone; err != nil {
		log.Warn("Event consumer exited with error", zap.Error(err))
	}
	return nil
}
