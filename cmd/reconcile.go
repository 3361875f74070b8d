// cmd/reconcile.go

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cerr "github.com/cockroachdb/errors"

	"github.com/amareque/challenge-senior-engineer/pkg/reconcile"
	"github.com/amareque/challenge-senior-engineer/pkg/remote"
	"github.com/amareque/challenge-senior-engineer/pkg/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a single reconciliation pass and exit",
	Long: `Pulls the full remote snapshot once and merges it into the local store.
Useful for converging on demand instead of waiting out the serve loop's
interval, and for running the engine without a resident process.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return cerr.Wrap(err, "invalid configuration")
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return cerr.Wrap(err, "open store")
	}
	defer st.Close()

	remoteClient := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteBaseURL,
		Timeout: cfg.RemoteTimeout,
	})

	scheduler := reconcile.NewScheduler(
		reconcile.NewReconciler(st, remoteClient),
		cfg.ReconcileInterval,
		cfg.ReconcileTimeout,
	)
	if err := scheduler.RunOnce(ctx); err != nil {
		return cerr.Wrap(err, "reconciliation pass")
	}
	zap.L().Info("Reconciliation pass succeeded")
	return nil
}
