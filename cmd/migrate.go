// cmd/migrate.go

package cmd

import (
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the local store schema and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(cmd.Context(), cfg.PostgresDSN)
	if err != nil {
		return cerr.Wrap(err, "open store")
	}
	defer st.Close()

	if err := st.AutoMigrate(); err != nil {
		return cerr.Wrap(err, "migrate schema")
	}
	zap.L().Info("Schema is up to date")
	return nil
}
