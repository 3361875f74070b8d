// cmd/root.go

// Package cmd wires the listsync subcommands: serve runs the API and both
// synchronizers, reconcile runs one inbound pass, migrate prepares the
// schema.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/config"
	"github.com/amareque/challenge-senior-engineer/pkg/logger"
)

// RootCmd is the base command for listsync.
var RootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "Keeps the local list store and the remote list API eventually consistent",
	Long: `listsync owns a local relational store of todo lists and mirrors it against a
remote HTTP list API. Local mutations flow outward through a change event
stream; a periodic reconciler pulls the remote snapshot back in and repairs
whatever the outbound path missed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	config.RegisterFlags(RootCmd)
	RootCmd.AddCommand(serveCmd, reconcileCmd, migrateCmd)
}

// Execute runs the CLI and flushes logs on the way out.
func Execute() {
	defer logger.Sync()

	if err := RootCmd.Execute(); err != nil {
		zap.L().Error("Command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the configured logger. Every
// subcommand goes through it first.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}
