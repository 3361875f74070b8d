// pkg/config/config.go

// Package config resolves deployment settings. Precedence is command-line
// flag, then LISTSYNC_* environment variable, then built-in default; flag
// names map to env names with dashes replaced by underscores, so
// --remote-base-url is LISTSYNC_REMOTE_BASE_URL.
package config

import (
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "LISTSYNC"

const (
	DefaultListenAddr        = ":8080"
	DefaultPostgresDSN       = "host=localhost user=listsync password=listsync dbname=listsync port=5432 sslmode=disable"
	DefaultRedisURL          = "redis://localhost:6379/0"
	DefaultLogLevel          = "info"
	DefaultReconcileInterval = 5 * time.Minute
	DefaultReconcileTimeout  = 2 * time.Minute
	DefaultRemoteTimeout     = 30 * time.Second
)

// Config carries every deployment knob the service reads at startup.
type Config struct {
	PostgresDSN       string
	RedisURL          string
	RemoteBaseURL     string
	ListenAddr        string
	LogLevel          string
	ReconcileInterval time.Duration
	ReconcileTimeout  time.Duration
	RemoteTimeout     time.Duration
}

// RegisterFlags declares the deployment flags on cmd. Registered as
// persistent flags on the root so every subcommand shares one surface.
func RegisterFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("postgres-dsn", DefaultPostgresDSN, "Postgres connection string for the local store")
	f.String("redis-url", DefaultRedisURL, "Redis URL for the change event stream")
	f.String("remote-base-url", "", "Base URL of the remote list API (required)")
	f.String("listen-addr", DefaultListenAddr, "HTTP listen address for the CRUD API")
	f.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	f.Duration("reconcile-interval", DefaultReconcileInterval, "How often a reconciliation pass runs")
	f.Duration("reconcile-timeout", DefaultReconcileTimeout, "Deadline for one reconciliation pass")
	f.Duration("remote-timeout", DefaultRemoteTimeout, "Per-request timeout for remote API calls")
}

// Load binds cmd's flags to the environment and materializes the Config.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := bindFlags(cmd, v); err != nil {
		return nil, cerr.Wrap(err, "bind flags")
	}

	return &Config{
		PostgresDSN:       v.GetString("postgres-dsn"),
		RedisURL:          v.GetString("redis-url"),
		RemoteBaseURL:     v.GetString("remote-base-url"),
		ListenAddr:        v.GetString("listen-addr"),
		LogLevel:          v.GetString("log-level"),
		ReconcileInterval: v.GetDuration("reconcile-interval"),
		ReconcileTimeout:  v.GetDuration("reconcile-timeout"),
		RemoteTimeout:     v.GetDuration("remote-timeout"),
	}, nil
}

// Validate checks the fields the sync engine cannot run without. Commands
// that only touch the local store (migrations) skip it.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.RemoteBaseURL == "" {
		result = multierror.Append(result, cerr.New("remote-base-url is required"))
	}
	if c.PostgresDSN == "" {
		result = multierror.Append(result, cerr.New("postgres-dsn is required"))
	}
	if c.RedisURL == "" {
		result = multierror.Append(result, cerr.New("redis-url is required"))
	}
	if c.ReconcileInterval <= 0 {
		result = multierror.Append(result, cerr.New("reconcile-interval must be positive"))
	}
	return result.ErrorOrNil()
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var result *multierror.Error
	bind := func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	cmd.PersistentFlags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return result.ErrorOrNil()
}
