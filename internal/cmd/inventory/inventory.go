// Package inventory parses inventory command flags and launches the
// inventory runtime.
package inventory

import (
	"context"
	"flag"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/app"
	entrypoint "github.com/louisbranch/stockroom/internal/platform/cmd"
)

// Config holds inventory command configuration.
type Config struct {
	Port          int           `env:"STOCKROOM_INVENTORY_PORT" envDefault:"8091"`
	DBPath        string        `env:"STOCKROOM_INVENTORY_DB_PATH" envDefault:"data/inventory.db"`
	PollInterval  time.Duration `env:"STOCKROOM_INVENTORY_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL      time.Duration `env:"STOCKROOM_INVENTORY_LEASE_TTL" envDefault:"30s"`
	ClaimBatch    int           `env:"STOCKROOM_INVENTORY_CLAIM_BATCH" envDefault:"16"`
	MaxAttempts   int           `env:"STOCKROOM_INVENTORY_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"STOCKROOM_INVENTORY_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"STOCKROOM_INVENTORY_RETRY_MAX_DELAY" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The inventory health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The inventory SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Outbox lease duration")
	fs.IntVar(&cfg.ClaimBatch, "claim-batch", cfg.ClaimBatch, "Maximum outbox entries claimed per poll")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the inventory runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceInventory, func(ctx context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			ClaimBatch:    cfg.ClaimBatch,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		})
	})
}
