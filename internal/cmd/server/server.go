// Package server parses server command flags and composes the service
// entrypoint.
package server

import (
	"context"
	"flag"
	"fmt"

	app "github.com/banuni/haxor-mk2/internal/chat/app"
	entrypoint "github.com/banuni/haxor-mk2/internal/platform/cmd"
	"github.com/banuni/haxor-mk2/internal/platform/config"
)

// Config holds server command configuration. Values layer in order: env
// defaults, an optional YAML config file, then flag overrides.
type Config struct {
	HTTPAddr     string `env:"HAXOR_HTTP_ADDR"     envDefault:":3000" yaml:"http_addr"`
	DBPath       string `env:"HAXOR_DB_PATH"       envDefault:"data/haxor.db" yaml:"db_path"`
	MasterID     string `env:"HAXOR_MASTER_ID"     envDefault:"master" yaml:"master_id"`
	HistoryLimit int    `env:"HAXOR_HISTORY_LIMIT" envDefault:"50" yaml:"history_limit"`
	ConfigFile   string `env:"HAXOR_CONFIG_FILE"   yaml:"-"`
}

// ParseConfig parses environment, optional config file, and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := config.LoadFile(cfg.ConfigFile, &cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.MasterID, "master-id", cfg.MasterID, "privileged master identity")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "messages included in the initial snapshot")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the realtime app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		if err := app.Run(ctx, app.Config{
			HTTPAddr:     cfg.HTTPAddr,
			DBPath:       cfg.DBPath,
			MasterID:     cfg.MasterID,
			HistoryLimit: cfg.HistoryLimit,
		}); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
}
