// Package config layers service configuration: env-tagged struct defaults
// first, then an optional YAML file, then command-line flags. The server's
// HAXOR_* variables all enter through ParseEnv.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables per its env struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
