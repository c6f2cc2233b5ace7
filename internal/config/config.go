// Package config loads the process environment for the binaries.
package config

import (
	"github.com/joho/godotenv"

	"metapro/internal/infra"
)

// EnvFiles are read in order when present. Variables already set in the
// environment win over file values.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnv reads the env files that exist and ignores the ones that do not.
func LoadEnv() {
	for _, f := range EnvFiles {
		_ = godotenv.Load(f)
	}
}

// Load reads the env files, then builds and validates the configuration.
func Load() (*infra.Config, error) {
	LoadEnv()
	return infra.LoadConfig()
}
