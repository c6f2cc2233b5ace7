package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsEnvFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BATCH_SIZE=9\nWORKERS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("WORKERS=7\nEMBED_MODE=sidecar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	for _, k := range []string{"BATCH_SIZE", "WORKERS", "EMBED_MODE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 9 {
		t.Fatalf("expected batch size from .env, got %d", cfg.BatchSize)
	}
	// godotenv never overrides a variable that is already set
	if cfg.Workers != 3 {
		t.Fatalf("expected .env to win over .env.local, got %d", cfg.Workers)
	}
	if cfg.EmbedMode != "sidecar" {
		t.Fatalf("expected embed mode from .env.local, got %q", cfg.EmbedMode)
	}
}

func TestLoadWithoutFiles(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BATCH_SIZE", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 4 {
		t.Fatalf("expected env value, got %d", cfg.BatchSize)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
