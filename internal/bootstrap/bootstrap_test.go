package bootstrap

import (
	"context"
	"errors"
	"testing"

	"metapro/internal/domain"
	"metapro/internal/embed"
	"metapro/internal/infra"
	"metapro/internal/partial"
	"metapro/internal/quota"
)

func localConfig(t *testing.T) *infra.Config {
	return &infra.Config{
		DescribeProvider: infra.ProviderGemini,
		BatchSize:        6,
		Workers:          2,
		MaxAttempts:      3,
		MaxItemsPerRun:   100,
		PartialStore:     infra.PartialStoreFile,
		EmbedMode:        infra.EmbedModeSidecar,
		StoragePath:      t.TempDir(),
		DefaultCategory:  "3",
	}
}

func TestBuildLocal(t *testing.T) {
	d, err := Build(context.Background(), localConfig(t), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer d.Close()
	if d.Pipeline == nil || d.Artifacts == nil {
		t.Fatal("pipeline not assembled")
	}
	if _, ok := d.Store.(*partial.FileStore); !ok {
		t.Fatalf("expected file store, got %T", d.Store)
	}
	if err := d.Store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestBuildWriterSidecar(t *testing.T) {
	w, err := buildWriter(&infra.Config{EmbedMode: infra.EmbedModeSidecar}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(embed.SidecarWriter); !ok {
		t.Fatalf("expected sidecar writer, got %T", w)
	}
}

func TestBuildQuotaWithoutLedger(t *testing.T) {
	p := buildQuota(&infra.Config{MaxItemsPerRun: 2, DailyItemQuota: 50}, nil, nil, nil)
	chain, ok := p.(quota.Chain)
	if !ok || len(chain) != 1 {
		t.Fatalf("expected the per-run policy only, got %#v", p)
	}
	if _, err := p.CheckAndReserve(context.Background(), 3); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected per-run refusal, got %v", err)
	}
}

func TestBuildWriterFallsBackWithoutLogger(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	w, err := buildWriter(&infra.Config{EmbedMode: infra.EmbedModeExiftool}, nil)
	if err != nil {
		t.Fatalf("build writer: %v", err)
	}
	if c, ok := w.(*embed.ExiftoolWriter); ok {
		_ = c.Close()
		t.Skip("exiftool still resolvable")
	}
	if _, ok := w.(embed.SidecarWriter); !ok {
		t.Fatalf("expected sidecar fallback, got %T", w)
	}
}
