package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"metapro/internal/domain"
	"metapro/internal/infra"
	"metapro/internal/pipeline"
)

// Runner is the pipeline surface the handlers need.
type Runner interface {
	Run(ctx context.Context, items []domain.SourceItem) (*pipeline.Result, error)
	Recover(ctx context.Context, runID string) ([]domain.Outcome, error)
	Artifact(ctx context.Context, runID, name string) ([]byte, error)
}

type App struct {
	Runner         Runner
	Store          domain.PartialStore
	Config         *infra.Config
	Logger         *infra.Logger
	Counters       *Counters
	MaxUploadBytes int64
}

func NewApp(runner Runner, store domain.PartialStore, cfg *infra.Config, logger *infra.Logger) *App {
	app := &App{Runner: runner, Store: store, Config: cfg, Logger: infra.OrDiscard(logger), Counters: NewCounters()}
	if cfg != nil {
		app.MaxUploadBytes = cfg.MaxUploadBytes
	}
	if app.MaxUploadBytes <= 0 {
		app.MaxUploadBytes = 512 << 20
	}
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.errorWithDetails(w, code, errCode, message, nil)
}

func (a *App) errorWithDetails(w http.ResponseWriter, code int, errCode, message string, details map[string]any) {
	body := map[string]any{"code": errCode, "message": message}
	if len(details) > 0 {
		body["details"] = details
	}
	a.json(w, code, map[string]any{"error": body})
}
