package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if a.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("health: partial store unreachable")
			a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unavailable"})
			return
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
