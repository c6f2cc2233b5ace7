package handlers

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Counters accumulates run totals for this process.
type Counters struct {
	runs      atomic.Int64
	refused   atomic.Int64
	items     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	started   time.Time
}

func NewCounters() *Counters {
	return &Counters{started: time.Now()}
}

func (c *Counters) recordRun(items, succeeded, failed int) {
	c.runs.Add(1)
	c.items.Add(int64(items))
	c.succeeded.Add(int64(succeeded))
	c.failed.Add(int64(failed))
}

func (c *Counters) recordRefusal() { c.refused.Add(1) }

func (a *App) Metrics(w http.ResponseWriter, _ *http.Request) {
	c := a.Counters
	a.json(w, http.StatusOK, map[string]any{
		"runs":            c.runs.Load(),
		"runs_refused":    c.refused.Load(),
		"items":           c.items.Load(),
		"items_succeeded": c.succeeded.Load(),
		"items_failed":    c.failed.Load(),
		"uptime_seconds":  int64(time.Since(c.started).Seconds()),
	})
}
