package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"metapro/internal/domain"
	"metapro/internal/middleware"
	"metapro/internal/pipeline"
	"metapro/internal/report"
)

type runResponse struct {
	RunID      string           `json:"run_id"`
	Items      int              `json:"items"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Rows       []report.Row     `json:"rows"`
	Failures   []report.Failure `json:"failures"`
	ReportURL  string           `json:"report_url"`
	ArchiveURL string           `json:"archive_url"`
	Remaining  int              `json:"quota_remaining"`
}

// CreateRun accepts a multipart upload of files[] and processes it as one run.
func (a *App) CreateRun(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > a.MaxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("upload exceeds %d bytes", a.MaxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("upload exceeds %d bytes", a.MaxUploadBytes))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "expected multipart form with files[]")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files[]"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "no files uploaded")
		return
	}

	items := make([]domain.SourceItem, 0, len(headers))
	for i, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		items = append(items, domain.NewSourceItem(i, filepath.Base(fh.Filename), data))
	}

	res, err := a.Runner.Run(r.Context(), items)
	if err != nil {
		a.Counters.recordRefusal()
		a.runError(w, r, err)
		return
	}
	a.Counters.recordRun(len(items), res.Report.Succeeded, len(res.Report.Failures))

	archiveURL := res.ArchiveURL
	if archiveURL == "" {
		archiveURL = fmt.Sprintf("/v1/runs/%s/archive.zip", res.RunID)
	}
	a.json(w, http.StatusCreated, runResponse{
		RunID:      res.RunID,
		Items:      len(items),
		Succeeded:  res.Report.Succeeded,
		Failed:     len(res.Report.Failures),
		Rows:       res.Report.Rows,
		Failures:   res.Report.Failures,
		ReportURL:  fmt.Sprintf("/v1/runs/%s/report.csv", res.RunID),
		ArchiveURL: archiveURL,
		Remaining:  res.Quota.Remaining,
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (a *App) runError(w http.ResponseWriter, r *http.Request, err error) {
	var qe *domain.QuotaError
	switch {
	case errors.As(err, &qe):
		a.errorWithDetails(w, http.StatusTooManyRequests, "quota_exceeded", qe.Error(), map[string]any{
			"policy":    qe.Policy,
			"limit":     qe.Limit,
			"used":      qe.Used,
			"requested": qe.Requested,
			"remaining": qe.Remaining(),
		})
	case errors.Is(err, domain.ErrStoreUnavailable):
		a.error(w, http.StatusServiceUnavailable, "store_unavailable", "partial results store is unavailable")
	case errors.Is(err, pipeline.ErrNoInput):
		a.error(w, http.StatusBadRequest, "bad_request", "no files uploaded")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("run failed")
		a.error(w, http.StatusInternalServerError, "internal", "run failed")
	}
}

func (a *App) RunReport(w http.ResponseWriter, r *http.Request) {
	a.serveArtifact(w, r, pipeline.ReportFile, "text/csv; charset=utf-8")
}

func (a *App) RunArchive(w http.ResponseWriter, r *http.Request) {
	a.serveArtifact(w, r, pipeline.ArchiveFile, "application/zip")
}

func (a *App) serveArtifact(w http.ResponseWriter, r *http.Request, name, contentType string) {
	runID := chi.URLParam(r, "id")
	data, err := a.Runner.Artifact(r.Context(), runID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.Logger.Error().Err(err).Str("run_id", runID).Str("artifact", name).Msg("read artifact")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read artifact")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s", runID, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RunPartial returns the outcomes recorded so far for a run, in input order.
func (a *App) RunPartial(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	outcomes, err := a.Runner.Recover(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.runError(w, r, err)
		return
	}
	rep := report.FromOutcomes(outcomes)
	a.json(w, http.StatusOK, map[string]any{
		"run_id":    runID,
		"items":     outcomes,
		"succeeded": rep.Succeeded,
		"failed":    len(rep.Failures),
	})
}
