package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"metapro/internal/domain"
	"metapro/internal/http/handlers"
	"metapro/internal/http/httpapi"
	"metapro/internal/infra"
	"metapro/internal/pipeline"
	"metapro/internal/report"
)

type fakeRunner struct {
	items    []domain.SourceItem
	runErr   error
	outcomes []domain.Outcome
	files    map[string][]byte
}

func (f *fakeRunner) Run(_ context.Context, items []domain.SourceItem) (*pipeline.Result, error) {
	f.items = items
	if f.runErr != nil {
		return nil, f.runErr
	}
	rows := make([]report.Row, len(items))
	for i, it := range items {
		rows[i] = report.Row{Filename: it.Filename, Title: "T"}
	}
	return &pipeline.Result{
		RunID:  "run-42",
		Report: report.Report{Rows: rows, Succeeded: len(items)},
		Quota:  domain.QuotaDecision{Allowed: true, Remaining: 7},
	}, nil
}

func (f *fakeRunner) Recover(_ context.Context, runID string) ([]domain.Outcome, error) {
	if runID != "run-42" {
		return nil, domain.ErrNotFound
	}
	return f.outcomes, nil
}

func (f *fakeRunner) Artifact(_ context.Context, runID, name string) ([]byte, error) {
	data, ok := f.files[runID+"/"+name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type okStore struct{ domain.PartialStore }

func (okStore) Ping(context.Context) error { return nil }

func newServer(runner *fakeRunner) http.Handler {
	logger := zerolog.Nop()
	cfg := &infra.Config{RateLimitPerMin: 100, MaxUploadBytes: 1 << 20}
	app := handlers.NewApp(runner, okStore{}, cfg, &logger)
	return httpapi.NewRouter(app, cfg, logger)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"b.png", "a.svg", "c.txt"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		fw, err := mw.CreateFormFile("files[]", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestCreateRun(t *testing.T) {
	runner := &fakeRunner{}
	srv := newServer(runner)
	body, ct := multipartBody(t, map[string]string{"b.png": "png", "a.svg": "<svg/>", "c.txt": "x"})

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if len(runner.items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(runner.items))
	}
	if runner.items[0].Filename != "b.png" || runner.items[1].Kind != domain.MediaKindVector || runner.items[2].Kind != domain.MediaKindUnknown {
		t.Fatalf("unexpected items %+v", runner.items)
	}
	var payload struct {
		RunID      string `json:"run_id"`
		Items      int    `json:"items"`
		ReportURL  string `json:"report_url"`
		ArchiveURL string `json:"archive_url"`
		Remaining  int    `json:"quota_remaining"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RunID != "run-42" || payload.Items != 3 || payload.Remaining != 7 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.ReportURL != "/v1/runs/run-42/report.csv" || payload.ArchiveURL != "/v1/runs/run-42/archive.zip" {
		t.Fatalf("unexpected links %+v", payload)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestCreateRunErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"quota", &domain.QuotaError{Policy: "max_items_per_run", Limit: 1, Requested: 2}, http.StatusTooManyRequests, "quota_exceeded"},
		{"store", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(&fakeRunner{runErr: tc.err})
			body, ct := multipartBody(t, map[string]string{"b.png": "png", "a.svg": "<svg/>"})
			req := httptest.NewRequest(http.MethodPost, "/v1/runs", body)
			req.Header.Set("Content-Type", ct)
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("status %d, want %d", rr.Code, tc.code)
			}
			var payload struct {
				Error struct {
					Code    string         `json:"code"`
					Details map[string]any `json:"details"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload.Error.Code != tc.want {
				t.Fatalf("code %q, want %q", payload.Error.Code, tc.want)
			}
			if tc.name == "quota" && payload.Error.Details["requested"] != float64(2) {
				t.Fatalf("quota details missing: %+v", payload.Error.Details)
			}
		})
	}
}

func TestCreateRunWithoutFiles(t *testing.T) {
	srv := newServer(&fakeRunner{})
	body, ct := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestCreateRunTooLarge(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &infra.Config{RateLimitPerMin: 100, MaxUploadBytes: 64}
	app := handlers.NewApp(&fakeRunner{}, okStore{}, cfg, &logger)
	srv := httpapi.NewRouter(app, cfg, logger)

	body, ct := multipartBody(t, map[string]string{"b.png": string(bytes.Repeat([]byte("x"), 4096))})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestArtifacts(t *testing.T) {
	runner := &fakeRunner{files: map[string][]byte{
		"run-42/report.csv":  []byte("Filename,Title,Keywords,Category,Releases\n"),
		"run-42/archive.zip": []byte("PK"),
	}}
	srv := newServer(runner)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/run-42/report.csv", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "text/csv; charset=utf-8" {
		t.Fatalf("report: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/run-42/archive.zip", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "PK" {
		t.Fatalf("archive: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/unknown/archive.zip", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rr.Code)
	}
}

func TestRunPartial(t *testing.T) {
	runner := &fakeRunner{outcomes: []domain.Outcome{
		{RunID: "run-42", Index: 0, Filename: "a.png", Status: domain.OutcomeSucceeded, Record: &domain.MetadataRecord{Title: "A"}},
		{RunID: "run-42", Index: 1, Filename: "b.png", Status: domain.OutcomeFailed, Stage: domain.StageGenerate},
	}}
	srv := newServer(runner)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/run-42/partial", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var payload struct {
		Items     []domain.Outcome `json:"items"`
		Succeeded int              `json:"succeeded"`
		Failed    int              `json:"failed"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 2 || payload.Succeeded != 1 || payload.Failed != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/nope/partial", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(&fakeRunner{})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rr.Code != http.StatusOK || !json.Valid(rr.Body.Bytes()) {
		t.Fatalf("openapi: %d", rr.Code)
	}
}

func TestMetricsCountRuns(t *testing.T) {
	srv := newServer(&fakeRunner{})
	body, ct := multipartBody(t, map[string]string{"b.png": "png", "a.svg": "<svg/>"})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", body)
	req.Header.Set("Content-Type", ct)
	srv.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	var payload map[string]float64
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["runs"] != 1 || payload["items"] != 2 || payload["items_succeeded"] != 2 {
		t.Fatalf("unexpected metrics %+v", payload)
	}
}
