package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"metapro/internal/domain"
	"metapro/internal/embed"
	"metapro/internal/metadata"
	"metapro/internal/normalize"
	"metapro/internal/partial"
	"metapro/internal/quota"
	"metapro/internal/report"
	"metapro/internal/rotation"
	"metapro/internal/storage"
	"metapro/pkg/zip"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50"><rect x="10" y="10" width="80" height="30" fill="#3366cc"/></svg>`

type call struct {
	key  string
	mime string
	item string
}

type fakeDescriber struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeDescriber) Describe(_ context.Context, req domain.DescribeRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{key: req.APIKey, mime: req.MIME, item: req.ItemName})
	f.mu.Unlock()
	if req.Prompt == metadata.DefaultTitlePrompt {
		return "Mountain Lake at Dawn", nil
	}
	return "mountain, lake, dawn, water, reflection", nil
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: 100, B: 50, A: 200})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type harness struct {
	pipeline  *Pipeline
	describer *fakeDescriber
	store     *partial.FileStore
	artifacts *storage.FileStore
}

func newHarness(t *testing.T, q domain.QuotaPolicy, store domain.PartialStore) *harness {
	t.Helper()
	root := t.TempDir()
	d := &fakeDescriber{}
	gen, err := metadata.NewGenerator(metadata.Options{Describer: d, Category: "3", Releases: "Placeholder Name 1, Placeholder Name 2"})
	if err != nil {
		t.Fatal(err)
	}
	fileStore, err := partial.NewFileStore(root+"/partial", nil)
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = fileStore
	}
	artifacts, err := storage.NewFileStore(root + "/artifacts")
	if err != nil {
		t.Fatal(err)
	}
	retrier := rotation.NewRetrier(3, 0, nil)
	retrier.Sleep = func(context.Context, time.Duration) error { return nil }
	seq := 0
	p, err := New(Options{
		Normalizer: normalize.New(normalize.Options{VectorWidth: 200}),
		Generator:  gen,
		Rotator:    rotation.NewRotator([]string{"cred-0", "cred-1"}, 3, nil),
		Retrier:    retrier,
		Store:      store,
		Quota:      q,
		Writer:     embed.SidecarWriter{},
		Artifacts:  artifacts,
		BatchSize:  6,
		Workers:    2,
		NewRunID: func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &harness{pipeline: p, describer: d, store: fileStore, artifacts: artifacts}
}

func sevenRastersOneVector(t *testing.T) []domain.SourceItem {
	var items []domain.SourceItem
	for i := 0; i < 7; i++ {
		items = append(items, domain.NewSourceItem(i, fmt.Sprintf("photo%d.png", i), pngBytes(t, uint8(i*30))))
	}
	return append(items, domain.NewSourceItem(7, "logo.svg", []byte(testSVG)))
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t, quota.Static{Limit: 100}, nil)
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, sevenRastersOneVector(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Report.Rows) != 8 || res.Report.Succeeded != 8 {
		t.Fatalf("expected 8 successful rows, got %d/%d", len(res.Report.Rows), res.Report.Succeeded)
	}

	perKey := map[string][]string{}
	for _, c := range h.describer.calls {
		if c.mime != domain.FormatJPEG {
			t.Fatalf("%s reached the describer as %s", c.item, c.mime)
		}
		perKey[c.key] = append(perKey[c.key], c.item)
	}
	if len(perKey["cred-0"]) != 12 || len(perKey["cred-1"]) != 4 {
		t.Fatalf("unexpected credential load: %d/%d calls", len(perKey["cred-0"]), len(perKey["cred-1"]))
	}
	for _, item := range perKey["cred-1"] {
		if item != "photo6.png" && item != "logo.svg" {
			t.Fatalf("second credential handled %s", item)
		}
	}

	wantNames := []string{"Mountain Lake at Dawn.jpg"}
	for i := 1; i < 8; i++ {
		wantNames = append(wantNames, fmt.Sprintf("Mountain Lake at Dawn_%d.jpg", i))
	}
	for i, row := range res.Report.Rows {
		if row.Filename != wantNames[i] {
			t.Fatalf("row %d filename %q, want %q", i, row.Filename, wantNames[i])
		}
		if row.Keywords != "mountain,lake,dawn,water,reflection" || row.Category != "3" {
			t.Fatalf("row %d: %+v", i, row)
		}
	}

	names, err := zip.Entries(res.Archive)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if strings.Join(names, "|") != strings.Join(wantNames, "|") {
		t.Fatalf("archive entries %v", names)
	}

	csvData, err := h.pipeline.Artifact(ctx, res.RunID, ReportFile)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	rows, err := report.Parse(bytes.NewReader(csvData))
	if err != nil || len(rows) != 8 {
		t.Fatalf("stored report: %d rows, %v", len(rows), err)
	}

	recovered, err := h.pipeline.Recover(ctx, res.RunID)
	if err != nil || len(recovered) != 8 {
		t.Fatalf("recover: %d outcomes, %v", len(recovered), err)
	}
}

func TestRunReportsItemFailures(t *testing.T) {
	h := newHarness(t, nil, nil)
	items := []domain.SourceItem{
		domain.NewSourceItem(0, "good.png", pngBytes(t, 10)),
		domain.NewSourceItem(1, "notes.docx", []byte("not an image")),
		domain.NewSourceItem(2, "broken.png", []byte("garbage")),
	}
	res, err := h.pipeline.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Report.Rows) != 3 {
		t.Fatalf("every item needs a row, got %d", len(res.Report.Rows))
	}
	if res.Report.Rows[1].Filename != "notes.docx" || res.Report.Rows[1].Title != "" {
		t.Fatalf("unexpected failure row %+v", res.Report.Rows[1])
	}
	if len(res.Report.Failures) != 2 || res.Report.Failures[0].Stage != domain.StageNormalize {
		t.Fatalf("unexpected failures %+v", res.Report.Failures)
	}
	names, _ := zip.Entries(res.Archive)
	if len(names) != 1 {
		t.Fatalf("only the good item belongs in the archive, got %v", names)
	}
}

func TestRunRefusedByQuota(t *testing.T) {
	h := newHarness(t, quota.Static{Limit: 3}, nil)
	_, err := h.pipeline.Run(context.Background(), sevenRastersOneVector(t))
	var qe *domain.QuotaError
	if !errors.As(err, &qe) || qe.Limit != 3 || qe.Requested != 8 {
		t.Fatalf("expected quota refusal, got %v", err)
	}
	if len(h.describer.calls) != 0 {
		t.Fatal("no work may start after a refusal")
	}
}

type downStore struct{ domain.PartialStore }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestRunRefusedWhenStoreDown(t *testing.T) {
	h := newHarness(t, nil, downStore{})
	_, err := h.pipeline.Run(context.Background(), sevenRastersOneVector(t))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestRunRefusedWhenStoreDownKeepsDailyQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	daily := quota.NewRedisDaily(rdb, "studio", 10)

	h := newHarness(t, quota.Chain{quota.Static{Limit: 100}, daily}, downStore{})
	if _, err := h.pipeline.Run(context.Background(), sevenRastersOneVector(t)); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	d, err := daily.CheckAndReserve(context.Background(), 10)
	if err != nil {
		t.Fatalf("daily quota was consumed by a refused run: %v", err)
	}
	if d.Used != 10 || d.Remaining != 0 {
		t.Fatalf("unexpected decision after refused run: %+v", d)
	}
}

func TestRunWithoutItems(t *testing.T) {
	h := newHarness(t, nil, nil)
	if _, err := h.pipeline.Run(context.Background(), nil); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestArtifactRejectsUnknownNames(t *testing.T) {
	h := newHarness(t, nil, nil)
	if _, err := h.pipeline.Artifact(context.Background(), "run-1", "../../etc/passwd"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.pipeline.Recover(context.Background(), "../x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
