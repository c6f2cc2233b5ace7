// Package pipeline runs a batch of uploads end to end: quota, normalization,
// generation, embedding and packaging.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"metapro/internal/domain"
	"metapro/internal/embed"
	"metapro/internal/infra"
	"metapro/internal/partial"
	"metapro/internal/report"
	"metapro/internal/rotation"
	"metapro/internal/scheduler"
	"metapro/internal/storage"
)

// Artifact names written under runs/<id>/.
const (
	ReportFile   = "report.csv"
	ArchiveFile  = "archive.zip"
	FailuresFile = "failures.json"
	assetsDir    = "assets"
)

var ErrNoInput = errors.New("no input items")

type Options struct {
	Normalizer scheduler.Normalizer
	Generator  scheduler.Generator
	Rotator    *rotation.Rotator
	Retrier    *rotation.Retrier
	Store      domain.PartialStore
	Quota      domain.QuotaPolicy
	Writer     embed.MetadataWriter
	Artifacts  *storage.FileStore
	Uploader   domain.Uploader
	BatchSize  int
	Workers    int
	Logger     *infra.Logger
	NewRunID   func() string
}

type Pipeline struct {
	sched     *scheduler.Scheduler
	store     domain.PartialStore
	quota     domain.QuotaPolicy
	writer    embed.MetadataWriter
	artifacts *storage.FileStore
	uploader  domain.Uploader
	logger    *infra.Logger
	newRunID  func() string
}

// Result describes a finished run.
type Result struct {
	RunID      string               `json:"run_id"`
	Report     report.Report        `json:"report"`
	Archive    []byte               `json:"-"`
	ReportKey  string               `json:"report_key"`
	ArchiveKey string               `json:"archive_key"`
	ArchiveURL string               `json:"archive_url,omitempty"`
	OutputDir  string               `json:"output_dir"`
	Quota      domain.QuotaDecision `json:"quota"`
	Duration   time.Duration        `json:"duration"`
}

func New(opts Options) (*Pipeline, error) {
	if opts.Artifacts == nil {
		return nil, errors.New("pipeline: artifact store is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("pipeline: metadata writer is required")
	}
	sched, err := scheduler.New(scheduler.Options{
		BatchSize:  opts.BatchSize,
		Workers:    opts.Workers,
		Normalizer: opts.Normalizer,
		Generator:  opts.Generator,
		Rotator:    opts.Rotator,
		Retrier:    opts.Retrier,
		Store:      opts.Store,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		sched:     sched,
		store:     opts.Store,
		quota:     opts.Quota,
		writer:    opts.Writer,
		artifacts: opts.Artifacts,
		uploader:  opts.Uploader,
		logger:    infra.OrDiscard(opts.Logger),
		newRunID:  opts.NewRunID,
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p, nil
}

// Run processes items and persists the report and archive. Run-level
// failures (quota, unreachable store) are returned before any item is
// touched; item failures end up in the report.
func (p *Pipeline) Run(ctx context.Context, items []domain.SourceItem) (*Result, error) {
	started := time.Now()
	if len(items) == 0 {
		return nil, ErrNoInput
	}

	// Everything that can refuse the run without reserving capacity goes
	// before the quota check.
	if err := p.store.Ping(ctx); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return nil, err
	}
	runID := p.newRunID()
	if !partial.ValidRunID(runID) {
		return nil, fmt.Errorf("pipeline: generated run id %q is not usable", runID)
	}

	decision := domain.QuotaDecision{Allowed: true}
	if p.quota != nil {
		d, err := p.quota.CheckAndReserve(ctx, len(items))
		if err != nil {
			p.logger.Warn().Err(err).Int("items", len(items)).Msg("run refused")
			return nil, err
		}
		decision = d
	}
	logger := p.logger.With().Str("run_id", runID).Logger()

	indexed := make([]domain.SourceItem, len(items))
	for i, item := range items {
		item.Index = i
		indexed[i] = item
	}

	logger.Info().Int("items", len(indexed)).Int("quota_remaining", decision.Remaining).Msg("run started")
	res, err := p.sched.Run(ctx, runID, indexed)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	outDir, err := p.artifacts.Path(storage.RunKey(runID, assetsDir))
	if err != nil {
		return nil, err
	}
	embedder, err := embed.NewEmbedder(outDir, p.writer, &logger)
	if err != nil {
		return nil, err
	}

	var (
		processed []domain.ProcessedAsset
		failures  []domain.ItemError
	)
	// Embedding runs in input order so that name suffixes follow first-seen order.
	for _, o := range res.Outcomes() {
		if !o.Succeeded() {
			failures = append(failures, domain.ItemError{Index: o.Index, Filename: o.Filename, Stage: o.Stage, Err: errors.New(o.Error)})
			continue
		}
		asset, ok := res.Assets[o.Index]
		if !ok {
			failures = append(failures, domain.ItemError{Index: o.Index, Filename: o.Filename, Stage: domain.StageEmbed, Err: errors.New("normalized asset missing")})
			continue
		}
		pa, err := embedder.Embed(ctx, asset, *o.Record)
		if err != nil {
			failures = append(failures, domain.ItemError{Index: o.Index, Filename: o.Filename, Stage: domain.StageEmbed, Err: err})
			p.recordEmbedFailure(ctx, o, err)
			continue
		}
		processed = append(processed, pa)
	}

	rep, archive, err := report.Aggregate(processed, failures)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	result := &Result{
		RunID:     runID,
		Report:    rep,
		Archive:   archive,
		OutputDir: outDir,
		Quota:     decision,
	}
	if err := p.persist(ctx, result); err != nil {
		return nil, err
	}
	if p.uploader != nil {
		url, err := p.uploader.Upload(ctx, archive, runID+"/"+ArchiveFile)
		if err != nil {
			logger.Error().Err(err).Msg("archive upload failed")
		} else {
			result.ArchiveURL = url
		}
	}
	result.Duration = time.Since(started)

	logger.Info().
		Int("items", len(indexed)).
		Int("succeeded", rep.Succeeded).
		Int("failed", len(rep.Failures)).
		Dur("duration", result.Duration).
		Msg("run finished")
	for _, f := range rep.Failures {
		logger.Warn().Int("index", f.Index).Str("file", f.Filename).Str("stage", string(f.Stage)).Str("error", f.Error).Msg("item failed")
	}
	return result, nil
}

func (p *Pipeline) recordEmbedFailure(ctx context.Context, o domain.Outcome, err error) {
	o.Status = domain.OutcomeFailed
	o.Stage = domain.StageEmbed
	o.Error = err.Error()
	o.Record = nil
	o.At = time.Now().UTC()
	if aerr := p.store.Append(ctx, o); aerr != nil {
		p.logger.Error().Err(aerr).Str("run_id", o.RunID).Int("index", o.Index).Msg("record embed failure")
	}
}

func (p *Pipeline) persist(ctx context.Context, result *Result) error {
	csvData, err := result.Report.CSV()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if result.ReportKey, err = p.artifacts.Write(ctx, storage.RunKey(result.RunID, ReportFile), csvData); err != nil {
		return err
	}
	if result.ArchiveKey, err = p.artifacts.Write(ctx, storage.RunKey(result.RunID, ArchiveFile), result.Archive); err != nil {
		return err
	}
	failures, err := json.MarshalIndent(result.Report.Failures, "", "  ")
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	_, err = p.artifacts.Write(ctx, storage.RunKey(result.RunID, FailuresFile), failures)
	return err
}

// Recover returns the outcomes recorded for runID, in input order.
func (p *Pipeline) Recover(ctx context.Context, runID string) ([]domain.Outcome, error) {
	if !partial.ValidRunID(runID) {
		return nil, domain.ErrNotFound
	}
	return p.store.Load(ctx, runID)
}

// Artifact returns a stored artifact of a finished run.
func (p *Pipeline) Artifact(ctx context.Context, runID, name string) ([]byte, error) {
	if !partial.ValidRunID(runID) {
		return nil, domain.ErrNotFound
	}
	switch name {
	case ReportFile, ArchiveFile, FailuresFile:
	default:
		return nil, domain.ErrNotFound
	}
	return p.artifacts.Read(ctx, storage.RunKey(runID, name))
}
