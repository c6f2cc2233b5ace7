// Package scheduler partitions a run into fixed-size batches and processes
// them concurrently, one credential per batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"metapro/internal/domain"
	"metapro/internal/infra"
	"metapro/internal/rotation"
)

// Normalizer turns a source item into its canonical raster form.
type Normalizer interface {
	Normalize(ctx context.Context, item domain.SourceItem) (domain.NormalizedAsset, error)
}

// Generator produces a metadata record for one asset under one credential.
type Generator interface {
	Generate(ctx context.Context, asset domain.NormalizedAsset, cred domain.Credential) (domain.MetadataRecord, error)
}

type Options struct {
	BatchSize  int
	Workers    int
	Normalizer Normalizer
	Generator  Generator
	Rotator    *rotation.Rotator
	Retrier    *rotation.Retrier
	Store      domain.PartialStore
	Logger     *infra.Logger
	Now        func() time.Time
}

type Scheduler struct {
	batchSize  int
	workers    int
	normalizer Normalizer
	generator  Generator
	rotator    *rotation.Rotator
	retrier    *rotation.Retrier
	store      domain.PartialStore
	logger     *infra.Logger
	now        func() time.Time
}

// Result is what a run hands to the embedding stage. Assets holds the
// normalized form of every item that got past normalization, by index.
type Result struct {
	Batches []domain.BatchResult
	Assets  map[int]domain.NormalizedAsset
}

// Outcomes flattens the batches into input order.
func (r Result) Outcomes() []domain.Outcome {
	var out []domain.Outcome
	for _, b := range r.Batches {
		out = append(out, b.Outcomes...)
	}
	SortOutcomes(out)
	return out
}

func New(opts Options) (*Scheduler, error) {
	if opts.Normalizer == nil || opts.Generator == nil {
		return nil, errors.New("scheduler: normalizer and generator are required")
	}
	if opts.Store == nil {
		return nil, errors.New("scheduler: partial store is required")
	}
	s := &Scheduler{
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		normalizer: opts.Normalizer,
		generator:  opts.Generator,
		rotator:    opts.Rotator,
		retrier:    opts.Retrier,
		store:      opts.Store,
		logger:     infra.OrDiscard(opts.Logger),
		now:        opts.Now,
	}
	if s.batchSize < 1 {
		s.batchSize = 6
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.rotator == nil {
		s.rotator = rotation.NewRotator(nil, 0, opts.Logger)
	}
	if s.retrier == nil {
		s.retrier = rotation.NewRetrier(1, 0, opts.Logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Partition splits items into consecutive slices of at most size entries.
func Partition(items []domain.SourceItem, size int) [][]domain.SourceItem {
	if size < 1 {
		size = 1
	}
	var batches [][]domain.SourceItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// Run processes every item and returns once all batches are done. Per-item
// failures are recorded as outcomes; an error is returned only when an
// outcome could not be persisted or ctx was cancelled.
func (s *Scheduler) Run(ctx context.Context, runID string, items []domain.SourceItem) (Result, error) {
	batches := Partition(items, s.batchSize)
	result := Result{
		Batches: make([]domain.BatchResult, len(batches)),
		Assets:  make(map[int]domain.NormalizedAsset, len(items)),
	}
	var assetsMu sync.Mutex

	s.logger.Info().
		Str("run_id", runID).
		Int("items", len(items)).
		Int("batches", len(batches)).
		Int("credentials", s.rotator.Len()).
		Msg("dispatching batches")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for b, batch := range batches {
		b, batch := b, batch
		cred := s.rotator.Assign(b)
		g.Go(func() error {
			br := domain.BatchResult{Batch: b, Credential: cred.Index, Outcomes: make([]domain.Outcome, 0, len(batch))}
			for _, item := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcome, asset, ok := s.process(gctx, runID, b, cred, item)
				if ok {
					assetsMu.Lock()
					result.Assets[item.Index] = asset
					assetsMu.Unlock()
				}
				if err := s.store.Append(gctx, outcome); err != nil {
					return fmt.Errorf("%w: append item %d: %v", domain.ErrStoreUnavailable, item.Index, err)
				}
				br.Outcomes = append(br.Outcomes, outcome)
			}
			result.Batches[b] = br
			s.logger.Info().
				Str("run_id", runID).
				Int("batch", b).
				Int("credential", cred.Index).
				Int("items", len(batch)).
				Msg("batch finished")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for i := range result.Batches {
		SortOutcomes(result.Batches[i].Outcomes)
	}
	return result, nil
}

func (s *Scheduler) process(ctx context.Context, runID string, batch int, cred domain.Credential, item domain.SourceItem) (domain.Outcome, domain.NormalizedAsset, bool) {
	outcome := domain.Outcome{
		RunID:      runID,
		Index:      item.Index,
		Batch:      batch,
		Filename:   item.Filename,
		Credential: cred.Index,
	}
	logger := s.logger.With().Str("run_id", runID).Int("index", item.Index).Str("file", item.Filename).Logger()

	asset, err := s.normalizer.Normalize(ctx, item)
	if err != nil {
		logger.Warn().Err(err).Msg("normalize failed")
		return s.fail(outcome, domain.StageNormalize, err), domain.NormalizedAsset{}, false
	}

	var record domain.MetadataRecord
	attempts, err := s.retrier.Do(ctx, item.Filename, func(ctx context.Context, _ int) error {
		rec, gerr := s.generator.Generate(ctx, asset, cred)
		if gerr != nil {
			return gerr
		}
		record = rec
		return nil
	})
	outcome.Attempts = attempts
	if err != nil {
		s.rotator.ReportFailure(cred)
		logger.Error().Err(err).Int("attempts", attempts).Int("credential", cred.Index).Msg("generation failed")
		return s.fail(outcome, domain.StageGenerate, err), asset, true
	}
	s.rotator.ReportSuccess(cred)

	outcome.Status = domain.OutcomeSucceeded
	outcome.Record = &record
	outcome.At = s.now().UTC()
	logger.Debug().Int("attempts", attempts).Msg("item generated")
	return outcome, asset, true
}

func (s *Scheduler) fail(o domain.Outcome, stage domain.Stage, err error) domain.Outcome {
	o.Status = domain.OutcomeFailed
	o.Stage = stage
	o.Error = err.Error()
	o.At = s.now().UTC()
	return o
}

// SortOutcomes orders outcomes by original input index.
func SortOutcomes(outcomes []domain.Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })
}
