package partial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

// FileStore appends one JSON line per outcome to <dir>/<run id>.jsonl.
// Appends from all workers are serialized by a single mutex and synced
// before returning.
type FileStore struct {
	dir    string
	logger *infra.Logger

	mu sync.Mutex
}

func NewFileStore(dir string, logger *infra.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("partial: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("partial: ensure directory: %w", err)
	}
	return &FileStore{dir: dir, logger: infra.OrDiscard(logger)}, nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".jsonl")
}

func (s *FileStore) Append(ctx context.Context, outcome domain.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRunID(outcome.RunID); err != nil {
		return err
	}
	line, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("partial: encode outcome: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(outcome.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("partial: open log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("partial: write log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("partial: sync log: %w", err)
	}
	return f.Close()
}

// Load reads back every complete record of runID. A torn final line left by
// a crash mid-write is skipped.
func (s *FileStore) Load(ctx context.Context, runID string) ([]domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	raw, err := os.ReadFile(s.path(runID))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("partial: read log: %w", err)
	}

	var outcomes []domain.Outcome
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var o domain.Outcome
		if err := json.Unmarshal(text, &o); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Int("line", line).Msg("skipping unreadable partial record")
			continue
		}
		outcomes = append(outcomes, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("partial: scan log: %w", err)
	}
	return reconcile(outcomes), nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
