package partial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"metapro/internal/domain"
	"metapro/internal/infra"
	"metapro/internal/sqlinline"
)

// PostgresStore keeps outcomes in the partial_results table, one row per
// (run, item).
type PostgresStore struct {
	sql infra.SQLExecutor
}

func NewPostgresStore(sql infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{sql: sql}
}

// EnsureSchema creates the tables the postgres backends rely on.
func EnsureSchema(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, o domain.Outcome) error {
	if err := checkRunID(o.RunID); err != nil {
		return err
	}
	var record []byte
	if o.Record != nil {
		raw, err := json.Marshal(o.Record)
		if err != nil {
			return fmt.Errorf("partial: encode record: %w", err)
		}
		record = raw
	}
	at := o.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.sql.Exec(ctx, sqlinline.QInsertPartialResult,
		o.RunID, o.Index, o.Batch, o.Filename, string(o.Status), string(o.Stage), o.Error,
		o.Attempts, o.Credential, record, at)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, runID string) ([]domain.Outcome, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	rows, err := s.sql.Query(ctx, sqlinline.QSelectPartialResults, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var (
			o      domain.Outcome
			status string
			stage  string
			record []byte
		)
		if err := rows.Scan(&o.Index, &o.Batch, &o.Filename, &status, &stage, &o.Error, &o.Attempts, &o.Credential, &record, &o.At); err != nil {
			return nil, err
		}
		o.RunID = runID
		o.Status = domain.OutcomeStatus(status)
		o.Stage = domain.Stage(stage)
		if len(record) > 0 && string(record) != "null" {
			var rec domain.MetadataRecord
			if err := json.Unmarshal(record, &rec); err != nil {
				return nil, fmt.Errorf("partial: decode record %d: %w", o.Index, err)
			}
			o.Record = &rec
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, domain.ErrNotFound
	}
	return reconcile(outcomes), nil
}

// Ping succeeds when the executor can reach the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.sql.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}
