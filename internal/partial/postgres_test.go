package partial

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"metapro/internal/domain"
)

type stubExecutor struct {
	execs [][]any
	query string
	rows  [][]any
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.query = query
	s.execs = append(s.execs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (s *stubExecutor) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (s *stubExecutor) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	s.query = query
	return &stubRows{rows: s.rows, pos: -1}, nil
}

type stubRows struct {
	pgx.Rows
	rows [][]any
	pos  int
}

func (r *stubRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		case *[]byte:
			if v != nil {
				*d = v.([]byte)
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

func (r *stubRows) Err() error { return nil }
func (r *stubRows) Close()     {}

func TestPostgresAppendArgs(t *testing.T) {
	exec := &stubExecutor{}
	store := NewPostgresStore(exec)
	if err := store.Append(context.Background(), outcome("run-9", 4)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(exec.query, "insert into partial_results") {
		t.Fatalf("unexpected query %s", exec.query)
	}
	args := exec.execs[0]
	if len(args) != 11 || args[0] != "run-9" || args[1] != 4 || args[4] != "succeeded" {
		t.Fatalf("unexpected args %#v", args)
	}
	var rec domain.MetadataRecord
	if err := json.Unmarshal(args[9].([]byte), &rec); err != nil || rec.Title != "Title 4" {
		t.Fatalf("record not encoded: %v %+v", err, rec)
	}
}

func TestPostgresLoad(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: [][]any{
		{0, 0, "a.jpg", "succeeded", "", "", 1, 0, []byte(`{"title":"A","keywords":["x"]}`), at},
		{1, 0, "b.bin", "failed", "normalize", "unsupported format", 0, 0, nil, at},
	}}
	got, err := NewPostgresStore(exec).Load(context.Background(), "run-9")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].Record == nil || got[0].Record.Title != "A" {
		t.Fatalf("unexpected outcomes %+v", got)
	}
	if got[1].Record != nil || got[1].Stage != domain.StageNormalize || got[1].RunID != "run-9" {
		t.Fatalf("unexpected failed outcome %+v", got[1])
	}
}

func TestPostgresLoadEmpty(t *testing.T) {
	_, err := NewPostgresStore(&stubExecutor{}).Load(context.Background(), "run-0")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	exec := &stubExecutor{}
	if err := EnsureSchema(context.Background(), exec); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if !strings.Contains(exec.query, "create table if not exists partial_results") {
		t.Fatalf("unexpected schema query %s", exec.query)
	}
}
