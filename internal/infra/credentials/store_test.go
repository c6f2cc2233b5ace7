package credentials

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	tokens   []string
	err      error
	affected int64
	exec     struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", s.affected)), s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return nil
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stubRows{tokens: s.tokens, pos: -1}, nil
}

type stubRows struct {
	pgx.Rows
	tokens []string
	pos    int
}

func (r *stubRows) Next() bool {
	r.pos++
	return r.pos < len(r.tokens)
}

func (r *stubRows) Scan(dest ...any) error {
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.tokens[r.pos]
	return nil
}

func (r *stubRows) Err() error { return nil }
func (r *stubRows) Close()     {}

func TestTokens(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: []string{" abc123 ", "", "def456"}})
	keys, err := store.Tokens(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Tokens error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "abc123" || keys[1] != "def456" {
		t.Fatalf("unexpected keys %#v", keys)
	}
}

func TestAddToken(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.AddToken(context.Background(), ProviderGemini, "secret", nil); err != nil {
		t.Fatalf("AddToken error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestAddTokenEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.AddToken(context.Background(), ProviderOpenAI, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDisableTokenMissing(t *testing.T) {
	store := NewStore(&stubExecutor{affected: 0})
	if err := store.DisableToken(context.Background(), ProviderGemini, "gone"); err == nil {
		t.Fatal("expected error when no row was disabled")
	}
}

func TestResolveMergesConfiguredFirst(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: []string{"stored", "env-b"}})
	keys, err := store.Resolve(context.Background(), ProviderGemini, []string{"env-a", "env-b"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	expected := []string{"env-a", "env-b", "stored"}
	if len(keys) != len(expected) {
		t.Fatalf("keys = %#v, want %#v", keys, expected)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], expected[i])
		}
	}
}

func TestResolveWithoutStore(t *testing.T) {
	var store *Store
	keys, err := store.Resolve(context.Background(), ProviderGemini, []string{"a"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("unexpected keys %#v", keys)
	}
}
