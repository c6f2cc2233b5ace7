package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"metapro/internal/infra"
	"metapro/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Store keeps describe-service API keys in the integration_tokens table. A
// provider may hold several keys; all active ones join the rotation.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Tokens returns the active keys of provider in insertion order.
func (s *Store) Tokens(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectIntegrationTokens, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens, rows.Err()
}

// AddToken registers key for provider, re-enabling it if it was disabled.
func (s *Store) AddToken(ctx context.Context, provider, key string, props map[string]any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QInsertIntegrationToken, provider, key, raw)
	return err
}

// DisableToken removes key from future rotations without deleting it.
func (s *Store) DisableToken(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDisableIntegrationToken, provider, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s key not found", provider)
	}
	return nil
}

// Resolve merges statically configured keys with the stored ones, keeping
// the configured keys first and dropping duplicates.
func (s *Store) Resolve(ctx context.Context, provider string, configured []string) ([]string, error) {
	out := make([]string, 0, len(configured))
	seen := make(map[string]struct{}, len(configured))
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range configured {
		add(k)
	}
	if s == nil || s.sql == nil {
		return out, nil
	}
	stored, err := s.Tokens(ctx, provider)
	if err != nil {
		return out, err
	}
	for _, k := range stored {
		add(k)
	}
	return out, nil
}
