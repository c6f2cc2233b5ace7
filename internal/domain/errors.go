package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrGenerationFailure   = errors.New("generation failure")
	ErrCredentialExhausted = fmt.Errorf("credential exhausted: %w", ErrGenerationFailure)
	ErrEmbedFailure        = errors.New("embed failure")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrStoreUnavailable    = errors.New("partial store unavailable")
	ErrNotFound            = errors.New("not found")
)

// QuotaError carries the counts behind a refused run.
type QuotaError struct {
	Policy    string
	Limit     int
	Used      int
	Requested int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: policy=%s limit=%d used=%d requested=%d", e.Policy, e.Limit, e.Used, e.Requested)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Remaining returns how many items the policy would still accept.
func (e *QuotaError) Remaining() int {
	if r := e.Limit - e.Used; r > 0 {
		return r
	}
	return 0
}

// Stage names the pipeline step an item failed in.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageGenerate  Stage = "generate"
	StageEmbed     Stage = "embed"
)

// ItemError is the failure marker recorded for one item.
type ItemError struct {
	Index    int
	Filename string
	Stage    Stage
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s) failed at %s: %v", e.Index, e.Filename, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
