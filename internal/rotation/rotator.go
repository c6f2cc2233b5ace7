// Package rotation spreads work over service credentials and bounds retries
// of failed generation calls.
package rotation

import (
	"sync"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

// Rotator hands out credentials round-robin. The credential table is
// read-only after construction; only the failure counters are mutated.
type Rotator struct {
	creds     []domain.Credential
	threshold int
	logger    *infra.Logger

	mu          sync.Mutex
	consecutive []int
}

// NewRotator builds a rotation over tokens. An empty token list yields a
// single blank credential so that offline describers still get work.
// threshold is the consecutive failure count at which a credential is
// reported; zero disables the warning.
func NewRotator(tokens []string, threshold int, logger *infra.Logger) *Rotator {
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	creds := make([]domain.Credential, len(tokens))
	for i, t := range tokens {
		creds[i] = domain.Credential{Index: i, Token: t}
	}
	return &Rotator{
		creds:       creds,
		threshold:   threshold,
		logger:      infra.OrDiscard(logger),
		consecutive: make([]int, len(creds)),
	}
}

// Len returns the number of credentials in rotation.
func (r *Rotator) Len() int { return len(r.creds) }

// Assign returns the credential for work unit i, cycling by i mod N.
func (r *Rotator) Assign(i int) domain.Credential {
	n := len(r.creds)
	idx := i % n
	if idx < 0 {
		idx += n
	}
	return r.creds[idx]
}

// ReportSuccess resets the failure streak of cred.
func (r *Rotator) ReportSuccess(cred domain.Credential) {
	r.mu.Lock()
	r.consecutive[cred.Index] = 0
	r.mu.Unlock()
}

// ReportFailure records one terminal failure on cred. Credentials are never
// removed from rotation; crossing the threshold is only logged.
func (r *Rotator) ReportFailure(cred domain.Credential) int {
	r.mu.Lock()
	r.consecutive[cred.Index]++
	streak := r.consecutive[cred.Index]
	r.mu.Unlock()

	if r.threshold > 0 && streak >= r.threshold {
		r.logger.Warn().
			Int("credential", cred.Index).
			Int("consecutive_failures", streak).
			Msg("credential keeps failing")
	}
	return streak
}

// ConsecutiveFailures returns the current failure streak for a credential index.
func (r *Rotator) ConsecutiveFailures(index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.consecutive) {
		return 0
	}
	return r.consecutive[index]
}
