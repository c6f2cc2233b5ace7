package rotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"metapro/internal/domain"
)

func TestAssignRoundRobin(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"}, 0, nil)
	want := []string{"a", "b", "c", "a", "b", "c", "a"}
	for i, tok := range want {
		got := r.Assign(i)
		if got.Token != tok || got.Index != i%3 {
			t.Fatalf("Assign(%d) = %+v, want token %s", i, got, tok)
		}
	}
}

func TestAssignWithoutTokens(t *testing.T) {
	r := NewRotator(nil, 0, nil)
	if r.Len() != 1 {
		t.Fatalf("expected a single blank credential, got %d", r.Len())
	}
	if c := r.Assign(5); c.Index != 0 || c.Token != "" {
		t.Fatalf("unexpected credential %+v", c)
	}
}

func TestFailureStreakWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := NewRotator([]string{"a", "b"}, 2, &logger)
	cred := r.Assign(1)

	r.ReportFailure(cred)
	if buf.Len() != 0 {
		t.Fatalf("warned before threshold: %s", buf.String())
	}
	if streak := r.ReportFailure(cred); streak != 2 {
		t.Fatalf("streak = %d", streak)
	}
	if !strings.Contains(buf.String(), `"credential":1`) {
		t.Fatalf("expected warning for credential 1, got %s", buf.String())
	}
	r.ReportSuccess(cred)
	if r.ConsecutiveFailures(1) != 0 {
		t.Fatal("success should reset the streak")
	}
	if r.Assign(3).Index != 1 {
		t.Fatal("failing credential must stay in rotation")
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryFailsTwiceThenSucceeds(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := NewRetrier(3, time.Second, &logger)
	r.Sleep = noSleep

	calls := 0
	attempts, err := r.Do(context.Background(), "a.jpg", func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("%w: flaky", domain.ErrGenerationFailure)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d, want 3", attempts, calls)
	}
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 3 {
		t.Fatalf("expected 3 logged attempts, got %d: %s", lines, buf.String())
	}
}

func TestRetryExhausts(t *testing.T) {
	r := NewRetrier(3, 0, nil)
	r.Sleep = noSleep
	calls := 0
	attempts, err := r.Do(context.Background(), "a.jpg", func(context.Context, int) error {
		calls++
		return domain.ErrCredentialExhausted
	})
	if !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	r := NewRetrier(3, 0, nil)
	r.Sleep = noSleep
	attempts, err := r.Do(context.Background(), "a.jpg", func(context.Context, int) error {
		return domain.ErrEmbedFailure
	})
	if !errors.Is(err, domain.ErrEmbedFailure) || attempts != 1 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestRetryDelayBetweenAttempts(t *testing.T) {
	var waits []time.Duration
	r := NewRetrier(3, 250*time.Millisecond, nil)
	r.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	_, _ = r.Do(context.Background(), "a.jpg", func(context.Context, int) error {
		return domain.ErrGenerationFailure
	})
	if len(waits) != 2 || waits[0] != 250*time.Millisecond {
		t.Fatalf("unexpected waits %v", waits)
	}
}
