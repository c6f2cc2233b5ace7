package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIPForRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "multiple ips use first",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded falls back",
			header:     "invalid",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "empty forwarded uses remote host",
			header:     "",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 forwarded",
			header:     "2001:db8::1",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote fallback",
			header:     "invalid",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			header:     "invalid",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := clientIPForRateLimit(req); got != tc.want {
				t.Fatalf("clientIPForRateLimit() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	other.RemoteAddr = "198.51.100.8:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("other clients must not share the bucket, got %d", rr.Code)
	}
}
