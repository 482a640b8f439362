package shield

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(APIHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graph", nil))

	for k, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestSecurityHeaders_SkipsEmpty(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XFrameOptions: "DENY"})(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Fatal("empty CSP should not be set")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(Rule{Requests: 2, Window: time.Minute}, nil, "/health")
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	call := func(path, ip string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i, want := range []int{200, 200, 429} {
		if got := call("/command", "10.0.0.1"); got != want {
			t.Fatalf("call %d: got %d, want %d", i, got, want)
		}
	}
	if got := call("/command", "10.0.0.2"); got != 200 {
		t.Fatalf("other client: %d", got)
	}
	if got := call("/key", "10.0.0.1"); got != 200 {
		t.Fatalf("other route: %d", got)
	}
	for i := 0; i < 5; i++ {
		if got := call("/health", "10.0.0.1"); got != 200 {
			t.Fatalf("excluded path: %d", got)
		}
	}

	now = now.Add(2 * time.Minute)
	if got := call("/command", "10.0.0.1"); got != 200 {
		t.Fatalf("after window: %d", got)
	}
	rl.gc()
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 1 {
		t.Fatalf("buckets after gc: %d", n)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(Rule{}, nil)
	for i := 0; i < 100; i++ {
		if !rl.allow("k") {
			t.Fatal("zero rule should not limit")
		}
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 1.2.3.4 , 5.6.7.8")
	if got := ExtractIP(req); got != "1.2.3.4" {
		t.Fatalf("xff: %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:80"
	if got := ExtractIP(req); got != "9.9.9.9" {
		t.Fatalf("remote: %q", got)
	}
}
