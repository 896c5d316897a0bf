package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parley.chat/internal/store"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Errorf("no request id generated")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Errorf("header %q != context %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "client-supplied" {
		t.Errorf("client id not honored, got %q", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight code = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("origin not allowed: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("foreign origin allowed")
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	h := RequestID(RateLimit(okHandler(), 2, 1))
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request code = %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Errorf("Retry-After missing")
	}
	if !strings.Contains(last.Body.String(), "rate limit exceeded") {
		t.Errorf("body = %s", last.Body.String())
	}

	// A different client keeps its own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client code = %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"  Bearer   spaced  ", "spaced", true},
		{"", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || token != tc.token) {
			t.Errorf("header %q: token %q, err %v", tc.header, token, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("header %q: expected error", tc.header)
		}
	}
}

func TestParseListOptions(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&sort=desc&start=u10&disabled=false", nil)
	opts, err := parseListOptions(r)
	if err != nil {
		t.Fatalf("parseListOptions: %v", err)
	}
	if opts.Limit != 5 || opts.Sort != store.SortDesc || opts.Start != "u10" {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Disabled == nil || *opts.Disabled {
		t.Errorf("disabled filter = %v", opts.Disabled)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	opts, err = parseListOptions(r)
	if err != nil || opts.Limit != 20 || opts.Sort != store.SortAsc {
		t.Errorf("defaults = %+v, %v", opts, err)
	}

	for _, q := range []string{"limit=0", "limit=999", "limit=x", "sort=sideways", "disabled=maybe"} {
		r = httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		if _, err := parseListOptions(r); err == nil {
			t.Errorf("query %q accepted", q)
		}
	}
}
