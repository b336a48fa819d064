package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
	"github.com/potatocaustic/real-karma-league/internal/usecase"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"configured origin", []string{"https://rkl-dashboard.example.com"}, http.MethodGet, "https://rkl-dashboard.example.com", http.StatusOK, "https://rkl-dashboard.example.com"},
		{"wildcard preflight", []string{"*"}, http.MethodOptions, "https://rkl-dashboard.example.com", http.StatusNoContent, "*"},
		{"unconfigured origin", []string{"https://allowed.example.com", " "}, http.MethodGet, "https://not-allowed.example.com", http.StatusOK, ""},
		{"no origin header", []string{"*"}, http.MethodOptions, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/leagues/major/live-scoring/status", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			CORS(tt.allowed, okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("unexpected Access-Control-Allow-Origin: %q", got)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	if got, err := bearerToken("  bearer  abc.def "); err != nil || got != "abc.def" {
		t.Fatalf("bearerToken = %q, %v", got, err)
	}
	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		if _, err := bearerToken(header); !errors.Is(err, usecase.ErrUnauthorized) {
			t.Fatalf("bearerToken(%q) err = %v", header, err)
		}
	}
}

func TestRequireInternalJobToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		provided string
		want     int
	}{
		{"match", "job-secret", "job-secret", http.StatusOK},
		{"mismatch", "job-secret", "guess", http.StatusUnauthorized},
		{"missing header", "job-secret", "", http.StatusUnauthorized},
		{"unconfigured", " ", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/internal/jobs/sample", nil)
			if tt.provided != "" {
				req.Header.Set(internalJobTokenHeader, tt.provided)
			}
			rec := httptest.NewRecorder()
			RequireInternalJobToken(tt.expected, okHandler).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequestLogging_RecordsStatusAndSize(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewWriter(&buf, logging.LevelInfo)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	})

	RequestLogging(logger, next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/relegation/detect", nil))

	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"status":502`, `"bytes":8`, `"path":"/v1/relegation/detect"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestShouldTraceRequest(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"/healthz":                              false,
		" /READYZ ":                             false,
		"/livez":                                false,
		"/v1/leagues/major/live-scoring/status": true,
		"/docs":                                 true,
		"/":                                     true,
	} {
		if got := shouldTraceRequest(path); got != want {
			t.Fatalf("shouldTraceRequest(%q)=%v want %v", path, got, want)
		}
	}
}
