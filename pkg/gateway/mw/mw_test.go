package mw

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echo-ai/coach-gateway/pkg/gateway/auth"
	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if seen == "" || !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("header = %q, context = %q", got, seen)
	}
}

func TestRequestID_KeepsClientProvided(t *testing.T) {
	h := RequestID(okHandler())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Request-ID", "req_client")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req_client" {
		t.Fatalf("header = %q", got)
	}
}

func TestAuth_RequiredRejectsMissingKey(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"coach_sk_test": {}}}
	h := Auth(cfg, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RequiredAcceptsBearer(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"coach_sk_test": {}}}
	var principal *auth.Principal
	h := Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = auth.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer coach_sk_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if principal == nil || principal.APIKey != "coach_sk_test" {
		t.Fatalf("principal = %+v", principal)
	}
}

func TestAuth_RequiredAcceptsQueryKeyOnUpgrade(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"coach_sk_test": {}}}
	h := Auth(cfg, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?api_key=coach_sk_test", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RejectsUnknownKey(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"coach_sk_test": {}}}
	h := Auth(cfg, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAuth_OptionalPassesWithoutKey(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeOptional, APIKeys: map[string]struct{}{"coach_sk_test": {}}}
	h := Auth(cfg, okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAuth_DisabledIgnoresKeys(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeDisabled}
	h := Auth(cfg, okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer anything")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	if !strings.Contains(out, "status=418") {
		t.Fatalf("log output missing status: %q", out)
	}
	if !strings.Contains(out, "path=/healthz") {
		t.Fatalf("log output missing path: %q", out)
	}
}
