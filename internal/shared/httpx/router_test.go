package httpx_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickshauling/ticketdrop/internal/shared/httpx"
	"github.com/rickshauling/ticketdrop/internal/shared/requestid"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

// echoRoutes mounts a gated route that echoes the caller and request id.
type echoRoutes struct{}

func (echoRoutes) Mount(mux *http.ServeMux, auth *httpx.Auth) {
	mux.Handle("GET /echo/{name}", auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := httpx.ActorFrom(r.Context())
		_, _ = io.WriteString(w, r.PathValue("name")+"|"+actor.Role+"|"+requestid.Get(r.Context()))
	}), httpx.RoleBiller))
}

func newRouterForTest(opts httpx.Options) http.Handler {
	return httpx.NewRouter(testLogger(), opts, echoRoutes{})
}

func get(t *testing.T, url, token string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHealthzReturns200AndBodyOK(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(httpx.Options{}))
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestRequestIDGeneratedIfMissing(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(httpx.Options{}))
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.URL+"/echo/x", "", nil)

	got := resp.Header.Get("X-Request-Id")
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	if !re.MatchString(got) {
		t.Fatalf("expected 32-char hex request id, got %q", got)
	}
	if !strings.HasSuffix(body, "|"+got) {
		t.Fatalf("expected handler to see request id %q, got body %q", got, body)
	}
}

func TestRequestIDPreservedIfProvided(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(httpx.Options{}))
	t.Cleanup(srv.Close)

	resp, _ := get(t, srv.URL+"/healthz", "", map[string]string{"X-Request-Id": "test123"})
	if got := resp.Header.Get("X-Request-Id"); got != "test123" {
		t.Fatalf("expected X-Request-Id %q, got %q", "test123", got)
	}
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	if httpx.NewAuth("") != nil {
		t.Fatalf("expected nil auth for empty secret")
	}
	srv := httptest.NewServer(newRouterForTest(httpx.Options{}))
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.URL+"/echo/open", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(body, "open||") {
		t.Fatalf("expected open route, got %d %q", resp.StatusCode, body)
	}
}

func TestAuthRoles(t *testing.T) {
	auth := httpx.NewAuth("s3cret")
	srv := httptest.NewServer(newRouterForTest(httpx.Options{Auth: auth}))
	t.Cleanup(srv.Close)

	biller, _ := auth.Issue("amy", httpx.RoleBiller, time.Hour)
	driver, _ := auth.Issue("brant", httpx.RoleDriver, time.Hour)
	admin, _ := auth.Issue("root", httpx.RoleAdmin, time.Hour)
	expired, _ := auth.Issue("amy", httpx.RoleBiller, -time.Minute)
	foreign, _ := httpx.NewAuth("other").Issue("amy", httpx.RoleBiller, time.Hour)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", foreign, http.StatusUnauthorized},
		{"wrong role", driver, http.StatusForbidden},
		{"right role", biller, http.StatusOK},
		{"admin", admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, srv.URL+"/echo/x", tc.token, nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, resp.StatusCode, body)
			}
		})
	}

	_, body := get(t, srv.URL+"/echo/x", biller, nil)
	if !strings.HasPrefix(body, "x|biller|") {
		t.Fatalf("expected actor role in context, got %q", body)
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(newRouterForTest(httpx.Options{Metrics: httpx.NewMetrics(reg), Gatherer: reg}))
	t.Cleanup(srv.Close)

	get(t, srv.URL+"/echo/a", "", nil)
	get(t, srv.URL+"/echo/b", "", nil)
	get(t, srv.URL+"/nope", "", nil)

	resp, body := get(t, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `http_requests_total{method="GET",route="GET /echo/{name}",status="200"} 2`) {
		t.Fatalf("expected per-pattern counter, got:\n%s", body)
	}
	if n, err := testutil.GatherAndCount(reg, "http_requests_total"); err != nil || n < 2 {
		t.Fatalf("expected at least 2 series, got %d err=%v", n, err)
	}
}
