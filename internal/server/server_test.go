package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agoragate/internal/config"
	"agoragate/internal/db"
	"agoragate/internal/gateway"
	"agoragate/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	handles, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(handles.Writer); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	g := gateway.New(handles, config.Default(workspace))
	handler, err := New(Config{Gateway: g, Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			handles.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", string(data), err)
	}
	if envelope.Message == "" {
		t.Fatalf("error envelope without message: %s", string(data))
	}
	return envelope.Error
}

func eventBody(source, typ string) map[string]any {
	return map[string]any{"event_source": source, "event_type": typ}
}

func seedAgentAndAccount(t *testing.T, srv *testServer, agentID string, balance int64) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/identity/agents", map[string]any{
		"agent_id":   agentID,
		"name":       "agent " + agentID,
		"public_key": "pk-" + agentID,
		"event":      eventBody("identity", "agent.registered"),
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register agent status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/bank/accounts", map[string]any{
		"account_id": agentID,
		"balance":    balance,
		"event":      eventBody("bank", "account.created"),
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create account status %d: %s", res.StatusCode, string(data))
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	var h HealthResponse
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if h.Status != "ok" || h.StartedAt == "" {
		t.Fatalf("health = %+v", h)
	}
}

func TestWriteFlowAndEventFeed(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	seedAgentAndAccount(t, srv, "payer", 0)
	seedAgentAndAccount(t, srv, "worker", 0)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/bank/credit", map[string]any{
		"account_id": "payer",
		"amount":     200,
		"reference":  "seed",
		"event":      eventBody("bank", "account.credited"),
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("credit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/bank/escrow/lock", map[string]any{
		"escrow_id":        "esc-1",
		"payer_account_id": "payer",
		"amount":           150,
		"task_id":          "t-1",
		"event":            eventBody("bank", "escrow.locked"),
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("lock status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/bank/escrow/release", map[string]any{
		"escrow_id":            "esc-1",
		"recipient_account_id": "worker",
		"event":                eventBody("bank", "escrow.released"),
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("release status %d: %s", res.StatusCode, string(data))
	}
	var release EscrowReleaseResponse
	if err := json.Unmarshal(data, &release); err != nil {
		t.Fatalf("unmarshal release: %v", err)
	}
	if release.Status != "released" || release.Amount != 150 {
		t.Fatalf("release = %+v", release)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/bank/accounts/worker", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get account status %d", res.StatusCode)
	}
	var account struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(data, &account); err != nil {
		t.Fatalf("unmarshal account: %v", err)
	}
	if account.Balance != 150 {
		t.Fatalf("worker balance = %d, want 150", account.Balance)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/events?after=0&limit=100", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d", res.StatusCode)
	}
	var page struct {
		Items []struct {
			EventID int64 `json:"event_id"`
		} `json:"items"`
		NextAfter int64 `json:"next_after"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 7 {
		t.Fatalf("event count = %d, want 7", len(page.Items))
	}
	for i, item := range page.Items {
		if item.EventID != int64(i+1) {
			t.Fatalf("event ids not dense: %+v", page.Items)
		}
	}
	if page.NextAfter != 7 {
		t.Fatalf("next_after = %d, want 7", page.NextAfter)
	}
}

func TestErrorTaxonomyOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	seedAgentAndAccount(t, srv, "payer", 10)

	cases := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "missing field",
			path:   "/bank/credit",
			body:   map[string]any{"amount": 10, "reference": "r", "event": eventBody("bank", "c")},
			status: http.StatusBadRequest,
			code:   "MISSING_FIELD",
		},
		{
			name:   "missing amount",
			path:   "/bank/credit",
			body:   map[string]any{"account_id": "payer", "reference": "r", "event": eventBody("bank", "c")},
			status: http.StatusBadRequest,
			code:   "MISSING_FIELD",
		},
		{
			name:   "invalid amount",
			path:   "/bank/credit",
			body:   map[string]any{"account_id": "payer", "amount": -5, "reference": "r", "event": eventBody("bank", "c")},
			status: http.StatusBadRequest,
			code:   "INVALID_AMOUNT",
		},
		{
			name:   "fractional amount",
			path:   "/bank/credit",
			body:   map[string]any{"account_id": "payer", "amount": 10.5, "reference": "r", "event": eventBody("bank", "c")},
			status: http.StatusBadRequest,
			code:   "INVALID_AMOUNT",
		},
		{
			name:   "account not found",
			path:   "/bank/credit",
			body:   map[string]any{"account_id": "ghost", "amount": 5, "reference": "r", "event": eventBody("bank", "c")},
			status: http.StatusNotFound,
			code:   "ACCOUNT_NOT_FOUND",
		},
		{
			name: "insufficient funds",
			path: "/bank/escrow/lock",
			body: map[string]any{
				"escrow_id": "esc-1", "payer_account_id": "payer", "amount": 999, "task_id": "t-1",
				"event": eventBody("bank", "escrow.locked"),
			},
			status: http.StatusPaymentRequired,
			code:   "INSUFFICIENT_FUNDS",
		},
		{
			name:   "missing event envelope",
			path:   "/bank/credit",
			body:   map[string]any{"account_id": "payer", "amount": 5, "reference": "r2"},
			status: http.StatusBadRequest,
			code:   "MISSING_FIELD",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+tc.path, tc.body, nil)
			if res.StatusCode != tc.status {
				t.Fatalf("status %d, want %d: %s", res.StatusCode, tc.status, string(data))
			}
			if code := errorCode(t, data); code != tc.code {
				t.Fatalf("code %s, want %s", code, tc.code)
			}
		})
	}
}

func TestTransportErrors(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/bank/credit", nil, nil)
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "METHOD_NOT_ALLOWED" {
		t.Fatalf("code %s, want METHOD_NOT_ALLOWED", code)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/bank/credit", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", resp.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "INVALID_JSON" {
		t.Fatalf("code %s, want INVALID_JSON", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", res.StatusCode)
	}
	if code := errorCode(t, data); code != "NOT_FOUND" {
		t.Fatalf("code %s, want NOT_FOUND", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/bank/credit", map[string]any{
		"account_id": "payer",
		"amount":     5,
		"reference":  strings.Repeat("x", 1<<20),
		"event":      eventBody("bank", "c"),
	}, nil)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "PAYLOAD_TOO_LARGE" {
		t.Fatalf("code %s, want PAYLOAD_TOO_LARGE", code)
	}

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/bank/credit", strings.NewReader("amount=5"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status %d, want 415: %s", resp.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "UNSUPPORTED_MEDIA_TYPE" {
		t.Fatalf("code %s, want UNSUPPORTED_MEDIA_TYPE", code)
	}
}

func TestBearerAuthGuardsWrites(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, AuthConfig{Secret: secret})

	// Reads stay open.
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	body := map[string]any{
		"agent_id":   "a-1",
		"name":       "alice",
		"public_key": "pk-1",
		"event":      eventBody("identity", "agent.registered"),
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/identity/agents", body, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "UNAUTHORIZED" {
		t.Fatalf("code %s, want UNAUTHORIZED", code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "bank",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/identity/agents", body, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", res.StatusCode, string(data))
	}
}
