package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/config"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/prefs"
	"github.com/antoniostano/aura/internal/session"
	"github.com/antoniostano/aura/internal/shell"
)

var metricsSeq int64

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog, err := i18n.Load()
	if err != nil {
		t.Fatalf("i18n.Load() error = %v", err)
	}
	store := kv.NewMemoryStore()
	metrics := observability.NewMetrics(fmt.Sprintf("aura_test_httpapi_%d_%d", time.Now().UnixNano(), atomic.AddInt64(&metricsSeq, 1)))
	provider := brain.NewMockProvider()
	provider.Respond = func(context.Context, string, []brain.Message, string) (string, error) {
		return "That sounds hard.", nil
	}
	app, err := shell.New(context.Background(), shell.Config{
		Catalog:  catalog,
		Prefs:    prefs.NewService(store),
		Accounts: account.NewStore(store, account.NewBcryptHasher(bcrypt.MinCost)),
		Provider: provider,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("shell.New() error = %v", err)
	}
	t.Cleanup(app.Close)

	cfg := config.Config{SessionInactivityTimeout: time.Minute}
	srv := New(cfg, app, catalog, provider, session.NewManager(cfg.SessionInactivityTimeout), metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(res.Body).Decode(&payload)
	return res.StatusCode, payload
}

func register(t *testing.T, ts *httptest.Server, username string) {
	t.Helper()
	status, payload := doJSON(t, http.MethodPost, ts.URL+"/v1/auth/register", map[string]string{
		"username":         username,
		"password":         "secret1",
		"confirm_password": "secret1",
	})
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, payload = %+v", status, payload)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if status != http.StatusOK || payload["store_backend"] != "memory" {
		t.Fatalf("GET /healthz = %d %+v", status, payload)
	}
	status, payload = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil)
	if status != http.StatusOK || payload["model_provider"] != "mock" || payload["model_configured"] != true {
		t.Fatalf("GET /readyz = %d %+v", status, payload)
	}
}

func TestAccountFlow(t *testing.T) {
	ts := newTestServer(t)

	if status, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/auth/me", nil); status != http.StatusUnauthorized {
		t.Fatalf("GET /v1/auth/me status = %d, want 401", status)
	}

	status, payload := doJSON(t, http.MethodPost, ts.URL+"/v1/auth/register", map[string]string{
		"username":         "alice",
		"password":         "abc",
		"confirm_password": "abc",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("register short password status = %d, want 422", status)
	}
	if payload["code"] != string(account.ReasonPasswordTooShort) || payload["message_key"] != i18n.KeyAuthPasswordTooShort {
		t.Fatalf("unexpected validation payload: %+v", payload)
	}
	if msg, _ := payload["error"].(string); msg == "" || msg == i18n.KeyAuthPasswordTooShort {
		t.Fatalf("error should be the localized message, got %q", msg)
	}

	register(t, ts, "alice")
	status, payload = doJSON(t, http.MethodGet, ts.URL+"/v1/auth/me", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /v1/auth/me status = %d", status)
	}
	acct, _ := payload["account"].(map[string]any)
	if acct["username"] != "alice" {
		t.Fatalf("me = %+v", payload)
	}

	if status, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/auth/logout", nil); status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}
	status, payload = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong12",
	})
	if status != http.StatusUnprocessableEntity || payload["code"] != string(account.ReasonWrongPassword) {
		t.Fatalf("login wrong password = %d %+v", status, payload)
	}
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
}

func TestSessionRequiresAccount(t *testing.T) {
	ts := newTestServer(t)

	if status, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/session", nil); status != http.StatusUnauthorized {
		t.Fatalf("GET /v1/session status = %d, want 401", status)
	}
	if status, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/session/start", nil); status != http.StatusUnauthorized {
		t.Fatalf("POST /v1/session/start status = %d, want 401", status)
	}
	_, payload := doJSON(t, http.MethodPost, ts.URL+"/v1/navigate", map[string]string{"view": "progress"})
	if payload["view"] != "login" {
		t.Fatalf("navigate to progress = %+v, want login view", payload)
	}
}

func TestSubmitMessageOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice")

	status, payload := doJSON(t, http.MethodPost, ts.URL+"/v1/session/start", nil)
	if status != http.StatusOK {
		t.Fatalf("session start status = %d", status)
	}
	frame, _ := payload["frame"].(map[string]any)
	if frame["view"] != "session" {
		t.Fatalf("frame = %+v, want session view", frame)
	}

	if status, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/session/messages", map[string]string{"text": "   "}); status != http.StatusBadRequest {
		t.Fatalf("empty submit status = %d, want 400", status)
	}

	status, payload = doJSON(t, http.MethodPost, ts.URL+"/v1/session/messages", map[string]string{"text": "I feel anxious today"})
	if status != http.StatusAccepted {
		t.Fatalf("submit status = %d, payload = %+v", status, payload)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, st := doJSON(t, http.MethodGet, ts.URL+"/v1/session", nil)
		transcript, _ := st["transcript"].([]any)
		if st["waiting"] == false && len(transcript) == 3 {
			last, _ := transcript[2].(map[string]any)
			if last["text"] != "That sounds hard." || last["speaker"] != "assistant" {
				t.Fatalf("reply turn = %+v", last)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for reply: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, payload = doJSON(t, http.MethodPut, ts.URL+"/v1/session/mode", map[string]string{"mode": "telepathy"})
	if status != http.StatusBadRequest || payload["code"] != "invalid_mode" {
		t.Fatalf("invalid mode = %d %+v", status, payload)
	}

	status, payload = doJSON(t, http.MethodPost, ts.URL+"/v1/session/reset", nil)
	transcript, _ := payload["transcript"].([]any)
	if status != http.StatusOK || len(transcript) != 1 {
		t.Fatalf("reset = %d %+v", status, payload)
	}
}

func TestSetInputRejectsTruncatedBody(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice")

	status, payload := doJSON(t, http.MethodPut, ts.URL+"/v1/session/input", map[string]string{"text": "draft"})
	if status != http.StatusOK || payload["input"] != "draft" {
		t.Fatalf("set input = %d %+v", status, payload)
	}

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/session/input", strings.NewReader(`{"text":`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT truncated input error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("truncated body status = %d, want 400", res.StatusCode)
	}

	_, st := doJSON(t, http.MethodGet, ts.URL+"/v1/session", nil)
	if st["input"] != "draft" {
		t.Fatalf("input after truncated body = %v, want draft", st["input"])
	}

	status, payload = doJSON(t, http.MethodPut, ts.URL+"/v1/session/input", nil)
	if status != http.StatusOK || payload["input"] != "" {
		t.Fatalf("empty body set input = %d %+v, want cleared input", status, payload)
	}
}

func TestStringsNegotiation(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/strings", nil)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/strings error = %v", err)
	}
	defer res.Body.Close()
	var bundle map[string]any
	if err := json.NewDecoder(res.Body).Decode(&bundle); err != nil {
		t.Fatalf("decode strings: %v", err)
	}
	if bundle["language"] != "eng" {
		t.Fatalf("negotiated language = %v, want eng", bundle["language"])
	}
	if _, ok := bundle["persona_instruction"]; ok {
		t.Fatalf("persona instruction must not be served")
	}

	_, bundle = doJSON(t, http.MethodGet, ts.URL+"/v1/strings?lang=cze", nil)
	if bundle["language"] != "cze" {
		t.Fatalf("language = %v, want cze", bundle["language"])
	}
	if status, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/strings?lang=xx", nil); status != http.StatusBadRequest {
		t.Fatalf("unknown language status = %d, want 400", status)
	}
}

func TestPreferencesRoutes(t *testing.T) {
	ts := newTestServer(t)

	_, payload := doJSON(t, http.MethodPost, ts.URL+"/v1/prefs/theme/toggle", nil)
	if payload["theme"] != "dark" {
		t.Fatalf("theme toggle = %+v", payload)
	}
	_, payload = doJSON(t, http.MethodPut, ts.URL+"/v1/prefs/language", map[string]string{"language": "eng"})
	if payload["language"] != "eng" {
		t.Fatalf("set language = %+v", payload)
	}
	_, payload = doJSON(t, http.MethodPost, ts.URL+"/v1/prefs/cookie-consent", nil)
	if payload["cookie_consent"] != true || payload["theme"] != "dark" || payload["language"] != "eng" {
		t.Fatalf("prefs = %+v", payload)
	}
}

func TestOnboardingStatus(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doJSON(t, http.MethodGet, ts.URL+"/v1/onboarding/status", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if payload["model_provider"] != "mock" || payload["store_backend"] != "memory" {
		t.Fatalf("unexpected onboarding status: %+v", payload)
	}
	if checks, _ := payload["checks"].([]any); len(checks) != 3 {
		t.Fatalf("checks = %+v", payload["checks"])
	}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *wsClient) send(msg map[string]any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("WriteJSON() error = %v", err)
	}
}

// readUntil reads messages until one of type typ arrives and matches.
func (c *wsClient) readUntil(typ string, match func(map[string]any) bool) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("waiting for %s: ReadJSON() error = %v", typ, err)
		}
		if msg["type"] == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestSessionWebSocketVoiceTurn(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	c := &wsClient{t: t, conn: conn}

	c.readUntil("session_state", nil)
	c.send(map[string]any{"type": "client_hello", "speech": map[string]bool{"recognition": true, "synthesis": true}})
	c.send(map[string]any{"type": "client_control", "action": "set_mode", "mode": "voice"})
	c.send(map[string]any{"type": "client_control", "action": "start_recording"})

	start := c.readUntil("recognition_command", func(m map[string]any) bool { return m["action"] == "start" })
	id, _ := start["recognition_id"].(string)
	if id == "" || start["lang"] != "cs-CZ" || start["interim_results"] != true {
		t.Fatalf("unexpected recognition start: %+v", start)
	}

	c.send(map[string]any{"type": "recognition_event", "recognition_id": id, "event": "result", "transcript": "I feel"})
	c.send(map[string]any{"type": "recognition_event", "recognition_id": id, "event": "result", "transcript": "I feel okay", "final": true})
	c.send(map[string]any{"type": "recognition_event", "recognition_id": id, "event": "end"})

	user := c.readUntil("turn_appended", func(m map[string]any) bool {
		turn, _ := m["turn"].(map[string]any)
		return turn["speaker"] == "user"
	})
	if turn, _ := user["turn"].(map[string]any); turn["text"] != "I feel okay" {
		t.Fatalf("user turn = %+v", turn)
	}

	speak := c.readUntil("speak", nil)
	if speak["text"] != "That sounds hard." || speak["lang"] != "cs-CZ" {
		t.Fatalf("speak = %+v", speak)
	}

	c.send(map[string]any{"type": "client_control", "action": "warp"})
	errEvent := c.readUntil("error_event", nil)
	if errEvent["code"] != "unknown_action" {
		t.Fatalf("error event = %+v", errEvent)
	}
}

func TestSessionWebSocketRequiresAccount(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("Dial() should fail without an account")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", res)
	}
}
