package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digitlens/internal/app"
	"digitlens/internal/otp"
	"digitlens/pkg/domain"
	"digitlens/pkg/store"
)

type stubClassifier struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubClassifier) Classify(context.Context, []byte, string) (domain.AnalysisResult, error) {
	return s.result, s.err
}

type captureSender struct {
	code string
}

func (c *captureSender) SendOTP(_ context.Context, _, code string) error {
	c.code = code
	return nil
}

type testEnv struct {
	srv    *httptest.Server
	sender *captureSender
}

func newTestEnv(t *testing.T, classifier *stubClassifier) *testEnv {
	t.Helper()
	if classifier == nil {
		classifier = &stubClassifier{result: domain.AnalysisResult{
			Digit:       "7",
			Confidence:  domain.ConfidenceHigh,
			Explanation: "A clear seven.",
		}}
	}
	sender := &captureSender{}
	core, err := app.New(app.Config{
		Store:              store.NewMemoryStore(),
		Sessions:           store.NewMemorySessionStore(),
		Codes:              otp.NewMemoryStore(),
		Classifier:         classifier,
		Sender:             sender,
		MinAnalyzeDuration: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, sender: sender}
}

func (e *testEnv) postJSON(t *testing.T, path, token string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (e *testEnv) signup(t *testing.T, name, email, password string) string {
	t.Helper()
	resp := e.postJSON(t, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup expected 201, got %d", resp.StatusCode)
	}
	auth := decodeBody[authResponse](t, resp)
	if auth.Token == "" {
		t.Fatalf("expected a session token")
	}
	return auth.Token
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ada", "Ada@Example.com", "hunter2")

	resp := env.get(t, "/auth/me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me expected 200, got %d", resp.StatusCode)
	}
	me := decodeBody[meResponse](t, resp)
	if me.User.Email != "ada@example.com" || me.User.Name != "Ada" || me.ScanCount != 0 {
		t.Fatalf("unexpected me response: %+v", me)
	}

	// Duplicate signup conflicts regardless of email case.
	resp = env.postJSON(t, "/auth/signup", "", map[string]string{
		"name": "Imposter", "email": "ADA@EXAMPLE.COM", "password": "other",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup expected 409, got %d", resp.StatusCode)
	}

	// Wrong password and unknown email produce the same 401.
	for _, creds := range []map[string]string{
		{"email": "ada@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "hunter2"},
	} {
		resp = env.postJSON(t, "/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("bad login expected 401, got %d", resp.StatusCode)
		}
		body := decodeBody[map[string]string](t, resp)
		if body["error"] != "Invalid email or password" {
			t.Fatalf("unexpected login error: %q", body["error"])
		}
	}

	resp = env.postJSON(t, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}
	login := decodeBody[authResponse](t, resp)

	resp = env.postJSON(t, "/auth/logout", login.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", resp.StatusCode)
	}
	resp = env.get(t, "/auth/me", login.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout expected 401, got %d", resp.StatusCode)
	}
}

func TestMeRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/auth/me", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAnalyzeAndHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ada", "ada@example.com", "hunter2")
	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))

	// Authenticated scan is analyzed and persisted.
	resp := env.postJSON(t, "/api/scans", token, map[string]string{
		"imageData": image, "mimeType": "image/png",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze expected 200, got %d", resp.StatusCode)
	}
	scan := decodeBody[scanResponse](t, resp)
	if scan.State != "success" || !scan.Saved || scan.Result == nil || scan.Result.Digit != "7" {
		t.Fatalf("unexpected scan response: %+v", scan)
	}

	// Anonymous scan still works but is not saved.
	resp = env.postJSON(t, "/api/scans", "", map[string]string{"imageData": image})
	anon := decodeBody[scanResponse](t, resp)
	if anon.State != "success" || anon.Saved {
		t.Fatalf("unexpected anonymous scan response: %+v", anon)
	}

	resp = env.get(t, "/api/scans", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history expected 200, got %d", resp.StatusCode)
	}
	history := decodeBody[historyResponse](t, resp)
	if len(history.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history.Records))
	}
	rec := history.Records[0]
	if rec.Digit != "7" || rec.UserEmail != "ada@example.com" || rec.MimeType != "image/png" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	resp = env.get(t, "/auth/me", token)
	me := decodeBody[meResponse](t, resp)
	if me.ScanCount != 1 {
		t.Fatalf("expected scanCount 1, got %d", me.ScanCount)
	}

	// History is private.
	resp = env.get(t, "/api/scans", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous history expected 401, got %d", resp.StatusCode)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/api/scans", "", map[string]string{"mimeType": "image/png"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing imageData expected 400, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/api/scans", "", map[string]string{"imageData": "not base64!!"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid base64 expected 400, got %d", resp.StatusCode)
	}
}

func TestAnalyzeFailureReturnsGenericError(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{err: errors.New("model exploded: quota exceeded")})
	image := base64.StdEncoding.EncodeToString([]byte("fake-png"))

	resp := env.postJSON(t, "/api/scans", "", map[string]string{"imageData": image})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	scan := decodeBody[scanResponse](t, resp)
	if scan.State != "error" {
		t.Fatalf("expected error state, got %s", scan.State)
	}
	if scan.Error != genericAnalyzeError {
		t.Fatalf("internal detail must not leak, got %q", scan.Error)
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signup(t, "Ada", "ada@example.com", "hunter2")

	// Unknown email is reported; there is no session to protect here.
	resp := env.postJSON(t, "/auth/password/forgot", "", map[string]string{"email": "nobody@example.com"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown email expected 404, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/auth/password/forgot", "", map[string]string{"email": "ada@example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot expected 200, got %d", resp.StatusCode)
	}
	forgot := decodeBody[flowResponse](t, resp)
	if forgot.Next != "forgot_reset" {
		t.Fatalf("expected next view forgot_reset, got %s", forgot.Next)
	}
	if env.sender.code == "" {
		t.Fatalf("expected a delivered reset code")
	}

	resp = env.postJSON(t, "/auth/password/reset", "", map[string]string{
		"email": "ada@example.com", "code": "000000", "newPassword": "newpass",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong code expected 400, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/auth/password/reset", "", map[string]string{
		"email": "ada@example.com", "code": env.sender.code, "newPassword": "abc",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password expected 400, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/auth/password/reset", "", map[string]string{
		"email": "ada@example.com", "code": env.sender.code, "newPassword": "newpass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset expected 200, got %d", resp.StatusCode)
	}
	reset := decodeBody[flowResponse](t, resp)
	if reset.Next != "forgot_success" {
		t.Fatalf("expected next view forgot_success, got %s", reset.Next)
	}

	resp = env.postJSON(t, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "newpass",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password expected 200, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/healthz", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.get(t, "/auth/signup", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
