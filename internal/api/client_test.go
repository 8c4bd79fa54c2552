package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartchat-ai/smartchat/internal/auth"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *auth.CredentialStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := auth.NewCredentialStore()
	guard := auth.NewResponseGuard(creds, nil)
	c, err := NewClient(srv.URL, creds, guard)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, creds
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	creds := auth.NewCredentialStore()
	if _, err := NewClient("", creds, auth.NewResponseGuard(creds, nil)); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestLogin_StoresSession(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["username"] != "zoe" || body["password"] != "hunter2" {
			t.Errorf("request body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access":   "acc-tok",
			"refresh":  "ref-tok",
			"username": "zoe",
		})
	}))

	sess, err := c.Login(context.Background(), "zoe", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Access != "acc-tok" || sess.Username != "zoe" {
		t.Errorf("session = %+v", sess)
	}
	if got := creds.AuthHeader(); got != "Bearer acc-tok" {
		t.Errorf("AuthHeader after login = %q", got)
	}
	if got := creds.RefreshToken(); got != "ref-tok" {
		t.Errorf("RefreshToken after login = %q", got)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
	}))

	_, err := c.Login(context.Background(), "zoe", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login err = %v; a wrong password is not a session expiry", err)
	}
	if !strings.Contains(err.Error(), "Invalid credentials") {
		t.Errorf("error %q does not carry the server message", err)
	}
	if creds.AuthHeader() != "" {
		t.Error("credentials stored despite failed login")
	}
}

func TestLogin_WrongPasswordDoesNotExpireSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
	}))
	t.Cleanup(srv.Close)

	creds := auth.NewCredentialStore()
	fired := 0
	guard := auth.NewResponseGuard(creds, func() { fired++ })
	c, err := NewClient(srv.URL, creds, guard)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Login(context.Background(), "zoe", "wrong"); err == nil {
		t.Fatal("expected login error")
	}
	if err := c.Register(context.Background(), "zoe", "wrong"); err == nil {
		t.Fatal("expected register error")
	}

	if fired != 0 {
		t.Errorf("expiry callback fired %d times during login/register; want 0", fired)
	}
	if creds.Expired() {
		t.Error("store latched by a failed login")
	}
}

func TestRegister_ErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Username already exists"})
	}))

	err := c.Register(context.Background(), "zoe", "hunter2")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Username already exists") {
		t.Errorf("error %q does not carry the server message", err)
	}
}

func TestLogout_PostsRefreshToken(t *testing.T) {
	var posted string
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		posted = body["refresh"]
		w.WriteHeader(http.StatusResetContent)
	}))
	_ = creds.SetSession("acc", "ref-tok", "zoe")

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if posted != "ref-tok" {
		t.Errorf("logout posted refresh = %q; want \"ref-tok\"", posted)
	}
}

func TestHistory_DecodesEntries(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer acc" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`[
			{"message_id": 7, "user_message": "helo", "ai_response": "Hi there!", "corrected_message": "hello"},
			{"message_id": 8, "user_message": "how are you", "ai_response": "Great.", "corrected_message": ""}
		]`))
	}))
	_ = creds.SetSession("acc", "ref", "zoe")

	entries, err := c.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d; want 2", len(entries))
	}
	if entries[0].MessageID.String() != "7" {
		t.Errorf("MessageID = %q; want \"7\"", entries[0].MessageID)
	}
	if entries[0].CorrectedMessage != "hello" {
		t.Errorf("CorrectedMessage = %q", entries[0].CorrectedMessage)
	}
	if entries[1].AIResponse != "Great." {
		t.Errorf("AIResponse = %q", entries[1].AIResponse)
	}
}

func TestSend_ReturnsReplyAndID(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "hello there" {
			t.Errorf("text = %q", body["text"])
		}
		w.Write([]byte(`{"reply": "General Kenobi!", "message_id": 42}`))
	}))
	_ = creds.SetSession("acc", "ref", "zoe")

	res, err := c.Send(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Reply != "General Kenobi!" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.MessageID.String() != "42" {
		t.Errorf("MessageID = %q; want \"42\"", res.MessageID)
	}
}

func TestGrammarCheck(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["message_id"] != "42" {
			t.Errorf("message_id = %q", body["message_id"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"original":  "me wants coffee",
			"corrected": "I want coffee",
		})
	}))
	_ = creds.SetSession("acc", "ref", "zoe")

	corr, err := c.GrammarCheck(context.Background(), "42")
	if err != nil {
		t.Fatalf("GrammarCheck: %v", err)
	}
	if corr.Corrected != "I want coffee" {
		t.Errorf("Corrected = %q", corr.Corrected)
	}
}

func TestCreateSubscription(t *testing.T) {
	c, creds := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int64
		json.NewDecoder(r.Body).Decode(&body)
		if body["amount"] != 499 {
			t.Errorf("amount = %d", body["amount"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"order_id":     "order_abc123",
			"provider_key": "pk_test_xyz",
			"amount":       499,
			"currency":     "USD",
		})
	}))
	_ = creds.SetSession("acc", "ref", "zoe")

	order, err := c.CreateSubscription(context.Background(), 499)
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if order.OrderID != "order_abc123" || order.ProviderKey != "pk_test_xyz" {
		t.Errorf("order = %+v", order)
	}
	if order.Amount != 499 || order.Currency != "USD" {
		t.Errorf("order = %+v", order)
	}
}

func TestUnauthorized_LatchesGuardOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	creds := auth.NewCredentialStore()
	fired := 0
	guard := auth.NewResponseGuard(creds, func() { fired++ })
	c, err := NewClient(srv.URL, creds, guard)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_ = creds.SetSession("stale", "ref", "zoe")

	for i := 0; i < 3; i++ {
		if _, err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Send err = %v; want ErrUnauthorized", err)
		}
	}
	if fired != 1 {
		t.Errorf("expiry callback fired %d times; want 1", fired)
	}
	if !creds.Expired() {
		t.Error("store not latched after 401 responses")
	}
}

func TestServerError_NoErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Send(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("error = %q; want HTTP 500 mention", err)
	}
}

func TestContextCancellation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.History(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
