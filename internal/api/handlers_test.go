package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lovelydeco/TallerBot/internal/document"
	"github.com/lovelydeco/TallerBot/internal/flow"
	"github.com/lovelydeco/TallerBot/internal/models"
	"github.com/lovelydeco/TallerBot/internal/store"
)

type mockGenAI struct {
	reply string
	err   error
}

func (m *mockGenAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.reply, m.err
}

func newTestServer(genai *mockGenAI, opts ...Option) *Server {
	cfg := flow.DefaultConfig()
	cfg.UseRetrieval = false
	fl := flow.New(cfg, store.NewInMemoryStore(), genai, nil, "Showroom en Palermo, envíos a todo el país.", nil)
	return NewServer(fl, &document.Index{}, cfg.RetryLaterReply, opts...)
}

func postWebhook(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.webhookHandler(w, req)
	return w
}

func TestWebhookHandler_Success(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "Estamos en Palermo 🛋️"})
	w := postWebhook(t, s, `{"consulta":"¿dónde están ubicados?","user_id":"u1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected JSON content type, got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	var reply models.WebhookReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if reply.Respuesta != "Estamos en Palermo 🛋️" {
		t.Errorf("unexpected respuesta: %q", reply.Respuesta)
	}
}

func TestWebhookHandler_FallbackSentencePassesThrough(t *testing.T) {
	fallback := flow.DefaultConfig().FallbackReply
	s := newTestServer(&mockGenAI{reply: fallback})
	w := postWebhook(t, s, `{"consulta":"¿venden autos?","user_id":"u1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var reply models.WebhookReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if reply.Respuesta != fallback {
		t.Errorf("expected fallback sentence verbatim, got %q", reply.Respuesta)
	}
}

func TestWebhookHandler_MissingConsulta(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"})
	w := postWebhook(t, s, `{"user_id":"u1"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var webhookErr models.WebhookError
	if err := json.Unmarshal(w.Body.Bytes(), &webhookErr); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if webhookErr.Error == "" {
		t.Error("expected structured error message")
	}
}

func TestWebhookHandler_InvalidJSON(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"})
	w := postWebhook(t, s, `{"consulta": `)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"})
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	w := httptest.NewRecorder()
	s.webhookHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", got)
	}
}

func TestWebhookHandler_UpstreamFailureAnswers200(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "", err: context.DeadlineExceeded})
	w := postWebhook(t, s, `{"consulta":"hola","user_id":"u1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("upstream failure must answer 200, got %d", w.Code)
	}
	var reply models.WebhookReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if reply.Respuesta != flow.DefaultConfig().RetryLaterReply {
		t.Errorf("expected retry reply, got %q", reply.Respuesta)
	}
}

func TestWebhookHandler_ResolvesFromNumber(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "hola"})
	w := postWebhook(t, s, `{"consulta":"hola","from":"whatsapp:+5491100000000"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestWebhookHandler_SignatureRequired(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"}, WithTwilioValidation("secreto", "https://bot.example.com/webhook"))
	w := postWebhook(t, s, `{"consulta":"hola","user_id":"u1"}`)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without signature header, got %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("unexpected status: %q", resp.Status)
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&mockGenAI{reply: "ok"})
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(models.APIStatusError) || resp.Message == "" {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}
