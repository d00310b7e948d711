package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// webhookHandler processes one inbound chat message and returns the reply.
//
// Status mapping is decided here, once: hard validation failures get a 4xx
// with a structured error; everything downstream of validation answers 200,
// including upstream provider failures, so the channel provider's retry
// logic never duplicate-sends.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	// Nothing may escape the webhook boundary uncaught.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Server.webhookHandler: recovered from panic", "panic", rec, "request_id", requestID)
			writeJSONResponse(w, http.StatusOK, models.WebhookReply{Respuesta: s.retryReply})
		}
	}()

	slog.Debug("Server.webhookHandler: processing webhook request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method, "request_id", requestID)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to read request body", "error", err, "request_id", requestID)
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookError{Error: "No se pudo leer la solicitud"})
		return
	}

	if s.validator != nil && !s.validSignature(r, body) {
		slog.Warn("Server.webhookHandler: invalid webhook signature", "request_id", requestID)
		writeJSONResponse(w, http.StatusForbidden, models.WebhookError{Error: "Firma inválida"})
		return
	}

	var req models.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err, "request_id", requestID)
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookError{Error: "Formato JSON inválido"})
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.webhookHandler: validation failed", "error", err, "request_id", requestID)
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookError{Error: "No se recibió ninguna consulta"})
		return
	}

	userID := req.ResolveUserID()
	slog.Debug("Server.webhookHandler: dispatching to dialogue flow", "userID", userID, "request_id", requestID)

	reply, err := s.flow.ProcessMessage(r.Context(), userID, req.Consulta)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			writeJSONResponse(w, http.StatusBadRequest, models.WebhookError{Error: "No se recibió ninguna consulta"})
			return
		}
		// Anything else is internal; answer politely with a success status.
		slog.Error("Server.webhookHandler: flow processing failed", "error", err, "userID", userID, "request_id", requestID)
		writeJSONResponse(w, http.StatusOK, models.WebhookReply{Respuesta: s.retryReply})
		return
	}

	slog.Info("Server.webhookHandler: reply produced", "userID", userID, "kind", reply.Kind, "request_id", requestID)
	writeJSONResponse(w, http.StatusOK, models.WebhookReply{Respuesta: reply.Text})
}

// validSignature checks the X-Twilio-Signature header over the raw body.
func (s *Server) validSignature(r *http.Request, body []byte) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	url := s.publicURL
	if url == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		url = scheme + "://" + r.Host + r.URL.RequestURI()
	}
	return s.validator.ValidateBody(url, body, signature)
}

// healthHandler reports liveness and index readiness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":         "ok",
		"indexed_chunks": s.index.Len(),
	}))
}
