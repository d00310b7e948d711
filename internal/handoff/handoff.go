// Package handoff notifies an external human-handoff service when a
// conversation should move to a human agent.
//
// The notification is a synchronous JSON POST; its round-trip is part of the
// webhook response latency. Optionally the human advisor is also pinged over
// WhatsApp through the Twilio REST API.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// DefaultTimeout bounds the handoff service round-trip.
const DefaultTimeout = 10 * time.Second

// Notification is the payload posted to the handoff service.
type Notification struct {
	Numero   string `json:"numero"`
	Consulta string `json:"consulta"`
}

// Opts holds configuration options for the notifier.
type Opts struct {
	Endpoint     string
	HTTPClient   *http.Client
	AccountSID   string
	AuthToken    string
	FromWhats    string
	AdvisorWhats string
}

// Option defines a configuration option for the notifier.
type Option func(*Opts)

// WithEndpoint sets the handoff service URL.
func WithEndpoint(url string) Option {
	return func(o *Opts) { o.Endpoint = url }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTwilioAlert enables a best-effort WhatsApp alert to the human advisor
// whenever a handoff notification succeeds.
func WithTwilioAlert(accountSID, authToken, fromWhats, advisorWhats string) Option {
	return func(o *Opts) {
		o.AccountSID = accountSID
		o.AuthToken = authToken
		o.FromWhats = fromWhats
		o.AdvisorWhats = advisorWhats
	}
}

// Notifier delivers handoff notifications.
type Notifier struct {
	endpoint     string
	httpClient   *http.Client
	twilioClient *twilio.RestClient
	fromWhats    string
	advisorWhats string
}

// NewNotifier creates a notifier. The endpoint falls back to the HANDOFF_URL
// environment variable.
func NewNotifier(opts ...Option) (*Notifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("HANDOFF_URL")
	}
	slog.Debug("Notifier config loaded",
		"endpoint_set", cfg.Endpoint != "",
		"twilio_alert_set", cfg.AccountSID != "" && cfg.AdvisorWhats != "")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("handoff endpoint not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	n := &Notifier{
		endpoint:     cfg.Endpoint,
		httpClient:   cfg.HTTPClient,
		fromWhats:    cfg.FromWhats,
		advisorWhats: cfg.AdvisorWhats,
	}
	if cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.FromWhats != "" && cfg.AdvisorWhats != "" {
		n.twilioClient = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	}
	return n, nil
}

// Notify posts the handoff notification. A non-2xx response or transport
// failure returns an error and leaves dialogue state untouched at the caller.
func (n *Notifier) Notify(ctx context.Context, userID, reason string) error {
	payload, err := json.Marshal(Notification{Numero: userID, Consulta: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal handoff notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.Error("Notifier.Notify: handoff request failed", "error", err, "userID", userID)
		return fmt.Errorf("%w: %v", models.ErrHandoffDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		slog.Error("Notifier.Notify: handoff service rejected notification", "status", resp.StatusCode, "userID", userID)
		return fmt.Errorf("%w: handoff service returned status %d", models.ErrHandoffDelivery, resp.StatusCode)
	}

	slog.Info("Notifier.Notify: handoff notification delivered", "userID", userID)
	n.alertAdvisor(userID, reason)
	return nil
}

// alertAdvisor pings the human advisor over WhatsApp. Failures are logged and
// never propagated; the handoff itself already succeeded.
func (n *Notifier) alertAdvisor(userID, reason string) {
	if n.twilioClient == nil {
		return
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.fromWhats)
	params.SetTo(n.advisorWhats)
	params.SetBody(fmt.Sprintf("🔔 Nuevo cliente para atender: %s\nConsulta: %s", userID, reason))
	if _, err := n.twilioClient.Api.CreateMessage(params); err != nil {
		slog.Warn("Notifier.alertAdvisor: failed to alert advisor", "error", err, "userID", userID)
		return
	}
	slog.Debug("Notifier.alertAdvisor: advisor alerted", "userID", userID)
}
