// Package api provides the HTTP webhook server for TallerBot.
//
// It exposes the conversational webhook endpoint consumed by the channel
// provider and wires together the GenAI client, document index, conversation
// store, dialogue flow, and handoff notifier.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/lovelydeco/TallerBot/internal/document"
	"github.com/lovelydeco/TallerBot/internal/flow"
	"github.com/lovelydeco/TallerBot/internal/genai"
	"github.com/lovelydeco/TallerBot/internal/handoff"
	"github.com/lovelydeco/TallerBot/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ContextPath     string
	ChunkWordBudget int
	RetrievalTopK   int
	TwilioAuthToken string
	PublicURL       string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithContextPath sets the reference document path.
func WithContextPath(path string) Option {
	return func(o *Opts) { o.ContextPath = path }
}

// WithChunkWordBudget sets the word budget per index chunk.
func WithChunkWordBudget(budget int) Option {
	return func(o *Opts) { o.ChunkWordBudget = budget }
}

// WithRetrievalTopK sets the number of chunks retrieved per query.
func WithRetrievalTopK(k int) Option {
	return func(o *Opts) { o.RetrievalTopK = k }
}

// WithTwilioValidation enables X-Twilio-Signature validation of inbound
// webhook requests. publicURL is the externally visible webhook URL the
// provider signed; when empty it is reconstructed from the request.
func WithTwilioValidation(authToken, publicURL string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.PublicURL = publicURL
	}
}

// Server handles webhook HTTP requests.
type Server struct {
	addr       string
	flow       *flow.Flow
	index      *document.Index
	validator  *twilioclient.RequestValidator
	publicURL  string
	retryReply string
}

// NewServer creates an API server around an assembled dialogue flow.
func NewServer(fl *flow.Flow, index *document.Index, retryReply string, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		addr:       cfg.Addr,
		flow:       fl,
		index:      index,
		publicURL:  cfg.PublicURL,
		retryReply: retryReply,
	}
	if cfg.TwilioAuthToken != "" {
		v := twilioclient.NewRequestValidator(cfg.TwilioAuthToken)
		s.validator = &v
		slog.Debug("NewServer: Twilio signature validation enabled", "public_url_set", cfg.PublicURL != "")
	}
	return s
}

// Run assembles all modules and serves the webhook until the listener fails.
// The document index is built to completion before the server accepts
// traffic.
func Run(genaiOpts []genai.Option, storeOpts []store.Option, handoffOpts []handoff.Option, flowCfg flow.DialogueConfig, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	var client genai.ClientInterface
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	// A missing or unreadable reference document degrades to ungrounded
	// responses; it must not prevent startup.
	docText, err := document.LoadReference(cfg.ContextPath)
	if err != nil {
		slog.Warn("Run: reference document unavailable, continuing ungrounded", "error", err, "path", cfg.ContextPath)
		docText = ""
	}

	ctx := context.Background()
	index, err := document.BuildIndex(ctx, client, docText, document.WithChunkWordBudget(cfg.ChunkWordBudget))
	if err != nil {
		slog.Error("Run: document index build failed, continuing with empty index", "error", err)
		index = &document.Index{}
	}

	st := store.NewInMemoryStore(storeOpts...)

	var notifier flow.HandoffNotifier
	n, err := handoff.NewNotifier(handoffOpts...)
	if err != nil {
		slog.Warn("Run: handoff notifier unavailable, handoffs will degrade to the fallback reply", "error", err)
	} else {
		notifier = n
	}

	retriever := document.NewRetriever(index, client, cfg.RetrievalTopK)
	fl := flow.New(flowCfg, st, client, retriever, docText, notifier)

	server := NewServer(fl, index, flowCfg.RetryLaterReply, apiOpts...)
	return server.Serve()
}

// Serve registers routes and blocks on the HTTP listener.
func (s *Server) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)

	slog.Info("Server.Serve: TallerBot API listening", "addr", s.addr, "indexed_chunks", s.index.Len())
	return http.ListenAndServe(s.addr, mux)
}
