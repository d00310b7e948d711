package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lovelydeco/TallerBot/internal/api"
	"github.com/lovelydeco/TallerBot/internal/flow"
	"github.com/lovelydeco/TallerBot/internal/genai"
	"github.com/lovelydeco/TallerBot/internal/handoff"
	"github.com/lovelydeco/TallerBot/internal/store"
	"github.com/lovelydeco/TallerBot/internal/util"
)

// Config holds environment configuration
type Config struct {
	OpenAIKey       string        `envconfig:"OPENAI_API_KEY"`
	OpenAIOrg       string        `envconfig:"OPENAI_ORG_ID"`
	OpenAIProject   string        `envconfig:"OPENAI_PROJECT_ID"`
	ContextPath     string        `envconfig:"CONTEXT_PATH" default:"lovely_taller.txt"`
	HandoffURL      string        `envconfig:"HANDOFF_URL"`
	FallbackPhone   string        `envconfig:"FALLBACK_PHONE"`
	APIAddr         string        `envconfig:"API_ADDR" default:":8080"`
	PublicURL       string        `envconfig:"PUBLIC_URL"`
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"6"`
	ConversationTTL time.Duration `envconfig:"CONVERSATION_TTL" default:"12h"`
	UseRetrieval    bool          `envconfig:"USE_RETRIEVAL" default:"true"`
	RetrievalTopK   int           `envconfig:"RETRIEVAL_TOP_K" default:"3"`
	ChunkWordBudget int           `envconfig:"CHUNK_WORD_BUDGET" default:"500"`
	TwilioSID       string        `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioToken     string        `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom      string        `envconfig:"TWILIO_FROM_NUMBER"`
	AdvisorWhats    string        `envconfig:"ADVISOR_WHATSAPP"`
}

// Flags holds command line flag values
type Flags struct {
	openaiKey   *string
	contextPath *string
	handoffURL  *string
	apiAddr     *string
	topK        *int
}

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}

	flags := parseCommandLineFlags(config)

	genaiOpts := buildGenAIOptions(config, flags)
	storeOpts := buildStoreOptions(config)
	handoffOpts := buildHandoffOptions(config, flags)
	flowCfg := buildFlowConfig(config)
	apiOpts := buildAPIOptions(config, flags)

	slog.Info("Bootstrapping TallerBot with configured modules")
	slog.Debug("Final configuration",
		"api_addr", *flags.apiAddr,
		"context_path", *flags.contextPath,
		"handoff_url_set", *flags.handoffURL != "",
		"use_retrieval", config.UseRetrieval,
		"retrieval_top_k", *flags.topK)
	if err := api.Run(genaiOpts, storeOpts, handoffOpts, flowCfg, apiOpts); err != nil {
		slog.Error("TallerBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TallerBot exited successfully")
}

// initializeLogger sets up structured logging. TALLERBOT_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TALLERBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, err
	}

	slog.Debug("environment variables loaded",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_ORG_ID_SET", config.OpenAIOrg != "",
		"OPENAI_PROJECT_ID_SET", config.OpenAIProject != "",
		"CONTEXT_PATH", config.ContextPath,
		"HANDOFF_URL_SET", config.HandoffURL != "",
		"API_ADDR", config.APIAddr,
		"HISTORY_LIMIT", config.HistoryLimit,
		"CONVERSATION_TTL", config.ConversationTTL,
		"USE_RETRIEVAL", config.UseRetrieval,
		"RETRIEVAL_TOP_K", config.RetrievalTopK,
		"CHUNK_WORD_BUDGET", config.ChunkWordBudget,
		"TWILIO_CONFIGURED", config.TwilioSID != "" && config.TwilioToken != "")

	return config, nil
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		contextPath: flag.String("context-path", config.ContextPath, "reference document path (overrides $CONTEXT_PATH)"),
		handoffURL:  flag.String("handoff-url", config.HandoffURL, "human-handoff service URL (overrides $HANDOFF_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		topK:        flag.Int("retrieval-top-k", config.RetrievalTopK, "chunks retrieved per query (overrides $RETRIEVAL_TOP_K)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"openaiKeySet", *flags.openaiKey != "",
		"contextPath", *flags.contextPath,
		"handoffURLSet", *flags.handoffURL != "",
		"apiAddr", *flags.apiAddr,
		"topK", *flags.topK)

	return flags
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config, flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if config.OpenAIOrg != "" {
		genaiOpts = append(genaiOpts, genai.WithOrganization(config.OpenAIOrg))
	}
	if config.OpenAIProject != "" {
		genaiOpts = append(genaiOpts, genai.WithProject(config.OpenAIProject))
	}
	return genaiOpts
}

// buildStoreOptions constructs conversation store configuration options
func buildStoreOptions(config Config) []store.Option {
	var storeOpts []store.Option
	if config.HistoryLimit > 0 {
		storeOpts = append(storeOpts, store.WithHistoryLimit(config.HistoryLimit))
	}
	if config.ConversationTTL > 0 {
		storeOpts = append(storeOpts, store.WithTTL(config.ConversationTTL))
	}
	return storeOpts
}

// buildHandoffOptions constructs handoff notifier configuration options
func buildHandoffOptions(config Config, flags Flags) []handoff.Option {
	var handoffOpts []handoff.Option
	if *flags.handoffURL != "" {
		handoffOpts = append(handoffOpts, handoff.WithEndpoint(*flags.handoffURL))
	}
	if config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "" && config.AdvisorWhats != "" {
		handoffOpts = append(handoffOpts, handoff.WithTwilioAlert(config.TwilioSID, config.TwilioToken, config.TwilioFrom, config.AdvisorWhats))
	}
	return handoffOpts
}

// buildFlowConfig assembles the dialogue configuration
func buildFlowConfig(config Config) flow.DialogueConfig {
	flowCfg := flow.DefaultConfig()
	if config.FallbackPhone != "" {
		flowCfg = flow.ConfigWithPhone(config.FallbackPhone)
	}
	flowCfg.UseRetrieval = config.UseRetrieval
	return flowCfg
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithContextPath(*flags.contextPath),
		api.WithChunkWordBudget(config.ChunkWordBudget),
		api.WithRetrievalTopK(*flags.topK),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.TwilioToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioValidation(config.TwilioToken, config.PublicURL))
	}
	return apiOpts
}
