package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"nsfas-assistant/internal/app"
)

// options are the persistent flags. Defaults come from the environment so
// the worker process started by "console" inherits them unchanged.
type options struct {
	intentsPath    string
	provider       string
	geminiModel    string
	openAIModel    string
	openAIBaseURL  string
	paramPrefix    string
	storeBackend   string
	ticketsPath    string
	analyticsPath  string
	sqlitePath     string
	ticketsTable   string
	analyticsTable string
	callTimeout    int
	randomSeed     uint64
	verbose        bool
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.intentsPath, "intents", envOr("INTENTS_PATH", "intents.json"), "pattern source (JSON or YAML)")
	fs.StringVar(&o.provider, "provider", envOr("COMPLETION_PROVIDER", app.ProviderGemini), "completion service: gemini or openai")
	fs.StringVar(&o.geminiModel, "gemini-model", os.Getenv("GEMINI_MODEL"), "Gemini model name")
	fs.StringVar(&o.openAIModel, "openai-model", os.Getenv("OPENAI_MODEL"), "OpenAI-compatible model name")
	fs.StringVar(&o.openAIBaseURL, "openai-base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible endpoint")
	fs.StringVar(&o.paramPrefix, "param-prefix", os.Getenv("PARAM_PREFIX"), "SSM prefix holding api-token when API_KEY is unset")
	fs.StringVar(&o.storeBackend, "store", envOr("STORE_BACKEND", app.BackendFile), "ticket and analytics store: file, sqlite or dynamodb")
	fs.StringVar(&o.ticketsPath, "tickets", os.Getenv("TICKETS_PATH"), "ticket file for the file store")
	fs.StringVar(&o.analyticsPath, "analytics", os.Getenv("ANALYTICS_PATH"), "analytics file for the file store")
	fs.StringVar(&o.sqlitePath, "sqlite", os.Getenv("SQLITE_PATH"), "database path for the sqlite store")
	fs.StringVar(&o.ticketsTable, "tickets-table", os.Getenv("TICKETS_TABLE"), "DynamoDB table for tickets")
	fs.StringVar(&o.analyticsTable, "analytics-table", os.Getenv("ANALYTICS_TABLE"), "DynamoDB table for analytics")
	fs.IntVar(&o.callTimeout, "call-timeout", envInt("CALL_TIMEOUT_SECONDS", 30), "seconds allowed per completion call")
	fs.Uint64Var(&o.randomSeed, "seed", uint64(envInt("RANDOM_SEED", 0)), "response selection seed, 0 for time based")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging on stderr")
}

func (o *options) config() app.Config {
	return app.Config{
		IntentsPath:    o.intentsPath,
		Provider:       o.provider,
		GeminiModel:    o.geminiModel,
		OpenAIModel:    o.openAIModel,
		OpenAIBaseURL:  o.openAIBaseURL,
		APIKey:         os.Getenv("API_KEY"),
		ParamPrefix:    o.paramPrefix,
		StoreBackend:   o.storeBackend,
		TicketsPath:    o.ticketsPath,
		AnalyticsPath:  o.analyticsPath,
		SQLitePath:     o.sqlitePath,
		TicketsTable:   o.ticketsTable,
		AnalyticsTable: o.analyticsTable,
		CallTimeout:    time.Duration(o.callTimeout) * time.Second,
		RandomSeed:     o.randomSeed,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
