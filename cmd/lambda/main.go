package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"nsfas-assistant/handler"
	"nsfas-assistant/internal/app"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	ticketsTable := mustEnv("TICKETS_TABLE")
	cfg := app.Config{
		IntentsPath:       envOr("INTENTS_PATH", "intents.json"),
		Provider:          envOr("COMPLETION_PROVIDER", app.ProviderGemini),
		GeminiModel:       os.Getenv("GEMINI_MODEL"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		APIKey:            os.Getenv("API_KEY"),
		ParamPrefix:       mustEnv("PARAM_PREFIX"),
		StoreBackend:      app.BackendDynamoDB,
		TicketsTable:      ticketsTable,
		AnalyticsTable:    envOr("ANALYTICS_TABLE", ticketsTable),
		CallTimeout:       time.Duration(envInt("CALL_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxQuestionLength: envInt("MAX_QUESTION_LENGTH", 1000),
		Logger:            slog.Default(),
	}

	// ---- Assistant ----
	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build assistant", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Conversation)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
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
	if err != nil {
		return def
	}
	return n
}
