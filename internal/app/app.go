// Package app assembles a Conversation and its stores from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"nsfas-assistant/internal/domain"
	"nsfas-assistant/internal/integrations/gemini"
	"nsfas-assistant/internal/integrations/openai"
	"nsfas-assistant/internal/integrations/paramstore"
	"nsfas-assistant/internal/intents"
	"nsfas-assistant/internal/repository"
	"nsfas-assistant/internal/usecase"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"

	tokenParameter = "api-token"
)

// Config is everything needed to build the assistant. Callers fill it from
// the environment and flags.
type Config struct {
	IntentsPath string

	Provider      string
	GeminiModel   string
	OpenAIModel   string
	OpenAIBaseURL string
	APIKey        string
	ParamPrefix   string

	StoreBackend   string
	TicketsPath    string
	AnalyticsPath  string
	SQLitePath     string
	TicketsTable   string
	AnalyticsTable string

	CallTimeout       time.Duration
	MaxQuestionLength int
	RandomSeed        uint64

	Logger *slog.Logger
}

// App holds the assembled conversation. Close releases the stores.
type App struct {
	Conversation *usecase.Conversation
	Intents      *intents.Store
	Resolver     *intents.Resolver

	closers []func() error
	awsCfg  *aws.Config
}

func configError(reason string, err error) error {
	return &usecase.Error{Code: usecase.ErrorConfiguration, Reason: reason, Err: err}
}

// LoadIntents reads the pattern source and builds a resolver over it.
func LoadIntents(cfg Config) (*intents.Store, *intents.Resolver, error) {
	store, err := intents.LoadOnce(cfg.IntentsPath)
	if err != nil {
		return nil, nil, err
	}
	resolver, err := intents.NewResolver(store, newRand(cfg.RandomSeed))
	if err != nil {
		return nil, nil, err
	}
	return store, resolver, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Build loads the intents, connects the completion service and the stores
// and returns a ready Conversation. Pattern source problems surface as
// *intents.ConfigError.
func Build(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, resolver, err := LoadIntents(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Intents: store, Resolver: resolver}

	llm, err := a.completer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tickets, analytics, err := a.stores(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if cfg.CallTimeout > 0 {
		opts = append(opts, usecase.WithCallTimeout(cfg.CallTimeout))
	}
	if cfg.MaxQuestionLength > 0 {
		opts = append(opts, usecase.WithMaxQuestionLength(cfg.MaxQuestionLength))
	}
	a.Conversation, err = usecase.NewConversation(usecase.Dependencies{
		Completer: llm,
		Resolver:  resolver,
		Tickets:   tickets,
		Analytics: analytics,
	}, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("assistant ready",
		"intents", store.Len(),
		"provider", cfg.Provider,
		"store", cfg.StoreBackend,
	)
	return a, nil
}

// Close releases every store opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, configError("aws_config", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

func (a *App) tokens(ctx context.Context, cfg Config) (tokenSource, error) {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return paramstore.StaticToken(cfg.APIKey), nil
	}
	if strings.TrimSpace(cfg.ParamPrefix) == "" {
		return nil, configError("missing_api_key", errors.New("set API_KEY or PARAM_PREFIX"))
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramstore.WithPrefix(cfg.ParamPrefix))
	if err != nil {
		return nil, err
	}
	return paramstore.NewTokenSource(ssmClient, tokenParameter)
}

func (a *App) completer(ctx context.Context, cfg Config) (usecase.Completer, error) {
	tokens, err := a.tokens(ctx, cfg)
	if err != nil {
		return nil, err
	}
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case "", ProviderGemini:
		client, err := gemini.New(ctx, tokens, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			return nil, configError("gemini_client", err)
		}
		return client, nil
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.OpenAIModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		client, err := openai.NewClient(tokens, opts...)
		if err != nil {
			return nil, configError("openai_client", err)
		}
		return client, nil
	default:
		return nil, configError("unknown_provider", fmt.Errorf("completion provider %q", provider))
	}
}

func (a *App) stores(ctx context.Context, cfg Config) (usecase.TicketStore, usecase.AnalyticsStore, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend)); backend {
	case "", BackendFile:
		tickets, err := repository.NewTicketFile(orDefault(cfg.TicketsPath, repository.DefaultTicketsPath))
		if err != nil {
			return nil, nil, configError("ticket_store", err)
		}
		analytics, err := repository.NewAnalyticsFile(orDefault(cfg.AnalyticsPath, repository.DefaultAnalyticsPath))
		if err != nil {
			return nil, nil, configError("analytics_store", err)
		}
		return tickets, analytics, nil
	case BackendSQLite:
		db, err := repository.OpenSQLite(ctx, orDefault(cfg.SQLitePath, "assistant.db"))
		if err != nil {
			return nil, nil, configError("sqlite_store", err)
		}
		a.closers = append(a.closers, db.Close)
		return db, db, nil
	case BackendDynamoDB:
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.TicketsTable, orDefault(cfg.AnalyticsTable, cfg.TicketsTable))
		if err != nil {
			return nil, nil, configError("dynamodb_store", err)
		}
		return client, client, nil
	default:
		return nil, nil, configError("unknown_store_backend", fmt.Errorf("store backend %q", backend))
	}
}

// TicketLister reads back the escalation queue.
type TicketLister interface {
	PendingTickets(ctx context.Context) ([]domain.Ticket, error)
}

// SessionReader reads back the turns one session flushed.
type SessionReader interface {
	SessionTurns(ctx context.Context, sessionID string) ([]domain.Turn, error)
}

// Records gives operators read access to what sessions stored. Sessions is
// nil for backends that keep no per-session history.
type Records struct {
	Tickets  TicketLister
	Sessions SessionReader

	app *App
}

// OpenRecords opens only the configured stores; no completion service or
// pattern source is needed.
func OpenRecords(ctx context.Context, cfg Config) (*Records, error) {
	a := &App{}
	tickets, analytics, err := a.stores(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	r := &Records{app: a}
	var ok bool
	if r.Tickets, ok = tickets.(TicketLister); !ok {
		_ = a.Close()
		return nil, configError("ticket_listing_unsupported", fmt.Errorf("store backend %q", cfg.StoreBackend))
	}
	r.Sessions, _ = analytics.(SessionReader)
	return r, nil
}

func (r *Records) Close() error {
	return r.app.Close()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
