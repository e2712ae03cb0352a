// Package clients builds the judge, search provider and engine from configuration.
package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/autosearch/pkg/autosearch"
	"github.com/mikeboe/autosearch/pkg/config"
	"github.com/mikeboe/autosearch/pkg/judge"
	"github.com/mikeboe/autosearch/pkg/search"
	"github.com/mikeboe/autosearch/pkg/server"
)

// Judge classifies queries, evaluates result batches and rewrites queries.
type Judge interface {
	autosearch.Classifier
	autosearch.Evaluator
	server.Rewriter
}

func NewJudge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Judge, error) {
	model := cfg.Model()

	switch cfg.LLMProvider {
	case config.LLMGoogleAI:
		llm, err := GoogleAi(ctx, cfg.GoogleApiKey, model)
		if err != nil {
			return nil, err
		}
		j := judge.NewLangChain(llm, cfg.LLMRetries, cfg.MaxFollowUps)
		j.Logger = logger
		return j, nil
	case config.LLMOpenAI:
		llm, err := OpenAI(cfg.OpenAIApiKey, model)
		if err != nil {
			return nil, err
		}
		j := judge.NewLangChain(llm, cfg.LLMRetries, cfg.MaxFollowUps)
		j.Logger = logger
		return j, nil
	case config.LLMGemini:
		j, err := judge.NewGemini(ctx, cfg.GoogleApiKey, model, cfg.LLMRetries, cfg.MaxFollowUps)
		if err != nil {
			return nil, err
		}
		j.Logger = logger
		return j, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// NewSearchProvider returns the configured backend wrapped with retries.
func NewSearchProvider(cfg *config.Config, logger *slog.Logger) (autosearch.SearchProvider, error) {
	var provider autosearch.SearchProvider

	switch cfg.SearchProvider {
	case config.SearchSerper:
		provider = search.NewSerper(cfg.SerperApiKey, cfg.MaxResults)
	case config.SearchDuckDuckGo:
		provider = search.NewDuckDuckGo(cfg.MaxResults)
	case config.SearchArxiv:
		a := search.NewArxiv(cfg.MaxResults)
		a.Logger = logger
		provider = a
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}

	r := search.NewRetrying(provider, cfg.ProviderRetries)
	r.Logger = logger
	return r, nil
}

// NewEngine wires a judge and search provider into an engine reporting to metrics.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *autosearch.Metrics) (*autosearch.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	j, err := NewJudge(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewEngineWithJudge(cfg, j, logger, metrics)
}

// NewEngineWithJudge wires an existing judge into an engine, so callers can share
// it with the query rewriting endpoints.
func NewEngineWithJudge(cfg *config.Config, j Judge, logger *slog.Logger, metrics *autosearch.Metrics) (*autosearch.Engine, error) {
	provider, err := NewSearchProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := autosearch.NewEngine(EngineConfig(cfg), j, j, provider)
	engine.Logger = logger
	engine.Metrics = metrics
	return engine, nil
}

func EngineConfig(cfg *config.Config) autosearch.Config {
	return autosearch.Config{
		MaxRounds:    cfg.MaxRounds,
		MaxFollowUps: cfg.MaxFollowUps,
		CallTimeout:  cfg.CallTimeout,
	}
}
