package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// LangChain is a classifier, evaluator and query rewriter backed by any langchaingo model.
// The response format is enforced with JSON mode and a schema in the system prompt.
type LangChain struct {
	LLM          llms.Model
	Logger       *slog.Logger
	Attempts     int
	MaxFollowUps int
}

func NewLangChain(llm llms.Model, attempts, maxFollowUps int) *LangChain {
	if maxFollowUps <= 0 {
		maxFollowUps = autosearch.DefaultMaxFollowUps
	}
	return &LangChain{
		LLM:          llm,
		Logger:       slog.Default(),
		Attempts:     attempts,
		MaxFollowUps: maxFollowUps,
	}
}

func (j *LangChain) Classify(ctx context.Context, query string) (autosearch.Category, error) {
	var category autosearch.Category

	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, classifySystemPrompt+"\n\n# Response Format: \n\n"+classifySchema),
		llms.TextParts(llms.ChatMessageTypeHuman, "Query: "+query),
	}, 0), func(content string) error {
		c, err := parseCategory(content)
		if err != nil {
			return err
		}
		category = c
		return nil
	})
	if err != nil {
		return 0, err
	}

	j.logger().Debug("Classified query", "query", query, "category", category.String())
	return category, nil
}

func (j *LangChain) Evaluate(ctx context.Context, query string, batch autosearch.ResultBatch) (autosearch.EvaluationOutcome, error) {
	var outcome autosearch.EvaluationOutcome

	schema := evaluateSchemaFor(len(batch), j.MaxFollowUps)
	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, evaluatePrompt(j.MaxFollowUps)+"\n\n# Response Format:\n"+schema),
		llms.TextParts(llms.ChatMessageTypeHuman, formatBatch(query, batch)),
	}, 0), func(content string) error {
		o, err := parseEvaluation(content, len(batch), j.MaxFollowUps)
		if err != nil {
			return err
		}
		outcome = o
		return nil
	})
	if err != nil {
		return autosearch.EvaluationOutcome{}, err
	}

	j.logger().Debug("Evaluated results", "batch", len(batch), "positions", outcome.RelevantPositions, "queries", outcome.AdditionalQueries)
	return outcome, nil
}

// ReformatQuery rewrites a natural-language request into an advanced search query.
// date anchors relative requests such as "latest".
func (j *LangChain) ReformatQuery(ctx context.Context, query string, date time.Time) (string, error) {
	var advanced string

	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, reformatPrompt(date)+"\n\n# Response Format:\n"+rewriteSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, "Query: "+query),
	}, rewriteTemperature), func(content string) error {
		q, err := parseRewrite(content)
		if err != nil {
			return err
		}
		advanced = q
		return nil
	})
	if err != nil {
		return "", err
	}

	j.logger().Debug("Reformatted query", "query", query, "advanced", advanced)
	return advanced, nil
}

// FindSimilar writes a search query for pages similar to req.TextChunk.
func (j *LangChain) FindSimilar(ctx context.Context, req SimilarRequest) (string, error) {
	var similar string

	system, human := similarPrompts(req)
	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system+"\n\n# Response Format:\n"+rewriteSchema),
		llms.TextParts(llms.ChatMessageTypeHuman, human),
	}, rewriteTemperature), func(content string) error {
		q, err := parseSimilar(content, req)
		if err != nil {
			return err
		}
		similar = q
		return nil
	})
	if err != nil {
		return "", err
	}
	return similar, nil
}

func (j *LangChain) generate(prompts []llms.MessageContent, temperature float64) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		resp, err := j.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode(), llms.WithTemperature(temperature))
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("llm returned no choices")
		}
		return resp.Choices[0].Content, nil
	}
}

func (j *LangChain) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
