package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// ContentGenerator is the subset of *genai.Models used by Gemini.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini is a classifier and evaluator using Gemini structured output.
// The response schema is passed to the API so the model is constrained server-side;
// the same validation as LangChain still runs on every response.
type Gemini struct {
	Models       ContentGenerator
	Model        string
	Logger       *slog.Logger
	Attempts     int
	MaxFollowUps int
}

// NewGemini creates a Gemini judge using the Gemini API with apiKey.
func NewGemini(ctx context.Context, apiKey, model string, attempts, maxFollowUps int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	if maxFollowUps <= 0 {
		maxFollowUps = autosearch.DefaultMaxFollowUps
	}
	return &Gemini{
		Models:       client.Models,
		Model:        model,
		Logger:       slog.Default(),
		Attempts:     attempts,
		MaxFollowUps: maxFollowUps,
	}, nil
}

func (j *Gemini) Classify(ctx context.Context, query string) (autosearch.Category, error) {
	var category autosearch.Category

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifySystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    classifyResponseSchema(),
		Temperature:       genai.Ptr[float32](0),
	}

	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate("Query: "+query, cfg), func(content string) error {
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
	return category, nil
}

func (j *Gemini) Evaluate(ctx context.Context, query string, batch autosearch.ResultBatch) (autosearch.EvaluationOutcome, error) {
	var outcome autosearch.EvaluationOutcome

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(evaluatePrompt(j.MaxFollowUps), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    evaluateResponseSchema(len(batch), j.MaxFollowUps),
		Temperature:       genai.Ptr[float32](0),
	}

	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate(formatBatch(query, batch), cfg), func(content string) error {
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
	return outcome, nil
}

func (j *Gemini) ReformatQuery(ctx context.Context, query string, date time.Time) (string, error) {
	var advanced string

	cfg := rewriteConfig(reformatPrompt(date))
	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate("Query: "+query, cfg), func(content string) error {
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
	return advanced, nil
}

func (j *Gemini) FindSimilar(ctx context.Context, req SimilarRequest) (string, error) {
	var similar string

	system, prompt := similarPrompts(req)
	err := generateWithRetry(ctx, j.logger(), j.Attempts, j.generate(prompt, rewriteConfig(system)), func(content string) error {
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

func (j *Gemini) generate(prompt string, cfg *genai.GenerateContentConfig) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		resp, err := j.Models.GenerateContent(ctx, j.Model, genai.Text(prompt), cfg)
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("gemini returned no text")
		}
		return text, nil
	}
}

func (j *Gemini) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func rewriteConfig(system string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"reasoning": {
					Type:        genai.TypeString,
					Description: "Short reasoning about which terms and operators to use",
				},
				"query": {
					Type:        genai.TypeString,
					Description: "The search query, on one line",
				},
			},
			Required:         []string{"reasoning", "query"},
			PropertyOrdering: []string{"reasoning", "query"},
		},
		Temperature: genai.Ptr[float32](rewriteTemperature),
	}
}

func classifyResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {
				Type:        genai.TypeInteger,
				Description: "0 for research paper, 1 for technical example, 2 for general search",
				Minimum:     genai.Ptr[float64](0),
				Maximum:     genai.Ptr[float64](2),
			},
		},
		Required: []string{"category"},
	}
}

func evaluateResponseSchema(batchLen, maxFollowUps int) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"reasoning": {
				Type:        genai.TypeString,
				Description: "Concise step-by-step reasoning for evaluating the results",
			},
			"relevant_positions": {
				Type:        genai.TypeArray,
				Description: "Positions of the 3-5 most relevant results, most relevant first",
				MaxItems:    genai.Ptr[int64](maxPositions),
				Items: &genai.Schema{
					Type:    genai.TypeInteger,
					Minimum: genai.Ptr[float64](0),
					Maximum: genai.Ptr(float64(batchLen - 1)),
				},
			},
			"additional_queries": {
				Type:        genai.TypeArray,
				Description: "Additional queries covering information that is still missing",
				MaxItems:    genai.Ptr(int64(maxFollowUps)),
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required:         []string{"reasoning", "relevant_positions", "additional_queries"},
		PropertyOrdering: []string{"reasoning", "relevant_positions", "additional_queries"},
	}
}
