package judge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

// maxPositions caps how many results a single evaluation may select.
const maxPositions = 5

// decodeJSON unmarshals content into v, repairing malformed model output once.
func decodeJSON(content string, v any) error {
	content = stripFences(content)
	err := json.Unmarshal([]byte(content), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return fmt.Errorf("json parse error: %w (content: %s)", err, content)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("json parse error after repair: %w (content: %s)", err, content)
	}
	return nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func parseCategory(content string) (autosearch.Category, error) {
	var resp struct {
		Category json.RawMessage `json:"category"`
	}
	if err := decodeJSON(content, &resp); err != nil {
		return 0, fmt.Errorf("%w: %w", autosearch.ErrClassification, err)
	}
	if len(resp.Category) == 0 {
		return 0, fmt.Errorf("%w: missing category field", autosearch.ErrClassification)
	}

	raw := strings.Trim(strings.TrimSpace(string(resp.Category)), `"`)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: category %s is not an integer", autosearch.ErrClassification, resp.Category)
	}
	return autosearch.ParseCategory(v)
}

// parseEvaluation decodes and validates an evaluation for a batch of batchLen results.
func parseEvaluation(content string, batchLen, maxFollowUps int) (autosearch.EvaluationOutcome, error) {
	var resp struct {
		Reasoning         *string   `json:"reasoning"`
		RelevantPositions *[]int    `json:"relevant_positions"`
		AdditionalQueries *[]string `json:"additional_queries"`
	}
	if err := decodeJSON(content, &resp); err != nil {
		return autosearch.EvaluationOutcome{}, fmt.Errorf("%w: %w", autosearch.ErrEvaluation, err)
	}

	switch {
	case resp.Reasoning == nil || strings.TrimSpace(*resp.Reasoning) == "":
		return autosearch.EvaluationOutcome{}, fmt.Errorf("%w: missing reasoning", autosearch.ErrEvaluation)
	case resp.RelevantPositions == nil:
		return autosearch.EvaluationOutcome{}, fmt.Errorf("%w: missing relevant_positions", autosearch.ErrEvaluation)
	case resp.AdditionalQueries == nil:
		return autosearch.EvaluationOutcome{}, fmt.Errorf("%w: missing additional_queries", autosearch.ErrEvaluation)
	}

	positions := make([]int, 0, maxPositions)
	seen := make(map[int]bool)
	for _, p := range *resp.RelevantPositions {
		if p < 0 || p >= batchLen {
			return autosearch.EvaluationOutcome{}, fmt.Errorf("%w: position %d outside batch of %d results", autosearch.ErrEvaluation, p, batchLen)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		positions = append(positions, p)
		if len(positions) == maxPositions {
			break
		}
	}

	return autosearch.EvaluationOutcome{
		Reasoning:         strings.TrimSpace(*resp.Reasoning),
		RelevantPositions: positions,
		AdditionalQueries: distinctQueries(*resp.AdditionalQueries, maxFollowUps),
	}, nil
}

func distinctQueries(queries []string, max int) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]bool)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
