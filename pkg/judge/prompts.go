package judge

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

const classifySystemPrompt = `You are a search query classifier.
Classify the query into exactly one of three categories:
0 - research paper: the user wants scholarly, peer-reviewed or academic sources.
1 - technical example: the user wants code, implementations, tutorials or worked technical examples.
2 - general search: everything else.`

const evaluateSystemPrompt = `You are a search result evaluator.
Evaluate the search results for relevance and credibility with respect to the query.
Reason step by step, concisely.
Select the positions of the 3-5 most relevant results (fewer if there are fewer results), most relevant first.
Only use positions that appear in the list.
Propose up to %d additional search queries that would cover information still missing.`

const classifySchema = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "category": {
      "type": "integer",
      "enum": [0, 1, 2],
      "description": "0 for research paper, 1 for technical example, 2 for general search"
    }
  },
  "required": ["category"]
}`

const evaluateSchema = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "reasoning": {
      "type": "string",
      "description": "Concise step-by-step reasoning for evaluating the results"
    },
    "relevant_positions": {
      "type": "array",
      "items": {"type": "integer", "minimum": 0, "maximum": %d},
      "description": "Positions of the 3-5 most relevant results, most relevant first"
    },
    "additional_queries": {
      "type": "array",
      "items": {"type": "string"},
      "maxItems": %d,
      "description": "Additional queries covering information that is still missing"
    }
  },
  "required": ["reasoning", "relevant_positions", "additional_queries"]
}`

func evaluatePrompt(maxFollowUps int) string {
	return fmt.Sprintf(evaluateSystemPrompt, maxFollowUps)
}

func evaluateSchemaFor(batchLen, maxFollowUps int) string {
	return fmt.Sprintf(evaluateSchema, batchLen-1, maxFollowUps)
}

// formatBatch renders a batch with its positions so the model can reference them.
func formatBatch(query string, batch autosearch.ResultBatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nResults:\n", query)
	for i, r := range batch {
		fmt.Fprintf(&b, "Position: %d\nTitle: %s\nLink: %s\nSnippet: %s\n\n", i, r.Title, r.Link, r.Snippet)
	}
	return b.String()
}

const reformatSystemPrompt = `You turn a natural-language request into one advanced Google search query.
Today's date is %s.
Use search operators where they sharpen the results: quotes for exact phrases, OR, a leading minus to exclude terms, site:, inurl:, intitle:, filetype:, after: and before:.
Pick the scope from what the user is looking for:
- research papers: append site:arxiv.org | site:nature.com | site:.org | site:.edu | site:.gov | inurl:doi
- job postings: append site:greenhouse.io | site:lever.co | site:dover.com | site:jobvite.com | site:myworkdayjobs.com
- technical examples or code: append site:github.com | site:arxiv.org | site:medium.com | site:reddit.com
- anything else: no site restriction.
If the user asks for the latest or most recent work, add after:%d.
The query goes on a single line.`

const similarChunkPrompt = `You write one Google search query that finds pages similar to a text chunk.
Pick the few terms that best identify the subject of the chunk and combine them with search operators where they help.
The query goes on a single line.`

const similarQueryPrompt = `You write one Google search query that finds pages similar to a text chunk, for a user who searched with the query shown.
Keep every site:, inurl: and after: operator of the user query exactly as written.
Replace the remaining terms with the few that best identify the subject of the chunk.
The query goes on a single line.`

const rewriteSchema = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "reasoning": {
      "type": "string",
      "description": "Short reasoning about which terms and operators to use"
    },
    "query": {
      "type": "string",
      "description": "The search query, on one line"
    }
  },
  "required": ["reasoning", "query"]
}`

// reformatPrompt fills in the date so relative requests resolve to concrete bounds.
func reformatPrompt(date time.Time) string {
	return fmt.Sprintf(reformatSystemPrompt, date.Format(time.DateOnly), date.Year()-2)
}

// similarPrompts returns the system and user prompt for a find-similar request.
func similarPrompts(req SimilarRequest) (string, string) {
	if strings.TrimSpace(req.OriginalQuery) == "" {
		return similarChunkPrompt, "Text chunk:\n" + req.TextChunk
	}
	return similarQueryPrompt, fmt.Sprintf("User query: %s\n\nText chunk:\n%s", req.OriginalQuery, req.TextChunk)
}
