package autosearch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category is the intent class assigned to a query by the classifier.
type Category int

const (
	ResearchPaper    Category = 0
	TechnicalExample Category = 1
	GeneralSearch    Category = 2
)

// ParseCategory converts a raw classifier value into a Category.
func ParseCategory(v int) (Category, error) {
	switch Category(v) {
	case ResearchPaper, TechnicalExample, GeneralSearch:
		return Category(v), nil
	default:
		return 0, fmt.Errorf("%w: category %d is not one of 0, 1, 2", ErrClassification, v)
	}
}

func (c Category) String() string {
	switch c {
	case ResearchPaper:
		return "research_paper"
	case TechnicalExample:
		return "technical_example"
	case GeneralSearch:
		return "general_search"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Config holds runtime configuration for a session.
type Config struct {
	// MaxRounds is the number of expansion rounds run after the initial evaluation.
	MaxRounds int
	// MaxFollowUps caps the follow-up queries processed per round.
	MaxFollowUps int
	// CallTimeout bounds every classifier, provider and evaluator call. Zero disables it.
	CallTimeout time.Duration
}

const (
	DefaultMaxRounds    = 1
	DefaultMaxFollowUps = 3
	DefaultCallTimeout  = 60 * time.Second
)

// DefaultConfig mirrors the single expansion round with at most three follow-ups.
func DefaultConfig() Config {
	return Config{
		MaxRounds:    DefaultMaxRounds,
		MaxFollowUps: DefaultMaxFollowUps,
		CallTimeout:  DefaultCallTimeout,
	}
}

// withDefaults replaces negative limits with the defaults. Zero is kept: no
// expansion rounds, or no follow-up queries.
func (c Config) withDefaults() Config {
	if c.MaxRounds < 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxFollowUps < 0 {
		c.MaxFollowUps = DefaultMaxFollowUps
	}
	return c
}

// SearchResult represents a single search result
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// ResultBatch is the ordered output of one provider call. Positions are local to it.
type ResultBatch []SearchResult

// EvaluationOutcome is the judge's verdict on a single batch.
type EvaluationOutcome struct {
	Reasoning         string   `json:"reasoning"`
	RelevantPositions []int    `json:"relevant_positions"`
	AdditionalQueries []string `json:"additional_queries"`
}

// Session tracks the state of one refinement run. It is owned by a single Run call.
type Session struct {
	ID       uuid.UUID
	Query    string
	Category Category
	Results  []SearchResult
	Round    int

	seen   map[string]struct{}
	issued map[string]struct{}
}

func newSession(query string) *Session {
	return &Session{
		ID:      uuid.New(),
		Query:   query,
		Results: []SearchResult{},
		seen:    make(map[string]struct{}),
		issued:  make(map[string]struct{}),
	}
}

// Result is returned by a successful Run.
type Result struct {
	SessionID uuid.UUID      `json:"session_id"`
	Category  Category       `json:"category"`
	Results   []SearchResult `json:"results"`
	Rounds    int            `json:"rounds"`
}
