package autosearch

// Event names, in the order a session emits them.
const (
	EventQueryCategory                 = "queryCategory"
	EventFirstQuery                    = "firstQuery"
	EventInitialResults                = "initialResults"
	EventEvaluationReasoning           = "evaluationReasoning"
	EventRelevantPositions             = "relevantPositions"
	EventAdditionalQueries             = "additionalQueries"
	EventTopResults                    = "topResults"
	EventRelevantResults               = "relevantResults"
	EventAdditionalEvaluationReasoning = "additionalEvaluationReasoning"
	EventDone                          = "done"
	EventError                         = "error"
)

type QueryCategoryPayload struct {
	Category Category `json:"category"`
}

type FirstQueryPayload struct {
	Query string `json:"query"`
}

type InitialResultsPayload struct {
	InitialResults []SearchResult `json:"initialResults"`
}

type ReasoningPayload struct {
	Reasoning string `json:"reasoning"`
}

type RelevantPositionsPayload struct {
	RelevantPositions []int `json:"relevantPositions"`
}

type AdditionalQueriesPayload struct {
	AdditionalQueries []string `json:"additionalQueries"`
}

type TopResultsPayload struct {
	TopResults []SearchResult `json:"topResults"`
}

type RelevantResultsPayload struct {
	Round           int            `json:"round"`
	Query           string         `json:"query"`
	RelevantResults []SearchResult `json:"relevantResults"`
}

type RoundReasoningPayload struct {
	Round     int    `json:"round"`
	Query     string `json:"query"`
	Reasoning string `json:"reasoning"`
}

type DonePayload struct {
	Done     bool           `json:"done"`
	Category Category       `json:"category"`
	Results  []SearchResult `json:"results"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
