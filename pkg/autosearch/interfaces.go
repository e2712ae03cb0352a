package autosearch

import "context"

// Classifier maps query text to a Category.
type Classifier interface {
	Classify(ctx context.Context, query string) (Category, error)
}

// Evaluator judges a batch against the original query.
// RelevantPositions in the returned outcome must index into batch.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, batch ResultBatch) (EvaluationOutcome, error)
}

// SearchProvider executes a text query against a web search backend.
// Errors are treated as recoverable by the engine and degrade to an empty batch.
type SearchProvider interface {
	Search(ctx context.Context, query string) (ResultBatch, error)
}

// EventSink receives the ordered events of one session.
// The engine calls Close exactly once when the session ends.
type EventSink interface {
	Write(event string, payload any) error
	Close() error
}
