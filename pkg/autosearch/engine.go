package autosearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// noResultsReasoning is reported for rounds whose search returned nothing.
const noResultsReasoning = "The search returned no results, so there was nothing to evaluate."

type Engine struct {
	Config     Config
	Classifier Classifier
	Evaluator  Evaluator
	Provider   SearchProvider
	Logger     *slog.Logger
	Metrics    *Metrics
}

func NewEngine(cfg Config, classifier Classifier, evaluator Evaluator, provider SearchProvider) *Engine {
	return &Engine{
		Config:     cfg.withDefaults(),
		Classifier: classifier,
		Evaluator:  evaluator,
		Provider:   provider,
		Logger:     slog.Default(),
	}
}

// Run executes one session for query, streaming every step to sink.
// The sink is closed exactly once before Run returns. On failure a single
// error event with a generic message is written and the returned error wraps
// ErrSession together with the original cause.
func (e *Engine) Run(ctx context.Context, query string, sink EventSink) (*Result, error) {
	started := time.Now()
	s := newSession(query)
	logger := e.logger().With("session_id", s.ID.String())

	e.Metrics.sessionStarted()
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("Failed to close event sink", "error", err)
		}
	}()

	logger.Info("Starting search session", "query", query)

	if err := e.run(ctx, s, sink, logger); err != nil {
		logger.Error("Search session failed", "round", s.Round, "error", err)
		if werr := sink.Write(EventError, ErrorPayload{Message: errorMessage}); werr != nil {
			logger.Warn("Failed to deliver error event", "error", werr)
		}
		e.Metrics.sessionFinished("error", started)
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}

	if err := sink.Write(EventDone, DonePayload{Done: true, Category: s.Category, Results: s.Results}); err != nil {
		logger.Error("Failed to deliver done event", "error", err)
		e.Metrics.sessionFinished("error", started)
		return nil, fmt.Errorf("%w: writing %s event: %w", ErrSession, EventDone, err)
	}

	e.Metrics.sessionFinished("done", started)
	logger.Info("Search session complete", "category", s.Category.String(), "results", len(s.Results), "rounds", s.Round)

	return &Result{
		SessionID: s.ID,
		Category:  s.Category,
		Results:   s.Results,
		Rounds:    s.Round,
	}, nil
}

func (e *Engine) run(ctx context.Context, s *Session, sink EventSink, logger *slog.Logger) error {
	if strings.TrimSpace(s.Query) == "" {
		return ErrEmptyQuery
	}

	// 1. Classify
	category, err := e.classify(ctx, s.Query)
	if err != nil {
		return fmt.Errorf("classifying query: %w", err)
	}
	s.Category = category
	logger.Info("Classified query", "category", category.String())
	if err := emit(sink, EventQueryCategory, QueryCategoryPayload{Category: category}); err != nil {
		return err
	}

	// 2. Initial search
	initialQuery := InitialQuery(s.Query, category)
	s.markIssued(initialQuery)
	if err := emit(sink, EventFirstQuery, FirstQueryPayload{Query: initialQuery}); err != nil {
		return err
	}
	batch, err := e.search(ctx, initialQuery, logger)
	if err != nil {
		return err
	}
	if err := emit(sink, EventInitialResults, InitialResultsPayload{InitialResults: batch}); err != nil {
		return err
	}

	// 3. Initial evaluation
	outcome, relevant, err := e.evaluate(ctx, s.Query, batch)
	if err != nil {
		return fmt.Errorf("evaluating initial results: %w", err)
	}
	followUps := s.claim(outcome.AdditionalQueries, e.Config.MaxFollowUps)

	if err := emit(sink, EventEvaluationReasoning, ReasoningPayload{Reasoning: outcome.Reasoning}); err != nil {
		return err
	}
	if err := emit(sink, EventRelevantPositions, RelevantPositionsPayload{RelevantPositions: outcome.RelevantPositions}); err != nil {
		return err
	}
	if err := emit(sink, EventAdditionalQueries, AdditionalQueriesPayload{AdditionalQueries: followUps}); err != nil {
		return err
	}

	top := e.accumulate(s, relevant)
	if err := emit(sink, EventTopResults, TopResultsPayload{TopResults: top}); err != nil {
		return err
	}

	// 4. Expansion
	pending := followUps
	for round := 1; round <= e.Config.MaxRounds && len(pending) > 0; round++ {
		s.Round = round
		logger.Info("Starting expansion round", "round", round, "queries", len(pending))

		var proposed []string
		for _, q := range pending {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("expansion round %d interrupted: %w", round, err)
			}
			outcome, err := e.expand(ctx, s, sink, round, q, logger)
			if err != nil {
				return fmt.Errorf("expansion round %d, query %q: %w", round, q, err)
			}
			proposed = append(proposed, outcome.AdditionalQueries...)
		}

		if round < e.Config.MaxRounds {
			pending = s.claim(proposed, e.Config.MaxFollowUps)
		}
	}

	return nil
}

// expand runs one follow-up query: search, evaluate, dedup, emit.
func (e *Engine) expand(ctx context.Context, s *Session, sink EventSink, round int, query string, logger *slog.Logger) (EvaluationOutcome, error) {
	e.Metrics.followUp()

	batch, err := e.search(ctx, FollowUpQuery(query, s.Category), logger)
	if err != nil {
		return EvaluationOutcome{}, err
	}

	outcome, relevant, err := e.evaluate(ctx, s.Query, batch)
	if err != nil {
		return EvaluationOutcome{}, err
	}

	fresh := e.accumulate(s, relevant)
	logger.Info("Follow-up query processed", "round", round, "query", query, "batch", len(batch), "new", len(fresh), "total", len(s.Results))

	if err := emit(sink, EventRelevantResults, RelevantResultsPayload{Round: round, Query: query, RelevantResults: fresh}); err != nil {
		return EvaluationOutcome{}, err
	}
	if err := emit(sink, EventAdditionalEvaluationReasoning, RoundReasoningPayload{Round: round, Query: query, Reasoning: outcome.Reasoning}); err != nil {
		return EvaluationOutcome{}, err
	}
	return outcome, nil
}

func (e *Engine) classify(ctx context.Context, query string) (Category, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	category, err := e.Classifier.Classify(callCtx, query)
	if err != nil {
		return 0, err
	}
	// The classifier is an external judge; re-check the closed set.
	return ParseCategory(int(category))
}

// search calls the provider and absorbs its failures as an empty batch.
// It only returns an error when ctx itself is done.
func (e *Engine) search(ctx context.Context, query string, logger *slog.Logger) (ResultBatch, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	batch, err := e.Provider.Search(callCtx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("search interrupted: %w", ctxErr)
		}
		e.Metrics.providerFailure()
		logger.Warn("Search provider failed, continuing with empty batch", "query", query, "error", err)
		return ResultBatch{}, nil
	}
	if batch == nil {
		batch = ResultBatch{}
	}
	return batch, nil
}

// evaluate judges batch and returns the outcome together with the selected results.
// Empty batches are not sent to the evaluator.
func (e *Engine) evaluate(ctx context.Context, query string, batch ResultBatch) (EvaluationOutcome, []SearchResult, error) {
	if len(batch) == 0 {
		return EvaluationOutcome{
			Reasoning:         noResultsReasoning,
			RelevantPositions: []int{},
			AdditionalQueries: []string{},
		}, []SearchResult{}, nil
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	outcome, err := e.Evaluator.Evaluate(callCtx, query, batch)
	if err != nil {
		return EvaluationOutcome{}, nil, err
	}
	if outcome.RelevantPositions == nil {
		outcome.RelevantPositions = []int{}
	}

	relevant, err := selectRelevant(batch, outcome.RelevantPositions)
	if err != nil {
		return EvaluationOutcome{}, nil, err
	}
	return outcome, relevant, nil
}

// selectRelevant picks batch items by position. Any position outside the batch is an
// evaluation error; positions are never clamped.
func selectRelevant(batch ResultBatch, positions []int) ([]SearchResult, error) {
	selected := make([]SearchResult, 0, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(batch) {
			return nil, fmt.Errorf("%w: position %d outside batch of %d results", ErrEvaluation, p, len(batch))
		}
		selected = append(selected, batch[p])
	}
	return selected, nil
}

// accumulate dedups results against the session and appends the survivors.
func (e *Engine) accumulate(s *Session, results []SearchResult) []SearchResult {
	fresh := Dedup(results, s.seen)
	s.Results = append(s.Results, fresh...)
	e.Metrics.uniqueResults(len(fresh))
	return fresh
}

// markIssued records a query string exactly as it was sent to the provider.
func (s *Session) markIssued(sent string) {
	s.issued[strings.ToLower(sent)] = struct{}{}
}

// claim normalizes proposed follow-ups, drops any whose scoped form was already
// sent in this session, caps the list at max and marks the survivors as issued.
// A max of zero claims nothing.
func (s *Session) claim(queries []string, max int) []string {
	fresh := []string{}
	if max <= 0 {
		return fresh
	}
	for _, q := range normalizeQueries(queries, 0) {
		key := strings.ToLower(FollowUpQuery(q, s.Category))
		if _, ok := s.issued[key]; ok {
			continue
		}
		s.issued[key] = struct{}{}
		fresh = append(fresh, q)
		if len(fresh) == max {
			break
		}
	}
	return fresh
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Config.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.Config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func emit(sink EventSink, name string, payload any) error {
	if err := sink.Write(name, payload); err != nil {
		return fmt.Errorf("writing %s event: %w", name, err)
	}
	return nil
}
