package autosearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/autosearch/pkg/stream"
)

type fakeClassifier struct {
	category Category
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (Category, error) {
	f.calls++
	return f.category, f.err
}

// scriptedEvaluator returns outcomes in call order.
type scriptedEvaluator struct {
	outcomes []EvaluationOutcome
	errs     map[int]error
	batches  []ResultBatch
}

func (s *scriptedEvaluator) Evaluate(_ context.Context, _ string, batch ResultBatch) (EvaluationOutcome, error) {
	idx := len(s.batches)
	s.batches = append(s.batches, batch)
	if err, ok := s.errs[idx]; ok {
		return EvaluationOutcome{}, err
	}
	if idx >= len(s.outcomes) {
		return EvaluationOutcome{Reasoning: "nothing relevant"}, nil
	}
	return s.outcomes[idx], nil
}

// mapProvider answers by exact query text; unknown queries fail.
type mapProvider struct {
	batches map[string]ResultBatch
	fail    map[string]bool
	queries []string
}

func (m *mapProvider) Search(_ context.Context, query string) (ResultBatch, error) {
	m.queries = append(m.queries, query)
	if m.fail[query] {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", ErrProvider)
	}
	b, ok := m.batches[query]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected query %q", ErrProvider, query)
	}
	return b, nil
}

func results(prefix string, n int) ResultBatch {
	batch := make(ResultBatch, n)
	for i := range batch {
		batch[i] = SearchResult{
			Title:   fmt.Sprintf("%s %d", prefix, i),
			Link:    fmt.Sprintf("https://example.org/%s/%d", strings.ReplaceAll(prefix, " ", "-"), i),
			Snippet: "snippet",
		}
	}
	return batch
}

func quietEngine(cfg Config, c Classifier, ev Evaluator, p SearchProvider) *Engine {
	e := NewEngine(cfg, c, ev, p)
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return e
}

func TestRunResearchPaperScenario(t *testing.T) {
	query := "graph neural networks"
	initial := results("gnn", 6)
	benchmarks := results("bench", 4)
	// overlaps with the initial batch, differs only in case
	applications := ResultBatch{
		{Title: strings.ToUpper(initial[1].Title), Link: strings.ToUpper(initial[1].Link)},
		{Title: "apps", Link: "https://example.org/apps"},
	}

	provider := &mapProvider{batches: map[string]ResultBatch{
		InitialQuery(query, ResearchPaper):               initial,
		FollowUpQuery("GNN benchmarks", ResearchPaper):   benchmarks,
		FollowUpQuery("GNN applications", ResearchPaper): applications,
		FollowUpQuery("GNN theory", ResearchPaper):       {},
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "initial", RelevantPositions: []int{1, 3, 5}, AdditionalQueries: []string{"GNN benchmarks", "GNN applications", "GNN theory"}},
		{Reasoning: "bench", RelevantPositions: []int{0, 2}},
		{Reasoning: "apps", RelevantPositions: []int{0, 1}},
	}}

	reg := prometheus.NewRegistry()
	engine := quietEngine(DefaultConfig(), &fakeClassifier{category: ResearchPaper}, evaluator, provider)
	engine.Metrics = MustNewMetrics(reg)
	sink := stream.NewRecorder()

	res, err := engine.Run(context.Background(), query, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventQueryCategory, EventFirstQuery, EventInitialResults,
		EventEvaluationReasoning, EventRelevantPositions, EventAdditionalQueries, EventTopResults,
		EventRelevantResults, EventAdditionalEvaluationReasoning,
		EventRelevantResults, EventAdditionalEvaluationReasoning,
		EventRelevantResults, EventAdditionalEvaluationReasoning,
		EventDone,
	}, sink.Names())
	assert.Equal(t, 1, sink.Closes())

	var first FirstQueryPayload
	require.NoError(t, sink.Decode(EventFirstQuery, &first))
	assert.Equal(t, "graph neural networks site:arxiv.org | site:nature.com | site:.org | site:.edu | site:.gov | inurl:doi", first.Query)

	var top TopResultsPayload
	require.NoError(t, sink.Decode(EventTopResults, &top))
	assert.Equal(t, []SearchResult{initial[1], initial[3], initial[5]}, top.TopResults)

	// follow-ups are issued one at a time, in order, re-scoped for research papers
	assert.Equal(t, []string{
		InitialQuery(query, ResearchPaper),
		FollowUpQuery("GNN benchmarks", ResearchPaper),
		FollowUpQuery("GNN applications", ResearchPaper),
		FollowUpQuery("GNN theory", ResearchPaper),
	}, provider.queries)

	// the empty follow-up batch never reaches the evaluator
	assert.Len(t, evaluator.batches, 3)

	want := []SearchResult{initial[1], initial[3], initial[5], benchmarks[0], benchmarks[2], applications[1]}
	assert.Equal(t, want, res.Results)
	assert.Equal(t, ResearchPaper, res.Category)
	assert.Equal(t, 1, res.Rounds)

	var done DonePayload
	require.NoError(t, sink.Decode(EventDone, &done))
	assert.True(t, done.Done)
	assert.Equal(t, want, done.Results)

	assert.Equal(t, float64(1), testutil.ToFloat64(engine.Metrics.sessions.WithLabelValues("done")))
	assert.Equal(t, float64(3), testutil.ToFloat64(engine.Metrics.rounds))
	assert.Equal(t, float64(6), testutil.ToFloat64(engine.Metrics.newResults))
}

func TestRunAccumulatedResultsNeverShrink(t *testing.T) {
	query := "rust async runtimes"
	initial := results("rt", 5)
	provider := &mapProvider{batches: map[string]ResultBatch{
		query:     initial,
		"tokio":   append(ResultBatch{initial[0]}, results("tokio", 2)...),
		"smol":    ResultBatch{initial[0], initial[1]},
		"glommio": results("glommio", 3),
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0, 1}, AdditionalQueries: []string{"tokio", "smol", "glommio"}},
		{Reasoning: "r", RelevantPositions: []int{0, 1, 2}},
		{Reasoning: "r", RelevantPositions: []int{0, 1}},
		{Reasoning: "r", RelevantPositions: []int{2}},
	}}
	sink := stream.NewRecorder()

	res, err := quietEngine(DefaultConfig(), &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(context.Background(), query, sink)
	require.NoError(t, err)

	size := 0
	for _, ev := range sink.Events() {
		switch ev.Name {
		case EventTopResults:
			var p TopResultsPayload
			require.NoError(t, sink.Decode(ev.Name, &p))
			size += len(p.TopResults)
		case EventRelevantResults:
			var p RelevantResultsPayload
			require.NoError(t, json.Unmarshal(ev.Data, &p))
			for _, r := range p.RelevantResults {
				assert.NotContains(t, res.Results[:size], r, "result reported as new twice")
			}
			size += len(p.RelevantResults)
		}
	}
	assert.Equal(t, len(res.Results), size)
	assert.Len(t, res.Results, 5)
}

func TestRunProviderFailureIsAbsorbed(t *testing.T) {
	query := "kubernetes operators"
	initial := results("k8s", 3)
	provider := &mapProvider{
		batches: map[string]ResultBatch{
			InitialQuery(query, TechnicalExample): initial,
			"operator sdk":                        results("sdk", 2),
		},
		fail: map[string]bool{"kubebuilder": true},
	}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"kubebuilder", "operator sdk"}},
		{Reasoning: "sdk", RelevantPositions: []int{1}},
	}}

	reg := prometheus.NewRegistry()
	engine := quietEngine(DefaultConfig(), &fakeClassifier{category: TechnicalExample}, evaluator, provider)
	engine.Metrics = MustNewMetrics(reg)
	sink := stream.NewRecorder()

	res, err := engine.Run(context.Background(), query, sink)
	require.NoError(t, err)

	events := sink.Events()
	var failedRound RelevantResultsPayload
	var failedReasoning RoundReasoningPayload
	require.NoError(t, json.Unmarshal(events[7].Data, &failedRound))
	require.NoError(t, json.Unmarshal(events[8].Data, &failedReasoning))
	assert.Equal(t, EventRelevantResults, events[7].Name)
	assert.Equal(t, "kubebuilder", failedRound.Query)
	assert.Empty(t, failedRound.RelevantResults)
	assert.Contains(t, string(events[7].Data), `"relevantResults":[]`)
	assert.Equal(t, noResultsReasoning, failedReasoning.Reasoning)

	assert.Equal(t, EventDone, events[len(events)-1].Name)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(engine.Metrics.providerFailures))
}

func TestRunFailures(t *testing.T) {
	query := "graph neural networks"
	initialQuery := InitialQuery(query, GeneralSearch)

	tests := []struct {
		name       string
		classifier *fakeClassifier
		evaluator  *scriptedEvaluator
		wantErr    error
		wantEvents []string
	}{
		{
			name:       "Classification error",
			classifier: &fakeClassifier{err: fmt.Errorf("%w: model said \"maybe\"", ErrClassification)},
			evaluator:  &scriptedEvaluator{},
			wantErr:    ErrClassification,
			wantEvents: []string{EventError},
		},
		{
			name:       "Category outside closed set",
			classifier: &fakeClassifier{category: Category(7)},
			evaluator:  &scriptedEvaluator{},
			wantErr:    ErrClassification,
			wantEvents: []string{EventError},
		},
		{
			name:       "Initial position out of bounds",
			classifier: &fakeClassifier{category: GeneralSearch},
			evaluator: &scriptedEvaluator{outcomes: []EvaluationOutcome{
				{Reasoning: "r", RelevantPositions: []int{0, 6}},
			}},
			wantErr:    ErrEvaluation,
			wantEvents: []string{EventQueryCategory, EventFirstQuery, EventInitialResults, EventError},
		},
		{
			name:       "Negative position",
			classifier: &fakeClassifier{category: GeneralSearch},
			evaluator: &scriptedEvaluator{outcomes: []EvaluationOutcome{
				{Reasoning: "r", RelevantPositions: []int{-1}},
			}},
			wantErr:    ErrEvaluation,
			wantEvents: []string{EventQueryCategory, EventFirstQuery, EventInitialResults, EventError},
		},
		{
			name:       "Follow-up evaluation error aborts remaining rounds",
			classifier: &fakeClassifier{category: GeneralSearch},
			evaluator: &scriptedEvaluator{
				outcomes: []EvaluationOutcome{{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"a", "b"}}},
				errs:     map[int]error{1: fmt.Errorf("%w: missing reasoning", ErrEvaluation)},
			},
			wantErr: ErrEvaluation,
			wantEvents: []string{
				EventQueryCategory, EventFirstQuery, EventInitialResults,
				EventEvaluationReasoning, EventRelevantPositions, EventAdditionalQueries, EventTopResults,
				EventError,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mapProvider{batches: map[string]ResultBatch{
				initialQuery: results("gnn", 6),
				"a":          results("a", 2),
				"b":          results("b", 2),
			}}
			sink := stream.NewRecorder()

			res, err := quietEngine(DefaultConfig(), tt.classifier, tt.evaluator, provider).Run(context.Background(), query, sink)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrSession)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, tt.wantEvents, sink.Names())
			assert.Equal(t, 1, sink.Closes())

			var payload ErrorPayload
			require.NoError(t, sink.Decode(EventError, &payload))
			assert.Equal(t, "An error occurred during search", payload.Message)
		})
	}
}

func TestRunClassificationErrorSkipsSearch(t *testing.T) {
	provider := &mapProvider{}
	_, err := quietEngine(DefaultConfig(), &fakeClassifier{err: ErrClassification}, &scriptedEvaluator{}, provider).
		Run(context.Background(), "anything", stream.NewRecorder())
	require.ErrorIs(t, err, ErrClassification)
	assert.Empty(t, provider.queries)
}

func TestRunEmptyQuery(t *testing.T) {
	classifier := &fakeClassifier{}
	sink := stream.NewRecorder()

	_, err := quietEngine(DefaultConfig(), classifier, &scriptedEvaluator{}, &mapProvider{}).Run(context.Background(), "   ", sink)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, classifier.calls)
	assert.Equal(t, []string{EventError}, sink.Names())
	assert.Equal(t, 1, sink.Closes())
}

// cancellingProvider cancels the session after the first follow-up.
type cancellingProvider struct {
	mapProvider
	cancel context.CancelFunc
	after  int
}

func (c *cancellingProvider) Search(ctx context.Context, query string) (ResultBatch, error) {
	b, err := c.mapProvider.Search(ctx, query)
	if len(c.queries) == c.after {
		c.cancel()
	}
	return b, err
}

func TestRunCancelledBetweenFollowUps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &cancellingProvider{
		mapProvider: mapProvider{batches: map[string]ResultBatch{
			"q": results("q", 3),
			"a": results("a", 3),
			"b": results("b", 3),
		}},
		cancel: cancel,
		after:  2,
	}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"a", "b"}},
		{Reasoning: "r", RelevantPositions: []int{0}},
	}}
	sink := stream.NewRecorder()

	_, err := quietEngine(DefaultConfig(), &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(ctx, "q", sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{"q", "a"}, provider.queries)

	names := sink.Names()
	assert.Equal(t, EventError, names[len(names)-1])
	assert.Equal(t, 1, sink.Closes())
}

func TestRunMultipleRounds(t *testing.T) {
	provider := &mapProvider{batches: map[string]ResultBatch{
		"q":  results("q", 2),
		"a":  results("a", 2),
		"b":  results("b", 2),
		"a2": results("a2", 2),
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r0", RelevantPositions: []int{0}, AdditionalQueries: []string{"a", "b"}},
		{Reasoning: "r1", RelevantPositions: []int{0}, AdditionalQueries: []string{"a2", "q", "b"}},
		{Reasoning: "r1", RelevantPositions: []int{1}, AdditionalQueries: []string{"A2"}},
		{Reasoning: "r2", RelevantPositions: []int{0, 1}, AdditionalQueries: []string{"never"}},
	}}

	cfg := DefaultConfig()
	cfg.MaxRounds = 2
	sink := stream.NewRecorder()

	res, err := quietEngine(cfg, &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(context.Background(), "q", sink)
	require.NoError(t, err)

	// already issued queries are not repeated in later rounds
	assert.Equal(t, []string{"q", "a", "b", "a2"}, provider.queries)
	assert.Equal(t, 2, res.Rounds)
	assert.Len(t, res.Results, 5)

	var last RelevantResultsPayload
	events := sink.Events()
	require.NoError(t, json.Unmarshal(events[len(events)-3].Data, &last))
	assert.Equal(t, 2, last.Round)
	assert.Equal(t, "a2", last.Query)
}

func TestRunFollowUpsCappedByConfig(t *testing.T) {
	provider := &mapProvider{batches: map[string]ResultBatch{
		"q": results("q", 2),
		"a": results("a", 1),
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"a", "b", "c"}},
	}}
	cfg := DefaultConfig()
	cfg.MaxFollowUps = 1
	sink := stream.NewRecorder()

	_, err := quietEngine(cfg, &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(context.Background(), "q", sink)
	require.NoError(t, err)

	var queries AdditionalQueriesPayload
	require.NoError(t, sink.Decode(EventAdditionalQueries, &queries))
	assert.Equal(t, []string{"a"}, queries.AdditionalQueries)
	assert.Equal(t, []string{"q", "a"}, provider.queries)
}

func TestRunFollowUpEqualToRawQueryIsSearched(t *testing.T) {
	query := "kubernetes operators"
	initial := InitialQuery(query, TechnicalExample)
	provider := &mapProvider{batches: map[string]ResultBatch{
		initial: results("scoped", 2),
		query:   results("plain", 2),
		"x":     results("x", 1),
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{query, "x"}},
	}}
	sink := stream.NewRecorder()

	_, err := quietEngine(DefaultConfig(), &fakeClassifier{category: TechnicalExample}, evaluator, provider).Run(context.Background(), query, sink)
	require.NoError(t, err)

	var queries AdditionalQueriesPayload
	require.NoError(t, sink.Decode(EventAdditionalQueries, &queries))
	assert.Equal(t, []string{query, "x"}, queries.AdditionalQueries)
	// the unscoped text differs from the scoped initial query, so it is sent
	assert.Equal(t, []string{initial, query, "x"}, provider.queries)
}

func TestRunFollowUpEqualToScopedQueryIsSkipped(t *testing.T) {
	query := "graph neural networks"
	initial := InitialQuery(query, ResearchPaper)
	provider := &mapProvider{batches: map[string]ResultBatch{
		initial: results("gnn", 2),
		FollowUpQuery("gnn survey", ResearchPaper): results("survey", 1),
	}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
		{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"Graph Neural Networks", "gnn survey"}},
	}}
	sink := stream.NewRecorder()

	_, err := quietEngine(DefaultConfig(), &fakeClassifier{category: ResearchPaper}, evaluator, provider).Run(context.Background(), query, sink)
	require.NoError(t, err)

	var queries AdditionalQueriesPayload
	require.NoError(t, sink.Decode(EventAdditionalQueries, &queries))
	assert.Equal(t, []string{"gnn survey"}, queries.AdditionalQueries)
	assert.Equal(t, []string{initial, FollowUpQuery("gnn survey", ResearchPaper)}, provider.queries)
}

func TestNewEngineLimits(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		rounds    int
		followUps int
	}{
		{"Zero kept", Config{}, 0, 0},
		{"Negative replaced", Config{MaxRounds: -1, MaxFollowUps: -4}, DefaultMaxRounds, DefaultMaxFollowUps},
		{"Explicit kept", Config{MaxRounds: 3, MaxFollowUps: 5}, 3, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.cfg, nil, nil, nil)
			assert.Equal(t, tt.rounds, e.Config.MaxRounds)
			assert.Equal(t, tt.followUps, e.Config.MaxFollowUps)
		})
	}
}

func TestRunZeroLimitsSkipExpansion(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		announced []string
	}{
		{"No follow-ups", Config{MaxRounds: 1, MaxFollowUps: 0}, []string{}},
		{"No rounds", Config{MaxRounds: 0, MaxFollowUps: 3}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mapProvider{batches: map[string]ResultBatch{
				"q": results("q", 2),
				"a": results("a", 2),
				"b": results("b", 2),
			}}
			evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{
				{Reasoning: "r", RelevantPositions: []int{0}, AdditionalQueries: []string{"a", "b"}},
			}}
			sink := stream.NewRecorder()

			res, err := quietEngine(tt.cfg, &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(context.Background(), "q", sink)
			require.NoError(t, err)

			var queries AdditionalQueriesPayload
			require.NoError(t, sink.Decode(EventAdditionalQueries, &queries))
			assert.Equal(t, tt.announced, queries.AdditionalQueries)
			assert.Equal(t, []string{"q"}, provider.queries)
			assert.Equal(t, 0, res.Rounds)
			assert.Len(t, res.Results, 1)
			assert.NotContains(t, sink.Names(), EventRelevantResults)
		})
	}
}

// failingSink rejects writes after a number of successful ones.
type failingSink struct {
	stream.Recorder
	allow int
}

func (f *failingSink) Write(event string, payload any) error {
	if len(f.Names()) >= f.allow {
		return errors.New("broken pipe")
	}
	return f.Recorder.Write(event, payload)
}

func TestRunSinkFailureStillClosesOnce(t *testing.T) {
	provider := &mapProvider{batches: map[string]ResultBatch{"q": results("q", 2)}}
	evaluator := &scriptedEvaluator{outcomes: []EvaluationOutcome{{Reasoning: "r", RelevantPositions: []int{0}}}}
	sink := &failingSink{allow: 2}

	_, err := quietEngine(DefaultConfig(), &fakeClassifier{category: GeneralSearch}, evaluator, provider).Run(context.Background(), "q", sink)
	require.ErrorIs(t, err, ErrSession)
	assert.Equal(t, []string{EventQueryCategory, EventFirstQuery}, sink.Names())
	assert.Equal(t, 1, sink.Closes())
}

func TestSelectRelevant(t *testing.T) {
	batch := results("x", 3)

	got, err := selectRelevant(batch, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{batch[2], batch[0]}, got)

	_, err = selectRelevant(batch, []int{3})
	assert.ErrorIs(t, err, ErrEvaluation)

	got, err = selectRelevant(batch, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
