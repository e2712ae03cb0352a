package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikeboe/autosearch/pkg/autosearch"
	"github.com/mikeboe/autosearch/pkg/stream"
)

// Runner executes one search session, writing its events to sink.
type Runner interface {
	Run(ctx context.Context, query string, sink autosearch.EventSink) (*autosearch.Result, error)
}

type Service struct {
	Engine         Runner
	SessionTimeout time.Duration
	Logger         *slog.Logger
}

func NewService(engine Runner, sessionTimeout time.Duration) *Service {
	return &Service{
		Engine:         engine,
		SessionTimeout: sessionTimeout,
		Logger:         slog.Default(),
	}
}

// Report is the outcome of a session run to completion without streaming.
type Report struct {
	Result    *autosearch.Result
	Reasoning string
	FollowUps []string
	Events    []stream.Event
}

// Stream runs a session bounded by the session timeout and streams it to sink.
func (s *Service) Stream(ctx context.Context, query string, sink autosearch.EventSink) (*autosearch.Result, error) {
	if s.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SessionTimeout)
		defer cancel()
	}
	return s.Engine.Run(ctx, query, sink)
}

// Search runs a session into an in-memory recorder and summarises it.
func (s *Service) Search(ctx context.Context, query string) (*Report, error) {
	rec := stream.NewRecorder()
	result, err := s.Stream(ctx, query, rec)
	if err != nil {
		return nil, err
	}

	report := &Report{Result: result, Events: rec.Events()}

	var reasoning autosearch.ReasoningPayload
	if err := rec.Decode(autosearch.EventEvaluationReasoning, &reasoning); err != nil {
		return nil, fmt.Errorf("reading evaluation reasoning: %w", err)
	}
	report.Reasoning = reasoning.Reasoning

	var followUps autosearch.AdditionalQueriesPayload
	if err := rec.Decode(autosearch.EventAdditionalQueries, &followUps); err != nil {
		return nil, fmt.Errorf("reading follow-up queries: %w", err)
	}
	report.FollowUps = followUps.AdditionalQueries

	return report, nil
}
