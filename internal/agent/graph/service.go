package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/manuscript-desk-poc/server/internal/agent/graph/conversations"
	"github.com/manuscript-desk-poc/server/internal/agent/graph/nodes"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	"github.com/manuscript-desk-poc/server/internal/agent/retrieval"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const DefaultBatchConcurrency = 4

// CorpusStats is the part of the case store the desk reports on.
type CorpusStats interface {
	Stats() model.CorpusStats
}

// Config wires the desk together. Classifier, Retriever and Responder are
// shared by both pipelines.
type Config struct {
	Manager          *conversations.Manager
	Rules            *policy.Policy
	Manuscripts      nodes.ManuscriptLookup
	ManuscriptCount  func() int
	Cases            CorpusStats
	Classifier       nodes.Classifier
	Retriever        retrieval.Retriever
	Responder        nodes.Responder
	Pipeline         model.PipelineConfig
	TopK             int
	HistoryWindow    int
	BatchConcurrency int
	Metrics          *metrics.DeskMetrics
	ClassifierModel  string
	ResponseModel    string
}

// Service is the manuscript desk: conversational turns, single-shot queries
// and the human handoff operations.
type Service struct {
	cfg            Config
	manager        *conversations.Manager
	conversational Runner
	singleShot     Runner
}

func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("conversation manager is nil")
	}
	if cfg.Rules == nil {
		cfg.Rules = policy.Default()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	base := GraphConfig{
		Rules:         cfg.Rules,
		Manuscripts:   cfg.Manuscripts,
		Classifier:    cfg.Classifier,
		Retriever:     cfg.Retriever,
		Responder:     cfg.Responder,
		TopK:          cfg.TopK,
		HistoryWindow: cfg.HistoryWindow,
		Metrics:       cfg.Metrics,
		Now:           cfg.Manager.Now,
	}

	conversationalCfg := base
	conversationalCfg.Pipeline = model.PipelinePolicy{
		Name:                model.ConversationalPolicy.Name,
		RequireManuscriptID: cfg.Pipeline.RequireManuscriptID,
		ManuscriptLookup:    cfg.Pipeline.ManuscriptLookup,
	}
	conversational, err := BuildRunner(ctx, &conversationalCfg)
	if err != nil {
		return nil, fmt.Errorf("build conversational graph: %w", err)
	}

	singleShotCfg := base
	singleShotCfg.Pipeline = model.SingleShotPolicy
	singleShot, err := BuildRunner(ctx, &singleShotCfg)
	if err != nil {
		return nil, fmt.Errorf("build single-shot graph: %w", err)
	}

	return &Service{
		cfg:            cfg,
		manager:        cfg.Manager,
		conversational: conversational,
		singleShot:     singleShot,
	}, nil
}

func (s *Service) StartConversation(ctx context.Context) (*model.Conversation, error) {
	return s.manager.Start(ctx)
}

// HandleMessage runs one customer turn. Turns of the same conversation are
// applied strictly in arrival order.
func (s *Service) HandleMessage(ctx context.Context, conversationID, text string) (*model.TurnResult, error) {
	var result *model.TurnResult
	_, err := s.manager.Update(ctx, conversationID, func(conv *model.Conversation) error {
		res, err := s.conversational.Run(ctx, conv, text)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ask processes a standalone query: no manuscript id is required and no
// lookup is made. Nothing is persisted.
func (s *Service) Ask(ctx context.Context, query string) (*model.TurnResult, error) {
	conv := model.NewConversation("", s.manager.Now())
	return s.singleShot.Run(ctx, conv, query)
}

// AskBatch runs Ask over queries with bounded concurrency. Results keep the
// input order.
func (s *Service) AskBatch(ctx context.Context, queries []string) (*model.BatchSummary, error) {
	if len(queries) == 0 {
		return nil, errx.InvalidInput("no queries")
	}
	results := make([]*model.TurnResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.Ask(gctx, q)
			if err != nil {
				return fmt.Errorf("query %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &model.BatchSummary{Results: results, Total: len(results)}
	var confidence float64
	for _, r := range results {
		confidence += r.Confidence
		if r.ShouldEscalate {
			summary.Escalations++
		}
		summary.TotalTime += r.ProcessingTime
	}
	summary.AverageConfidence = confidence / float64(len(results))
	logx.Info().
		Int("total", summary.Total).
		Float64("average_confidence", summary.AverageConfidence).
		Int("escalations", summary.Escalations).
		Dur("total_time", summary.TotalTime).
		Msg("Batch processed")
	return summary, nil
}

// ReturnToBot hands an escalated conversation back to automated handling.
func (s *Service) ReturnToBot(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.manager.Update(ctx, conversationID, func(conv *model.Conversation) error {
		if conv.ReturnToBot(s.manager.Now()) {
			logx.Info().Str("conversation_id", conversationID).Msg("Conversation returned to bot")
		}
		return nil
	})
}

func (s *Service) EscalationSummary(ctx context.Context, conversationID string) (model.EscalationSummary, error) {
	return s.manager.EscalationSummary(ctx, conversationID)
}

func (s *Service) Conversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.manager.Get(ctx, conversationID)
}

func (s *Service) Stats() model.SystemStats {
	stats := model.SystemStats{
		Categories:      model.Categories(),
		UrgencyLevels:   model.UrgencyLevels(),
		ClassifierModel: s.cfg.ClassifierModel,
		ResponseModel:   s.cfg.ResponseModel,
	}
	if s.cfg.Cases != nil {
		stats.KnowledgeBase = s.cfg.Cases.Stats()
	}
	if s.cfg.ManuscriptCount != nil {
		stats.Manuscripts = s.cfg.ManuscriptCount()
	}
	if s.cfg.Retriever != nil {
		stats.RetrievalMode = string(s.cfg.Retriever.Mode())
	}
	return stats
}
