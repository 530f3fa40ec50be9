package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/manuscript-desk-poc/server/internal/agent/graph/nodes"
	"github.com/manuscript-desk-poc/server/internal/agent/graph/observers"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	"github.com/manuscript-desk-poc/server/internal/agent/retrieval"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const defaultMaxRunSteps = 20

// Runner executes one customer turn against a conversation the caller owns.
type Runner interface {
	Run(ctx context.Context, conv *model.Conversation, query string) (*model.TurnResult, error)
}

// GraphConfig holds all configuration needed to build the turn graph.
type GraphConfig struct {
	Pipeline      model.PipelinePolicy
	Rules         *policy.Policy
	Manuscripts   nodes.ManuscriptLookup
	Classifier    nodes.Classifier
	Retriever     retrieval.Retriever
	Responder     nodes.Responder
	TopK          int
	HistoryWindow int
	Metrics       *metrics.DeskMetrics
	Now           func() time.Time
}

// GraphBuilder handles the construction of the turn graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.Turn, *model.TurnResult]
}

type graphRunner struct {
	runnable compose.Runnable[*model.Turn, *model.TurnResult]
	pipeline model.PipelinePolicy
	now      func() time.Time
}

func (r *graphRunner) Run(ctx context.Context, conv *model.Conversation, query string) (*model.TurnResult, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if conv.Context.Closed {
		return nil, errx.ConversationClosed(conv.ID)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errx.InvalidInput("empty message")
	}

	out, err := r.runnable.Invoke(ctx, &model.Turn{
		Conversation: conv,
		Policy:       r.pipeline,
		Query:        query,
		StartedAt:    r.now(),
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conv.ID).Str("pipeline", r.pipeline.Name).Msg("Turn graph failed")
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("turn graph returned no result")
	}
	return out, nil
}

// BuildRunner builds and compiles the turn graph for one pipeline policy.
func BuildRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	logx.Debug().Str("pipeline", config.Pipeline.Name).Msg("Turn graph built successfully")
	return &graphRunner{runnable: runnable, pipeline: config.Pipeline, now: config.Now}, nil
}

// BuildGraph constructs and returns the compiled turn graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.Turn, *model.TurnResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Rules == nil {
		return nil, fmt.Errorf("policy is nil")
	}
	if config.Classifier == nil || config.Retriever == nil || config.Responder == nil {
		return nil, fmt.Errorf("pipeline components are not properly initialized")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.TopK <= 0 {
		config.TopK = retrieval.DefaultTopK
	}

	builder := &GraphBuilder{
		config: config,
		graph:  compose.NewGraph[*model.Turn, *model.TurnResult](),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cfg := b.config
	lambdas := []struct {
		name   string
		lambda *compose.Lambda
	}{
		{nodes.NodeIntake, nodes.NewIntakeNode(cfg.Manuscripts, cfg.Now)},
		{nodes.NodeAskManuscriptID, nodes.NewAskManuscriptIDNode(cfg.Rules)},
		{nodes.NodeManuscriptNotFound, nodes.NewManuscriptNotFoundNode(cfg.Rules)},
		{nodes.NodeClassifier, nodes.NewClassifierNode(cfg.Classifier, cfg.Now)},
		{nodes.NodeOffTopicRedirect, nodes.NewOffTopicRedirectNode(cfg.Rules)},
		{nodes.NodeRetriever, nodes.NewRetrieverNode(cfg.Retriever, cfg.TopK, cfg.Metrics)},
		{nodes.NodeResponder, nodes.NewResponderNode(cfg.Responder, cfg.Retriever.Mode() == retrieval.ModeLexical, cfg.HistoryWindow)},
		{nodes.NodeFinalize, nodes.NewFinalizeNode(cfg.Rules, cfg.Metrics, cfg.Now)},
	}
	for _, l := range lambdas {
		if err := b.graph.AddLambdaNode(l.name, l.lambda, compose.WithNodeName(l.name)); err != nil {
			logx.Error().Err(err).Str("node", l.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", l.name, err)
		}
	}
	return nil
}

// addEdges creates the fixed connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeIntake},
		{nodes.NodeRetriever, nodes.NodeResponder},
		{nodes.NodeAskManuscriptID, nodes.NodeFinalize},
		{nodes.NodeManuscriptNotFound, nodes.NodeFinalize},
		{nodes.NodeOffTopicRedirect, nodes.NodeFinalize},
		{nodes.NodeResponder, nodes.NodeFinalize},
		{nodes.NodeFinalize, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	intakeBranch := compose.NewGraphBranch(
		nodes.NewIntakeCondition(),
		map[string]bool{
			nodes.NodeAskManuscriptID:    true,
			nodes.NodeManuscriptNotFound: true,
			nodes.NodeClassifier:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntake, intakeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding intake branch")
		return fmt.Errorf("error adding intake branch: %w", err)
	}

	topicBranch := compose.NewGraphBranch(
		nodes.NewClassifierCondition(b.config.Rules),
		map[string]bool{
			nodes.NodeOffTopicRedirect: true,
			nodes.NodeRetriever:        true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, topicBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding topic branch")
		return fmt.Errorf("error adding topic branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.Turn, *model.TurnResult], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("turn_"+b.config.Pipeline.Name),
		compose.WithMaxRunSteps(defaultMaxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Str("pipeline", b.config.Pipeline.Name).Msg("Graph compiled successfully")
	return runnable, nil
}
