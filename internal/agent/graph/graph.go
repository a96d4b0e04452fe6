package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/graph/conversations"
	"github.com/gorodbot/server/internal/agent/graph/nodes"
	"github.com/gorodbot/server/internal/agent/graph/observers"
	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	"github.com/gorodbot/server/internal/agent/toxicity"
	"github.com/gorodbot/server/internal/agent/tools"
	"github.com/gorodbot/server/internal/cityapi"
	"github.com/gorodbot/server/internal/rag"
	logx "github.com/gorodbot/server/pkg/logger"
)

// Runner executes one conversational turn against the compiled graph.
type Runner interface {
	HandleTurn(ctx context.Context, threadID, query string) (*model.TurnResult, error)
}

// Config holds everything needed to compose the assistant end-to-end.
type Config struct {
	APIKey  string
	BaseURL string

	RouterModel   model.RouterModelConfig
	ResponseModel model.ResponseModelConfig
	Conversation  model.ConversationConfig
	Resilience    model.ResilienceConfig
	CityAPI       model.CityAPIConfig
	Search        model.SearchConfig

	ThreadRepo model.ThreadRepository
}

// GraphConfig is the wired dependency set the graph is built from. Tests
// construct it directly with fakes.
type GraphConfig struct {
	Deps *nodes.Deps
}

// GraphBuilder handles the construction of the orchestrator graph.
type GraphBuilder struct {
	deps  *nodes.Deps
	graph *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

// HandleTurn runs one turn. Internal failures degrade to an apology so the
// transport layer never surfaces a raw error to the user.
func (r *graphRunner) HandleTurn(ctx context.Context, threadID, query string) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ThreadID: threadID,
		Query:    query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		kind := resilience.Classify(err)
		logx.Error().Err(err).Str("thread_id", threadID).Str("kind", string(kind)).Msg("turn failed, degrading to apology")
		return &model.TurnResult{ResponseText: resilience.UserMessage(kind)}, nil
	}
	if out == nil {
		return &model.TurnResult{ResponseText: resilience.UserMessage(resilience.KindUnknown)}, nil
	}

	result := &model.TurnResult{ResponseText: out.Content}
	if v, ok := out.Extra[nodes.ExtraCategory].(string); ok {
		result.Category = model.Category(v)
	}
	if v, ok := out.Extra[nodes.ExtraAwaitingClarification].(bool); ok {
		result.AwaitingClarification = v
	}
	return result, nil
}

// BuildAssistant wires every collaborator from config and returns a Runner.
func BuildAssistant(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ThreadRepo == nil {
		return nil, fmt.Errorf("thread repo is nil")
	}

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		RouterConfig: &cfg.RouterModel,
		RespConfig:   &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	manager := conversations.NewMessagesManager(cfg.ThreadRepo, cfg.Conversation)

	apiPolicy := apiPolicy(cfg.Resilience)
	client := cityapi.NewClient(cfg.CityAPI, apiPolicy)
	geocoder, err := cityapi.NewCachedGeocoder(client, cfg.CityAPI.GeocodeCache)
	if err != nil {
		return nil, err
	}

	searcher, err := openSearcher(cfg.Search)
	if err != nil {
		return nil, err
	}

	deps := &nodes.Deps{
		Models:            models,
		Manager:           manager,
		Toxicity:          toxicity.NewFilter(nil),
		Geocoder:          geocoder,
		Registry:          tools.NewRegistry(client, geocoder, cfg.CityAPI.MaxCandidates, nil),
		Searcher:          searcher,
		LLMPolicy:         llmPolicy(cfg.Resilience),
		APIPolicy:         apiPolicy,
		MaxClarifications: cfg.Conversation.Clarification.MaxAttempts,
		MaxCandidates:     cfg.CityAPI.MaxCandidates,
		SearchTopK:        cfg.Search.TopK,
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{Deps: deps})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("assistant graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and compiles the orchestrator graph from wired deps.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil || config.Deps == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	deps := config.Deps
	if deps.Models == nil || deps.Models.Router == nil || deps.Models.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if deps.Toxicity == nil {
		deps.Toxicity = toxicity.NewFilter(nil)
	}

	builder := &GraphBuilder{
		deps: deps,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeIntake,
		nodes.NewIntakeNode(b.deps),
		compose.WithStatePreHandler(nodes.NewIntakePreHandler()),
	)
	b.graph.AddLambdaNode(nodes.NodeToxicity, nodes.NewToxicityNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeToxicReply, nodes.NewToxicReplyNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeClassifier, nodes.NewClassifierNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeSlots, nodes.NewSlotsNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeAddress, nodes.NewAddressNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeClarify, nodes.NewClarifyNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeFallback, nodes.NewFallbackNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeRAG, nodes.NewRAGNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeConversation, nodes.NewConversationNode())
	b.graph.AddLambdaNode(nodes.NodeExecuteTools, nodes.NewExecuteToolsNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeRespond, nodes.NewRespondNode(b.deps))
}

// addEdges creates the unconditional flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeIntake},
		{nodes.NodeIntake, nodes.NodeToxicity},
		{nodes.NodeRAG, nodes.NodeRespond},
		{nodes.NodeConversation, nodes.NodeRespond},
		{nodes.NodeFallback, nodes.NodeRespond},
		{nodes.NodeExecuteTools, nodes.NodeRespond},
		{nodes.NodeToxicReply, compose.END},
		{nodes.NodeClarify, compose.END},
		{nodes.NodeRespond, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	toxicityBranch := compose.NewGraphBranch(
		nodes.NewToxicityCondition(),
		map[string]bool{
			nodes.NodeToxicReply: true,
			nodes.NodeClassifier: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeToxicity, toxicityBranch); err != nil {
		return fmt.Errorf("error adding toxicity branch: %w", err)
	}

	categoryBranch := compose.NewGraphBranch(
		nodes.NewCategoryCondition(),
		map[string]bool{
			nodes.NodeRAG:          true,
			nodes.NodeConversation: true,
			nodes.NodeSlots:        true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, categoryBranch); err != nil {
		return fmt.Errorf("error adding category branch: %w", err)
	}

	slotsBranch := compose.NewGraphBranch(
		nodes.NewSlotsCondition(b.deps),
		map[string]bool{
			nodes.NodeAddress:      true,
			nodes.NodeExecuteTools: true,
			nodes.NodeClarify:      true,
			nodes.NodeFallback:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSlots, slotsBranch); err != nil {
		return fmt.Errorf("error adding slots branch: %w", err)
	}

	addressBranch := compose.NewGraphBranch(
		nodes.NewAddressCondition(b.deps),
		map[string]bool{
			nodes.NodeExecuteTools: true,
			nodes.NodeClarify:      true,
			nodes.NodeFallback:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAddress, addressBranch); err != nil {
		return fmt.Errorf("error adding address branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func llmPolicy(cfg model.ResilienceConfig) resilience.Policy {
	p := resilience.DefaultLLMPolicy()
	if cfg.LLM.MaxAttempts > 0 {
		p.MaxAttempts = cfg.LLM.MaxAttempts
	}
	if cfg.LLM.TimeoutSeconds > 0 {
		p.Timeout = durationSeconds(cfg.LLM.TimeoutSeconds)
	}
	if cfg.LLM.InitialInterval > 0 {
		p.InitialInterval = durationSeconds(cfg.LLM.InitialInterval)
	}
	return p
}

func apiPolicy(cfg model.ResilienceConfig) resilience.Policy {
	p := resilience.DefaultAPIPolicy()
	if cfg.API.MaxAttempts > 0 {
		p.MaxAttempts = cfg.API.MaxAttempts
	}
	if cfg.API.TimeoutSeconds > 0 {
		p.Timeout = durationSeconds(cfg.API.TimeoutSeconds)
	}
	if cfg.API.InitialInterval > 0 {
		p.InitialInterval = durationSeconds(cfg.API.InitialInterval)
	}
	return p
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// openSearcher opens the configured knowledge-base index, seeding a fresh
// in-memory index with the built-in corpus when no path is set.
func openSearcher(cfg model.SearchConfig) (rag.Searcher, error) {
	if cfg.IndexPath == "" {
		idx, err := rag.NewMemoryIndex()
		if err != nil {
			return nil, err
		}
		if err := rag.SeedDefault(idx); err != nil {
			return nil, err
		}
		return idx, nil
	}

	idx, err := rag.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	if cfg.CorpusPath != "" {
		n, err := idx.LoadCorpus(cfg.CorpusPath)
		if err != nil {
			return nil, err
		}
		logx.Info().Int("documents", n).Str("path", cfg.CorpusPath).Msg("knowledge base corpus loaded")
	}
	return idx, nil
}
