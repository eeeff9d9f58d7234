package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"otto/internal/agent"
	"otto/internal/discovery"
	ottoerrors "otto/internal/errors"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/tools"
)

// Tier identifiers reported on responses.
const (
	TierPattern   = 1
	TierCommand   = 2
	TierAgentLoop = 3
	TierDiscovery = 4
)

// Request is one user utterance in a session.
type Request struct {
	SessionID string
	UserID    string
	Text      string
	History   []llm.Message
}

// Response is the routed result.
type Response struct {
	Text      string
	Tier      int
	Source    string // discovery source when Tier == 4
	Truncated bool
}

// Config tunes the router.
type Config struct {
	DiscoveryEnabled    bool
	MaxInflightRequests int64
}

// Router is the top of the cascade. Tiers 1 and 2 never touch the LLM or any
// external service; tier 3 never calls the web; tier 4 is the only external
// path.
type Router struct {
	cfg       Config
	executor  *tools.Executor
	loop      *agent.Loop
	planner   *agent.Planner
	discovery *discovery.Agent
	mem       *memory.Manager
	metrics   *Metrics
	logger    logging.Logger

	// NewRunContext builds the per-request tool context.
	newRunContext func(sessionID, userID string) *tools.RunContext

	inflight *semaphore.Weighted

	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex
}

// New builds a Router.
func New(cfg Config, executor *tools.Executor, loop *agent.Loop, planner *agent.Planner, discoveryAgent *discovery.Agent, mem *memory.Manager, metrics *Metrics, newRunContext func(sessionID, userID string) *tools.RunContext, logger logging.Logger) *Router {
	if cfg.MaxInflightRequests <= 0 {
		cfg.MaxInflightRequests = 32
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Router{
		cfg:           cfg,
		executor:      executor,
		loop:          loop,
		planner:       planner,
		discovery:     discoveryAgent,
		mem:           mem,
		metrics:       metrics,
		logger:        logging.OrNop(logger),
		newRunContext: newRunContext,
		inflight:      semaphore.NewWeighted(cfg.MaxInflightRequests),
		sessions:      make(map[string]*sync.Mutex),
	}
}

// Handle routes one utterance through the cascade. Requests within a session
// are strictly serialized; requests across sessions run in parallel up to
// the in-flight limit.
func (r *Router) Handle(ctx context.Context, req Request) (*Response, error) {
	if err := r.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.inflight.Release(1)

	lock := r.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	resp, err := r.dispatch(ctx, req)
	if err == nil {
		tier := tierLabel(resp.Tier)
		r.metrics.TierDispatches.WithLabelValues(tier).Inc()
		r.metrics.TierLatency.WithLabelValues(tier).Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (r *Router) dispatch(ctx context.Context, req Request) (*Response, error) {
	rctx := r.newRunContext(req.SessionID, req.UserID)
	text := strings.TrimSpace(req.Text)

	// Tier 1: pattern fast path.
	if cmd, ok := MatchPattern(text); ok {
		r.logger.Debug("tier 1 matched %q -> %s", text, cmd.String())
		reply, err := r.executeCommand(ctx, cmd, rctx)
		if err != nil {
			return &Response{Text: ottoerrors.UserMessage(err), Tier: TierPattern}, nil
		}
		return &Response{Text: reply, Tier: TierPattern}, nil
	}

	// Tier 2: explicit commands.
	if strings.HasPrefix(text, "/") {
		cmd, err := ParseCommand(text)
		if err != nil {
			return &Response{Text: ottoerrors.UserMessage(err), Tier: TierCommand}, nil
		}
		reply, err := r.executeCommand(ctx, cmd, rctx)
		if err != nil {
			return &Response{Text: ottoerrors.UserMessage(err), Tier: TierCommand}, nil
		}
		return &Response{Text: reply, Tier: TierCommand}, nil
	}

	// Multi-step workflows run on the planner before single-intent dispatch.
	// Research steps ride the discovery path, so the capability is stripped
	// when discovery mode is off; such steps then degrade per-step instead of
	// reaching an external service.
	planner := r.planner
	if !r.cfg.DiscoveryEnabled {
		planner = planner.WithoutResearch()
	}
	if steps, ok := planner.Plan(ctx, text); ok {
		r.metrics.LLMCalls.Inc()
		outcome := planner.Execute(ctx, steps, rctx)
		return &Response{Text: outcome.Reply, Tier: TierAgentLoop, Truncated: outcome.Partial}, nil
	}

	intent := ClassifyIntent(text)

	// Tier 4: external discovery, opt-in.
	if intent.RequiresDiscovery() && r.cfg.DiscoveryEnabled && r.discovery != nil {
		resp, err := r.discovery.Handle(ctx, text, req.UserID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return &Response{Text: ottoerrors.UserMessage(err), Tier: TierDiscovery}, nil
		}
		switch resp.Source {
		case discovery.SourceKnowledgeCache:
			r.metrics.CacheHits.Inc()
		case discovery.SourceDiscoveryReuse:
			r.metrics.DiscoveryReuse.Inc()
		default:
			r.metrics.ExternalCalls.Inc()
		}
		return &Response{Text: resp.Result, Tier: TierDiscovery, Source: resp.Source}, nil
	}

	// Tier 3: the built-in tool loop.
	memoryContext := BuildMemoryContext(r.mem, req.SessionID, req.UserID)
	r.metrics.LLMCalls.Inc()
	reply, err := r.loop.Run(ctx, memoryContext, text, req.History, rctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return &Response{Text: ottoerrors.UserMessage(err), Tier: TierAgentLoop}, nil
	}
	return &Response{Text: reply.Text, Tier: TierAgentLoop, Truncated: reply.Truncated}, nil
}

func (r *Router) sessionLock(sessionID string) *sync.Mutex {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()
	lock, ok := r.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.sessions[sessionID] = lock
	}
	return lock
}

func tierLabel(tier int) string {
	switch tier {
	case TierPattern:
		return "pattern"
	case TierCommand:
		return "command"
	case TierAgentLoop:
		return "agent_loop"
	case TierDiscovery:
		return "discovery"
	}
	return "unknown"
}
