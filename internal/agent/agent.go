// Package agent implements the in-process conversation runtime: resolve
// mode, compose a prompt, stream a completion, dispatch any tool calls
// concurrently, append results in emission order, evaluate mode
// transitions, and repeat until a terminating tool or a tool-free message
// ends the turn. Unlike the teacher's Temporal-backed orchestration, this
// loop has no durability requirement, so it runs as a single goroutine per
// conversation guarded by a semaphore rather than workflow activities.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/concurrency"
	"github.com/dataplane-ai/analyst-agent/internal/convo"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
	"github.com/dataplane-ai/analyst-agent/internal/mode"
	"github.com/dataplane-ai/analyst-agent/internal/policy"
	"github.com/dataplane-ai/analyst-agent/internal/runlog"
	"github.com/dataplane-ai/analyst-agent/internal/runlog/inmem"
	"github.com/dataplane-ai/analyst-agent/internal/stream"
	"github.com/dataplane-ai/analyst-agent/internal/telemetry"
	"github.com/dataplane-ai/analyst-agent/internal/tools"
)

// Options configures a new Agent. LLM and Modes are required; everything
// else falls back to a permissive, noop-instrumented default, the same
// substitution the teacher's runtime constructor applies for nil options.
type Options struct {
	LLM    llm.Client
	Modes  *mode.Registry
	Policy policy.Engine
	Tools  []tools.Executor

	StreamRegistry *stream.Registry
	RunLog         runlog.Store

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	// MaxInFlightTools bounds per-turn concurrent tool dispatch (§5).
	// Defaults to concurrency.DefaultMaxInFlight.
	MaxInFlightTools int

	// MaxLLMRetries bounds the exponential backoff retry applied to a
	// completion call that fails with a retryable transport error (§4.1).
	// Defaults to defaultMaxLLMRetries.
	MaxLLMRetries int

	ConversationID   string
	OrgID            uuid.UUID
	UserID           uuid.UUID
	DataSourceID     string
	DataSourceSyntax string

	// InitialMode defaults to mode.Initialization.
	InitialMode mode.Name
}

// Agent is a single conversation's runtime: one state bag, one tool
// registry, one mode cursor, constructed via New.
type Agent struct {
	llm    llm.Client
	modes  *mode.Registry
	policy policy.Engine
	pool   *concurrency.Pool

	maxLLMRetries int

	streamReg *stream.Registry
	runlog    runlog.Store

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	bag *agentstate.Bag

	toolsMu sync.Mutex
	tools   map[string]tools.Executor

	conversationID string
	orgID          uuid.UUID
	userID         uuid.UUID

	history     []convo.Message
	currentMode mode.Name
	turnSeq     int
}

// New constructs an Agent ready for Run.
func New(opts Options) (*Agent, error) {
	if opts.LLM == nil {
		return nil, errors.New("agent: LLM is required")
	}
	if opts.Modes == nil {
		return nil, errors.New("agent: Modes is required")
	}

	initial := opts.InitialMode
	if initial == "" {
		initial = mode.Initialization
	}
	if _, ok := opts.Modes.Get(initial); !ok {
		return nil, fmt.Errorf("agent: initial mode %q is not registered", initial)
	}

	conversationID := opts.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	pol := opts.Policy
	if pol == nil {
		pol = policy.New(policy.Options{})
	}

	streamReg := opts.StreamRegistry
	if streamReg == nil {
		streamReg = stream.NewRegistry()
	}

	runLog := opts.RunLog
	if runLog == nil {
		runLog = inmem.New()
	}

	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	bag := agentstate.New()
	if opts.DataSourceID != "" {
		bag.Set(agentstate.KeyDataSourceID, opts.DataSourceID)
	}
	if opts.DataSourceSyntax != "" {
		bag.Set(agentstate.KeyDataSourceSyntax, opts.DataSourceSyntax)
	}

	toolMap := make(map[string]tools.Executor, len(opts.Tools))
	for _, t := range opts.Tools {
		toolMap[t.Name()] = t
	}

	return &Agent{
		llm:            opts.LLM,
		modes:          opts.Modes,
		policy:         pol,
		pool:           concurrency.NewPool(opts.MaxInFlightTools),
		maxLLMRetries:  opts.MaxLLMRetries,
		streamReg:      streamReg,
		runlog:         runLog,
		logger:         logger,
		metrics:        metrics,
		tracer:         tracer,
		bag:            bag,
		tools:          toolMap,
		conversationID: conversationID,
		orgID:          opts.OrgID,
		userID:         opts.UserID,
		currentMode:    initial,
	}, nil
}

// AddTool registers or replaces a tool executor by name.
func (a *Agent) AddTool(t tools.Executor) {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	a.tools[t.Name()] = t
}

// ClearTools removes every registered tool executor.
func (a *Agent) ClearTools() {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	a.tools = make(map[string]tools.Executor)
}

// SetStateValue writes directly into the conversation's state bag,
// bypassing a tool's StateEffect. Useful for seeding state ahead of Run
// (e.g. replaying a prior turn's todos).
func (a *Agent) SetStateValue(key string, value any) {
	a.bag.Set(key, value)
}

// GetStateValue reads the conversation's state bag.
func (a *Agent) GetStateValue(key string) (any, bool) {
	return a.bag.Get(key)
}

// ConversationID returns the conversation id this agent was constructed
// with (or generated, if none was supplied).
func (a *Agent) ConversationID() string { return a.conversationID }

// Run starts the conversation loop in a new goroutine and returns the
// channel of streamed events. The channel is closed when the loop ends,
// whether by reaching a terminating tool, a tool-free final message, or a
// fatal error.
func (a *Agent) Run(ctx context.Context, initialUserMessage string) (<-chan Event, error) {
	if ctx == nil {
		return nil, errors.New("agent: ctx is required")
	}
	if strings.TrimSpace(initialUserMessage) == "" {
		return nil, errors.New("agent: initialUserMessage is required")
	}

	a.history = append(a.history, convo.User(initialUserMessage))

	events := make(chan Event, 32)
	go a.loop(ctx, events)
	return events, nil
}
