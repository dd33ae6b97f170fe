// Package mode defines the agent's five conversation modes as an immutable
// registry: each mode pairs a prompt template with the tool names it loads
// and the subset of those tools whose invocation ends the mode. The agent
// runtime resolves the active mode once per loop iteration, compiles its
// prompt, and asks the mode which tools to offer before every completion.
package mode

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/dataplane-ai/analyst-agent/internal/agentstate"
	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

// Name identifies one of the five fixed modes.
type Name string

const (
	Initialization          Name = "initialization"
	PlanningStraightforward Name = "planning_straightforward"
	PlanningInvestigative   Name = "planning_investigative"
	AnalysisExecution       Name = "analysis_execution"
	Review                  Name = "review"
)

// Mode is an immutable tuple of prompt template, default model class, the
// tool names it loads, and which of those tools end the mode when called.
type Mode struct {
	Name       Name
	Prompt     *template.Template
	ModelClass llm.ModelClass

	// ToolNames lists every tool this mode may load, before each tool's own
	// enabled(state) predicate and any policy.Engine filtering are applied.
	ToolNames []string

	// Terminating maps a tool name, when called while this mode is active,
	// to the mode the runtime transitions into next. A zero-value Name means
	// the conversation ends (a terminal tool, e.g. message_user_clarifying_question
	// or done).
	Terminating map[string]Name
}

// IsTerminating reports whether calling toolName while this mode is active
// ends the current mode's turn, and what mode to transition to.
func (m Mode) IsTerminating(toolName string) (next Name, ok bool) {
	next, ok = m.Terminating[toolName]
	return next, ok
}

// PromptData is substituted into a mode's prompt template. {{.TodaysDate}}
// and {{.Datasets}} correspond to the spec's {TODAYS_DATE}/{DATASETS}
// placeholders.
type PromptData struct {
	TodaysDate string
	Datasets   string
}

// Render compiles the mode's prompt template against data.
func (m Mode) Render(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := m.Prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mode %s: render prompt: %w", m.Name, err)
	}
	return buf.String(), nil
}

// Registry is the fixed set of modes plus the state-bag-driven transition
// rules that run independently of any particular tool call (e.g. a planning
// mode promotes to analysis_execution as soon as a plan exists, regardless
// of which turn produced it).
type Registry struct {
	modes map[Name]Mode
}

// NewRegistry compiles the five standard modes from the given prompt
// sources. Each key in prompts must be one of the Name constants.
func NewRegistry(prompts map[Name]string) (*Registry, error) {
	funcs := template.FuncMap{}
	r := &Registry{modes: make(map[Name]Mode, len(prompts))}

	specs := []struct {
		name       Name
		modelClass llm.ModelClass
		tools      []string
		terminal   map[string]Name
	}{
		{
			name:       Initialization,
			modelClass: llm.ModelClassDefault,
			tools:      []string{"search_data_catalog", "message_user_clarifying_question"},
			terminal: map[string]Name{
				"message_user_clarifying_question": "",
			},
		},
		{
			name:       PlanningStraightforward,
			modelClass: llm.ModelClassDefault,
			tools:      []string{"search_data_catalog", "create_plan_straightforward", "create_plan_investigative"},
			terminal: map[string]Name{
				"create_plan_straightforward": AnalysisExecution,
				"create_plan_investigative":   AnalysisExecution,
			},
		},
		{
			name:       PlanningInvestigative,
			modelClass: llm.ModelClassDefault,
			tools:      []string{"search_data_catalog", "create_plan_straightforward", "create_plan_investigative"},
			terminal: map[string]Name{
				"create_plan_straightforward": AnalysisExecution,
				"create_plan_investigative":   AnalysisExecution,
			},
		},
		{
			name:       AnalysisExecution,
			modelClass: llm.ModelClassDefault,
			tools:      []string{"search_data_catalog", "create_metrics", "create_dashboards", "update_metrics", "update_dashboards", "done"},
		},
		{
			name:       Review,
			modelClass: llm.ModelClassSmall,
			tools:      []string{"update_metrics", "update_dashboards", "done"},
			terminal: map[string]Name{
				"done": "",
			},
		},
	}

	for _, spec := range specs {
		src, ok := prompts[spec.name]
		if !ok {
			return nil, fmt.Errorf("mode registry: missing prompt for mode %q", spec.name)
		}
		tmpl, err := template.New(string(spec.name)).Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("mode registry: compile prompt for %q: %w", spec.name, err)
		}
		r.modes[spec.name] = Mode{
			Name:        spec.name,
			Prompt:      tmpl,
			ModelClass:  spec.modelClass,
			ToolNames:   spec.tools,
			Terminating: spec.terminal,
		}
	}
	return r, nil
}

// Get returns the mode registered under name.
func (r *Registry) Get(name Name) (Mode, bool) {
	m, ok := r.modes[name]
	return m, ok
}

// Resolve applies the state-bag-driven transitions that run independently of
// any terminating tool: initialization promotes to planning_straightforward
// once a catalog search has found data, a planning mode promotes to
// analysis_execution once a plan exists, and analysis_execution promotes to
// review once a review is needed. Clarifying questions end the conversation
// outright (a terminating tool with no destination mode) before Resolve ever
// runs again, so there is no separate "no clarification requested" check
// here. Both create_plan_* tools are offered, and terminating, in either
// planning submode; the registry does not switch submode by which of the two
// the model calls, so the submode chosen below stays the one the turn runs
// in. review has no
// unconditional transition — it only ends via the done tool.
func (r *Registry) Resolve(current Name, bag *agentstate.Bag) Name {
	switch current {
	case Initialization:
		if bag.Bool(agentstate.KeyDataContext) {
			return PlanningStraightforward
		}
	case PlanningStraightforward, PlanningInvestigative:
		if bag.Bool(agentstate.KeyPlanAvailable) {
			return AnalysisExecution
		}
	case AnalysisExecution:
		if bag.Bool(agentstate.KeyReviewNeeded) {
			return Review
		}
	}
	return current
}

// DefaultPromptSources returns baseline prompt templates for each mode,
// suitable as a starting point for NewRegistry. Operators are expected to
// supply their own copy in production; these exist so cmd/agentd has a
// working default without an external prompt store.
func DefaultPromptSources() map[Name]string {
	return map[Name]string{
		Initialization: "Today's date is {{.TodaysDate}}.\n" +
			"You are a data analyst agent. Before anything else, determine what data " +
			"is relevant to the user's request by searching the data catalog.\n" +
			"Known datasets so far:\n{{.Datasets}}\n" +
			"Search the catalog until you have enough context, or ask a clarifying question if the " +
			"request is ambiguous. Once relevant data is found you will move on to planning automatically.",
		PlanningStraightforward: "Today's date is {{.TodaysDate}}.\n" +
			"Datasets available:\n{{.Datasets}}\n" +
			"Write a straightforward, short plan for a well-understood request.",
		PlanningInvestigative: "Today's date is {{.TodaysDate}}.\n" +
			"Datasets available:\n{{.Datasets}}\n" +
			"Write an investigative plan that explores the data before committing to an approach.",
		AnalysisExecution: "Today's date is {{.TodaysDate}}.\n" +
			"Datasets available:\n{{.Datasets}}\n" +
			"Execute the plan: create or update metrics and dashboards as needed, then call done.",
		Review: "Today's date is {{.TodaysDate}}.\n" +
			"Review the artifacts you produced this turn. Make any final corrections, then call done.",
	}
}
