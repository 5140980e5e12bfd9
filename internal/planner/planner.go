// ABOUTME: Default LLM-backed Planner/Reviewer, wiring the opaque swarm.Planner/Reviewer interfaces onto llm.Client.
// ABOUTME: Calls llm.GenerateObject for both decomposition and review; the orchestration core never imports llm directly, only this adapter does.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/llm"
)

// decomposeSchema constrains the model's response to a list of subtasks with
// index-based dependency edges, matching swarm.Subtask's DependsOn contract.
const decomposeSchema = `{
  "type": "object",
  "properties": {
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "description": {"type": "string"},
          "work_instructions": {"type": "string"},
          "acceptance_criteria": {"type": "string"},
          "required_capabilities": {"type": "array", "items": {"type": "string"}},
          "depends_on": {"type": "array", "items": {"type": "integer"}},
          "complexity": {"type": "string", "enum": ["small", "medium", "large", "xl"]},
          "test_command": {"type": "string"}
        },
        "required": ["title", "description"]
      }
    }
  },
  "required": ["subtasks"]
}`

const verdictSchema = `{
  "type": "object",
  "properties": {
    "pass": {"type": "boolean"},
    "feedback": {"type": "string"}
  },
  "required": ["pass", "feedback"]
}`

// Adapter implements swarm.Planner and swarm.Reviewer over an llm.Client,
// using GenerateObject's JSON-schema-constrained structured-output calls.
type Adapter struct {
	client *llm.Client
	model  string
}

// New creates an Adapter. model may be an alias resolvable via llm's catalog
// (e.g. "sonnet", "gpt5"); client selects the provider per its own routing.
func New(client *llm.Client, model string) *Adapter {
	return &Adapter{client: client, model: model}
}

type decomposeResponse struct {
	Subtasks []subtaskJSON `json:"subtasks"`
}

type subtaskJSON struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	WorkInstructions     string   `json:"work_instructions"`
	AcceptanceCriteria   string   `json:"acceptance_criteria"`
	RequiredCapabilities []string `json:"required_capabilities"`
	DependsOn            []int    `json:"depends_on"`
	Complexity           string   `json:"complexity"`
	TestCommand          string   `json:"test_command"`
}

// Decompose asks the model to break task into dependency-annotated subtasks.
func (a *Adapter) Decompose(ctx context.Context, task swarm.Task) ([]swarm.Subtask, error) {
	prompt := fmt.Sprintf(
		"Decompose the following engineering task into an ordered list of subtasks with explicit dependencies.\n\n"+
			"Title: %s\nDescription: %s\nProject: %s\nContext: %s\n\n"+
			"Each subtask must be independently reviewable. depends_on holds zero-based indices into the subtasks array.",
		task.Title, task.Description, task.ProjectPath, task.Context)

	result, err := llm.GenerateObject(ctx, llm.GenerateOptions{
		Client: a.client,
		Model:  a.model,
		System: "You are a senior engineering lead decomposing work for a swarm of autonomous coding agents.",
		Prompt: prompt,
	}, json.RawMessage(decomposeSchema))
	if err != nil {
		return nil, fmt.Errorf("planner: decompose: %w", err)
	}

	var parsed decomposeResponse
	if err := json.Unmarshal([]byte(result.Text), &parsed); err != nil {
		return nil, fmt.Errorf("planner: parse decomposition: %w", err)
	}

	subtasks := make([]swarm.Subtask, 0, len(parsed.Subtasks))
	for _, s := range parsed.Subtasks {
		subtasks = append(subtasks, swarm.Subtask{
			Title:                s.Title,
			Description:          s.Description,
			WorkInstructions:     s.WorkInstructions,
			AcceptanceCriteria:   s.AcceptanceCriteria,
			RequiredCapabilities: s.RequiredCapabilities,
			DependsOn:            s.DependsOn,
			Complexity:           swarm.Complexity(strings.ToLower(s.Complexity)),
			TestCommand:          s.TestCommand,
		})
	}
	return subtasks, nil
}

type verdictResponse struct {
	Pass     bool   `json:"pass"`
	Feedback string `json:"feedback"`
}

// Evaluate asks the model to judge a completed task's artifacts against its
// acceptance criteria.
func (a *Adapter) Evaluate(ctx context.Context, task swarm.Task, artifacts swarm.Artifacts) (swarm.Verdict, error) {
	prompt := fmt.Sprintf(
		"Review this completed subtask against its acceptance criteria.\n\n"+
			"Title: %s\nAcceptance criteria: %s\n\nResult:\n%s\n\nDiff:\n%s\n\n"+
			"Pass only if the acceptance criteria are fully met.",
		task.Title, task.AcceptanceCriteria, artifacts.Result, artifacts.Diff)

	result, err := llm.GenerateObject(ctx, llm.GenerateOptions{
		Client: a.client,
		Model:  a.model,
		System: "You are a strict code reviewer gating merges for a swarm of autonomous coding agents.",
		Prompt: prompt,
	}, json.RawMessage(verdictSchema))
	if err != nil {
		return swarm.Verdict{}, fmt.Errorf("planner: evaluate: %w", err)
	}

	var parsed verdictResponse
	if err := json.Unmarshal([]byte(result.Text), &parsed); err != nil {
		return swarm.Verdict{}, fmt.Errorf("planner: parse verdict: %w", err)
	}
	return swarm.Verdict{Pass: parsed.Pass, Feedback: parsed.Feedback}, nil
}
