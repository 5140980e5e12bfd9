// ABOUTME: mcpsurface exposes the MCP tool surface agent sessions call back into: task_complete, task_failed, task_progress, task_needs_input, agent_ready.
// ABOUTME: No local grounding file for the go-sdk's exact API shape was retrieved; wired against its documented NewServer/AddTool generic-handler pattern.
package mcpsurface

import (
	"context"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voidlux/voidlux/internal/agentreg"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// Server wraps an *mcp.Server preconfigured with the swarm's callback tools.
// One Server runs per node, reachable by every agent session it spawns.
type Server struct {
	mcp      *mcp.Server
	queue    *task.Queue
	registry *agentreg.Registry
}

// New builds the MCP tool surface bound to the local task queue and agent
// registry. Agent sessions spawned by this node are configured to dial back
// into the returned server over its transport.
func New(q *task.Queue, reg *agentreg.Registry) *Server {
	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: "voidlux", Version: "0.1.0"}, nil),
		queue:    q,
		registry: reg,
	}
	s.registerTools()
	return s
}

// Handler returns the underlying *mcp.Server for a transport (stdio or
// streamable-HTTP) to serve.
func (s *Server) Handler() *mcp.Server {
	return s.mcp
}

type taskCompleteInput struct {
	AgentID string `json:"agent_id" jsonschema:"the calling agent's id"`
	TaskID  string `json:"task_id" jsonschema:"the task being completed"`
	Result  string `json:"result" jsonschema:"a short summary of the completed work"`
}

type taskFailedInput struct {
	AgentID string `json:"agent_id" jsonschema:"the calling agent's id"`
	TaskID  string `json:"task_id" jsonschema:"the task that failed"`
	Reason  string `json:"reason" jsonschema:"why the task could not be completed"`
}

type taskProgressInput struct {
	AgentID string `json:"agent_id" jsonschema:"the calling agent's id"`
	TaskID  string `json:"task_id" jsonschema:"the task in progress"`
	Note    string `json:"note" jsonschema:"a short progress update"`
}

type taskNeedsInputInput struct {
	AgentID string `json:"agent_id" jsonschema:"the calling agent's id"`
	TaskID  string `json:"task_id" jsonschema:"the task blocked on input"`
}

type agentReadyInput struct {
	AgentID string `json:"agent_id" jsonschema:"the calling agent's id"`
}

type ackOutput struct {
	Acknowledged bool `json:"acknowledged"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_complete",
		Description: "Report that the current task has been completed successfully.",
	}, s.handleTaskComplete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_failed",
		Description: "Report that the current task could not be completed.",
	}, s.handleTaskFailed)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_progress",
		Description: "Report an in-progress status update for the current task.",
	}, s.handleTaskProgress)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_needs_input",
		Description: "Report that the current task is blocked waiting on a decision or clarification.",
	}, s.handleTaskNeedsInput)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "agent_ready",
		Description: "Report that an agent session has finished initializing and is ready for work.",
	}, s.handleAgentReady)
}

func (s *Server) handleTaskComplete(ctx context.Context, req *mcp.CallToolRequest, in taskCompleteInput) (*mcp.CallToolResult, ackOutput, error) {
	if err := s.queue.Submit(task.CompleteTask{TaskID: in.TaskID, Result: in.Result}); err != nil {
		return nil, ackOutput{}, fmt.Errorf("mcpsurface: task_complete %s: %w", in.TaskID, err)
	}
	if err := s.registry.SetStatus(in.AgentID, swarm.AgentIdle, true); err != nil {
		log.Printf("component=mcpsurface action=task_complete agent=%s err=%q", in.AgentID, err)
	}
	return nil, ackOutput{Acknowledged: true}, nil
}

func (s *Server) handleTaskFailed(ctx context.Context, req *mcp.CallToolRequest, in taskFailedInput) (*mcp.CallToolResult, ackOutput, error) {
	if err := s.queue.Submit(task.FailTask{TaskID: in.TaskID, Reason: in.Reason}); err != nil {
		return nil, ackOutput{}, fmt.Errorf("mcpsurface: task_failed %s: %w", in.TaskID, err)
	}
	if err := s.registry.SetStatus(in.AgentID, swarm.AgentIdle, true); err != nil {
		log.Printf("component=mcpsurface action=task_failed agent=%s err=%q", in.AgentID, err)
	}
	return nil, ackOutput{Acknowledged: true}, nil
}

func (s *Server) handleTaskProgress(ctx context.Context, req *mcp.CallToolRequest, in taskProgressInput) (*mcp.CallToolResult, ackOutput, error) {
	if err := s.queue.Submit(task.UpdateProgress{TaskID: in.TaskID, Progress: in.Note}); err != nil {
		return nil, ackOutput{}, fmt.Errorf("mcpsurface: task_progress %s: %w", in.TaskID, err)
	}
	return nil, ackOutput{Acknowledged: true}, nil
}

func (s *Server) handleTaskNeedsInput(ctx context.Context, req *mcp.CallToolRequest, in taskNeedsInputInput) (*mcp.CallToolResult, ackOutput, error) {
	if err := s.queue.Submit(task.NeedsInput{TaskID: in.TaskID}); err != nil {
		return nil, ackOutput{}, fmt.Errorf("mcpsurface: task_needs_input %s: %w", in.TaskID, err)
	}
	if err := s.registry.SetStatus(in.AgentID, swarm.AgentWaiting, false); err != nil {
		log.Printf("component=mcpsurface action=task_needs_input agent=%s err=%q", in.AgentID, err)
	}
	return nil, ackOutput{Acknowledged: true}, nil
}

func (s *Server) handleAgentReady(ctx context.Context, req *mcp.CallToolRequest, in agentReadyInput) (*mcp.CallToolResult, ackOutput, error) {
	if err := s.registry.SetStatus(in.AgentID, swarm.AgentIdle, false); err != nil {
		return nil, ackOutput{}, fmt.Errorf("mcpsurface: agent_ready %s: %w", in.AgentID, err)
	}
	return nil, ackOutput{Acknowledged: true}, nil
}
