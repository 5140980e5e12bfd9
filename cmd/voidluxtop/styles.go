// ABOUTME: lipgloss style constants for voidluxtop panels and status colors.
// ABOUTME: styleForTaskStatus/styleForAgentStatus/styleForNodeStatus map swarm status values to a color.
package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/voidlux/voidlux/internal/swarm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	okStatus      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStatus    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	badStatus     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	neutralStatus = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// styleForTaskStatus maps a task's lifecycle status to a display style.
func styleForTaskStatus(s swarm.TaskStatus) lipgloss.Style {
	switch s {
	case swarm.TaskCompleted:
		return okStatus
	case swarm.TaskFailed, swarm.TaskCancelled:
		return badStatus
	case swarm.TaskInProgress, swarm.TaskMerging, swarm.TaskClaimed:
		return warnStatus
	default:
		return neutralStatus
	}
}

// styleForAgentStatus maps an agent's status to a display style.
func styleForAgentStatus(s swarm.AgentStatus) lipgloss.Style {
	switch s {
	case swarm.AgentIdle:
		return okStatus
	case swarm.AgentError, swarm.AgentOffline:
		return badStatus
	case swarm.AgentBusy, swarm.AgentWaiting, swarm.AgentStarting:
		return warnStatus
	default:
		return neutralStatus
	}
}

// styleForNodeStatus maps a node's liveness status to a display style.
func styleForNodeStatus(s swarm.NodeStatus) lipgloss.Style {
	if s == swarm.NodeOnline {
		return okStatus
	}
	return badStatus
}
