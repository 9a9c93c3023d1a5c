// Package mcpserver exposes the kickoff simulator as MCP tools over stdio.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/jxmullins/kickoff/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every kickoff tool registered.
func New(cfg *config.Config) *server.MCPServer {
	if cfg == nil {
		cfg = config.Default()
	}

	s := server.NewMCPServer(
		"kickoff",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	t := NewTools(cfg)
	s.AddTool(t.AgentsDefinition(), t.HandleAgents)
	s.AddTool(t.StaffingDefinition(), t.HandleStaffing)
	s.AddTool(t.TimelineDefinition(), t.HandleTimeline)
	s.AddTool(t.RunDefinition(), t.HandleRun)
	s.AddTool(t.RunsDefinition(), t.HandleRuns)

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(cfg *config.Config) error {
	return server.ServeStdio(New(cfg))
}

const instructions = `Kickoff simulates a consulting project kickoff. Eight role-specialized agents
(client partner, solutions architect, project manager, data, AI/ML, cloud,
full-stack and QA engineers) work through five phases against a statement of
work and produce ten deliverables plus an insights report.

Typical flow:
1. kickoff_agents to see the team and what each agent delivers.
2. kickoff_parse_staffing to check how a staffing plan maps onto the agents.
3. kickoff_timeline to preview the phase calendar for a date range.
4. kickoff_run with the SOW text. Set offline=true for a scripted dry run.
5. kickoff_runs to list archived runs or fetch one by run_id.`
