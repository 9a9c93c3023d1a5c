package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jxmullins/kickoff/internal/archive"
	"github.com/jxmullins/kickoff/internal/config"
	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/session"
	"github.com/jxmullins/kickoff/internal/simulation"
	"github.com/jxmullins/kickoff/internal/staffing"
	"github.com/jxmullins/kickoff/internal/timeline"
)

// Tools holds the handlers for every kickoff tool.
type Tools struct {
	cfg *config.Config
}

// NewTools creates the tool handlers over a configuration.
func NewTools(cfg *config.Config) *Tools {
	return &Tools{cfg: cfg}
}

// --- kickoff_agents ---

// AgentsDefinition returns the kickoff_agents tool definition.
func (t *Tools) AgentsDefinition() mcp.Tool {
	return mcp.NewTool("kickoff_agents",
		mcp.WithDescription("List the kickoff team: each agent's job function, default project role, phases and deliverables."),
	)
}

// HandleAgents renders the roster as markdown.
func (t *Tools) HandleAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := t.cfg.Roster()

	var sb strings.Builder
	sb.WriteString("# Kickoff Team\n\n")
	sb.WriteString("| Agent | Job Function | Default Role | Deliverables |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, a := range r.Agents() {
		var titles []string
		for _, d := range r.Deliverables() {
			if d.AgentID == a.ID {
				titles = append(titles, fmt.Sprintf("%s (phase %d)", d.Title, d.Phase))
			}
		}
		fmt.Fprintf(&sb, "| %s | %s %s | %s | %s |\n", a.ID, a.Emoji, a.JobFunction, a.DefaultProjectRole, strings.Join(titles, ", "))
	}

	sb.WriteString("\n## Phases\n\n")
	for _, p := range r.Phases() {
		fmt.Fprintf(&sb, "%d. **%s**: %s\n", p.ID, p.Name, strings.Join(p.Agents, ", "))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- kickoff_parse_staffing ---

// StaffingDefinition returns the kickoff_parse_staffing tool definition.
func (t *Tools) StaffingDefinition() mcp.Tool {
	return mcp.NewTool("kickoff_parse_staffing",
		mcp.WithDescription(
			"Map a free-text staffing plan onto the kickoff agents. "+
				"Each line like 'Sr. Data Engineer - Pipeline Architect' assigns the right-hand role "+
				"to the matching agent. Agents without a match keep their default role.",
		),
		mcp.WithString("staffing_plan",
			mcp.Required(),
			mcp.Description("The staffing plan text, one role per line."),
		),
	)
}

type roleAssignment struct {
	AgentID     string `json:"agentId"`
	JobFunction string `json:"jobFunction"`
	Role        string `json:"role"`
	FromPlan    bool   `json:"fromPlan"`
}

// HandleStaffing returns the resolved project role for every agent.
func (t *Tools) HandleStaffing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan := req.GetString("staffing_plan", "")
	if strings.TrimSpace(plan) == "" {
		return mcp.NewToolResultError("'staffing_plan' is required"), nil
	}

	parsed := staffing.Parse(plan)
	var out []roleAssignment
	for _, a := range t.cfg.Roster().Agents() {
		_, matched := parsed[a.ID]
		out = append(out, roleAssignment{
			AgentID:     a.ID,
			JobFunction: a.JobFunction,
			Role:        staffing.RoleFor(parsed, a),
			FromPlan:    matched,
		})
	}
	return jsonResult(out)
}

// --- kickoff_timeline ---

// TimelineDefinition returns the kickoff_timeline tool definition.
func (t *Tools) TimelineDefinition() mcp.Tool {
	return mcp.NewTool("kickoff_timeline",
		mcp.WithDescription("Preview how a project date range is split across the five phases in business days."),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Project start date, YYYY-MM-DD."),
		),
		mcp.WithString("end_date",
			mcp.Required(),
			mcp.Description("Project end date, YYYY-MM-DD."),
		),
	)
}

type phaseWindow struct {
	PhaseID      int    `json:"phaseId"`
	Name         string `json:"name"`
	Start        string `json:"start"`
	End          string `json:"end"`
	BusinessDays int    `json:"businessDays"`
	Agents       int    `json:"agents"`
	AgentDays    int    `json:"agentDays"`
}

// HandleTimeline computes the phase windows for a date range.
func (t *Tools) HandleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, errResult := parseDates(req)
	if errResult != nil {
		return errResult, nil
	}
	if start == nil || end == nil {
		return mcp.NewToolResultError("'start_date' and 'end_date' are required"), nil
	}

	r := t.cfg.Roster()
	tl := timeline.Compute(start, end, r.Phases())
	if tl == nil {
		return mcp.NewToolResultError("end_date must be after start_date with at least one business day between them"), nil
	}

	var phases []phaseWindow
	for _, p := range r.Phases() {
		w, ok := tl.Phase(p.ID)
		if !ok {
			continue
		}
		phases = append(phases, phaseWindow{
			PhaseID:      p.ID,
			Name:         p.Name,
			Start:        timeline.FormatDate(w.StartDate),
			End:          timeline.FormatDate(w.EndDate),
			BusinessDays: w.BusinessDays,
			Agents:       len(p.Agents),
			AgentDays:    w.AgentDuration(len(p.Agents)),
		})
	}

	return jsonResult(struct {
		TotalBusinessDays int           `json:"totalBusinessDays"`
		Phases            []phaseWindow `json:"phases"`
	}{tl.TotalBusinessDays, phases})
}

// --- kickoff_run ---

// RunDefinition returns the kickoff_run tool definition.
func (t *Tools) RunDefinition() mcp.Tool {
	return mcp.NewTool("kickoff_run",
		mcp.WithDescription(
			"Run a full kickoff simulation for a statement of work. "+
				"Returns every deliverable, the agents' chat messages and the insights report as JSON. "+
				"A live run makes one model call per agent and can take several minutes.",
		),
		mcp.WithString("sow",
			mcp.Required(),
			mcp.Description("The statement of work text."),
		),
		mcp.WithString("staffing_plan",
			mcp.Description("Optional staffing plan, one role per line."),
		),
		mcp.WithString("additional_context",
			mcp.Description("Optional extra project context."),
		),
		mcp.WithString("start_date",
			mcp.Description("Optional project start date, YYYY-MM-DD. Requires end_date."),
		),
		mcp.WithString("end_date",
			mcp.Description("Optional project end date, YYYY-MM-DD."),
		),
		mcp.WithBoolean("offline",
			mcp.Description("Use the scripted provider instead of the configured model."),
		),
	)
}

type runDeliverable struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AgentID       string `json:"agentId"`
	Status        string `json:"status"`
	Content       string `json:"content,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	CompletedDate string `json:"completedDate,omitempty"`
	DurationDays  int    `json:"durationDays,omitempty"`
}

type runResult struct {
	RunID         string               `json:"runId"`
	State         string               `json:"state"`
	Error         string               `json:"error,omitempty"`
	Progress      int                  `json:"progress"`
	Deliverables  []runDeliverable     `json:"deliverables"`
	Messages      []simulation.Message `json:"messages"`
	Insights      *insights.Insights   `json:"insights,omitempty"`
	InsightsError string               `json:"insightsError,omitempty"`
	ProjectRoles  map[string]string    `json:"projectRoles"`
	Tokens        int                  `json:"tokens"`
	ArchiveDir    string               `json:"archiveDir,omitempty"`
}

// HandleRun runs a simulation to completion and returns its results.
func (t *Tools) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sow := req.GetString("sow", "")
	if strings.TrimSpace(sow) == "" {
		return mcp.NewToolResultError("'sow' is required"), nil
	}
	start, end, errResult := parseDates(req)
	if errResult != nil {
		return errResult, nil
	}

	s, err := session.New(t.cfg, session.Input{
		SOW:               sow,
		StaffingPlan:      req.GetString("staffing_plan", ""),
		AdditionalContext: req.GetString("additional_context", ""),
		StartDate:         start,
		EndDate:           end,
	}, session.Options{
		Offline: req.GetBool("offline", false),
		NoDelay: true,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("creating run: %v", err)), nil
	}

	// A failed run still returns its partial output; the state carries the error.
	if err := s.Run(ctx); err != nil {
		slog.Warn("kickoff run ended early", "run", s.Orchestrator.RunID(), "error", err)
	}

	dir, err := s.Archive(context.WithoutCancel(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("archiving run: %v", err)), nil
	}

	o := s.Orchestrator
	st := o.State()
	res := runResult{
		RunID:         o.RunID(),
		State:         string(st.RunState),
		Error:         st.Error,
		Progress:      st.Progress(),
		Messages:      st.Messages,
		Insights:      st.Insights,
		InsightsError: st.InsightsError,
		ProjectRoles:  st.ProjectRoles,
		Tokens:        s.Usage.GetTotalTokens(),
		ArchiveDir:    dir,
	}
	for _, d := range o.Roster().Deliverables() {
		ds := st.Deliverables[d.ID]
		rd := runDeliverable{
			ID:           d.ID,
			Title:        d.Title,
			AgentID:      d.AgentID,
			Status:       string(ds.Status),
			Content:      ds.Content,
			DurationDays: ds.DurationDays,
		}
		if ds.StartDate != nil {
			rd.StartDate = ds.StartDate.Format(time.DateOnly)
		}
		if ds.CompletedDate != nil {
			rd.CompletedDate = ds.CompletedDate.Format(time.DateOnly)
		}
		res.Deliverables = append(res.Deliverables, rd)
	}
	return jsonResult(res)
}

// --- kickoff_runs ---

// RunsDefinition returns the kickoff_runs tool definition.
func (t *Tools) RunsDefinition() mcp.Tool {
	return mcp.NewTool("kickoff_runs",
		mcp.WithDescription("List archived kickoff runs, newest first, or fetch one run with its deliverables and insights."),
		mcp.WithString("run_id",
			mcp.Description("Return this run in full instead of the list."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to list. Default 20."),
		),
	)
}

// HandleRuns reads the run archive.
func (t *Tools) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := archive.Open(t.cfg.Archive.Dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("opening archive: %v", err)), nil
	}
	defer store.Close()

	if id := req.GetString("run_id", ""); id != "" {
		d, err := store.Get(ctx, id)
		if errors.Is(err, archive.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run %q not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(d)
	}

	runs, err := store.List(ctx, int(req.GetFloat("limit", 20)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runs)
}

// --- helpers ---

func parseDates(req mcp.CallToolRequest) (start, end *time.Time, errResult *mcp.CallToolResult) {
	parse := func(key string) (*time.Time, *mcp.CallToolResult) {
		s := strings.TrimSpace(req.GetString(key, ""))
		if s == "" {
			return nil, nil
		}
		d, err := timeline.ParseDate(s)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("'%s' must be YYYY-MM-DD: %v", key, err))
		}
		return &d, nil
	}
	if start, errResult = parse("start_date"); errResult != nil {
		return nil, nil, errResult
	}
	if end, errResult = parse("end_date"); errResult != nil {
		return nil, nil, errResult
	}
	return start, end, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
