// Package session wires configuration, providers and the archive around one
// simulation run. The CLI and the MCP server both start runs through it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jxmullins/kickoff/internal/archive"
	"github.com/jxmullins/kickoff/internal/budget"
	"github.com/jxmullins/kickoff/internal/config"
	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/provider"
	"github.com/jxmullins/kickoff/internal/simulation"
)

// ErrEmptySOW is returned when a run is requested without a statement of work.
var ErrEmptySOW = errors.New("statement of work is empty")

// Input is what the user supplies for one run.
type Input struct {
	SOW               string
	StaffingPlan      string
	AdditionalContext string
	StartDate         *time.Time
	EndDate           *time.Time
}

// Options controls how a session is built.
type Options struct {
	// Offline swaps every model for the scripted provider.
	Offline bool
	// NoDelay drops the configured pacing delays.
	NoDelay bool
	OnEvent func(simulation.Event)
}

// Session is one configured run.
type Session struct {
	Orchestrator *simulation.Orchestrator
	Usage        *budget.Tracker
	Input        Input

	cfg       *config.Config
	model     config.ModelConfig
	provider  provider.Provider
	startedAt time.Time
}

// New builds the providers and orchestrator for a run.
func New(cfg *config.Config, in Input, opts Options) (*Session, error) {
	if strings.TrimSpace(in.SOW) == "" {
		return nil, ErrEmptySOW
	}
	if cfg == nil {
		cfg = config.Default()
	}

	modelCfg := cfg.Model
	insightsCfg := cfg.InsightsModelConfig()
	separateInsights := insightsCfg != modelCfg
	if opts.Offline {
		modelCfg = config.ModelConfig{Provider: provider.ScriptedName, Model: provider.ScriptedName}
		separateInsights = false
	}

	p, err := provider.New(modelCfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	if m, ok := p.(interface{ GetModel() string }); ok && m.GetModel() != "" {
		modelCfg.Model = m.GetModel()
	}
	client := provider.NewClient(p, provider.ClientConfig{
		Temperature: modelCfg.Temperature,
		MaxTokens:   modelCfg.MaxTokens,
	})

	var gen simulation.InsightsGenerator
	if separateInsights {
		ip, err := provider.New(insightsCfg)
		if err != nil {
			return nil, fmt.Errorf("creating insights provider: %w", err)
		}
		gen = insights.NewGenerator(provider.NewClient(ip, provider.ClientConfig{}), cfg.Simulation.InsightsMaxTokens)
	}

	r := cfg.Roster()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}

	usage := budget.NewTracker()
	simOpts := simulation.Options{
		SOW:               in.SOW,
		StaffingPlan:      in.StaffingPlan,
		AdditionalContext: in.AdditionalContext,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		Roster:            r,
		Templates:         cfg.Overrides.Templates,
		Limits:            cfg.PromptLimits(),
		Model:             client,
		Insights:          gen,
		InsightsMaxTokens: cfg.Simulation.InsightsMaxTokens,
		Usage:             usage,
		ProviderName:      p.Name(),
		ModelName:         modelCfg.Model,
		OnEvent:           opts.OnEvent,
	}
	if !opts.NoDelay {
		simOpts.AgentStartDelay = time.Duration(cfg.Simulation.AgentStartDelayMS) * time.Millisecond
		simOpts.PhaseDelay = time.Duration(cfg.Simulation.PhaseDelayMS) * time.Millisecond
	}

	o, err := simulation.New(simOpts)
	if err != nil {
		return nil, err
	}

	return &Session{
		Orchestrator: o,
		Usage:        usage,
		Input:        in,
		cfg:          cfg,
		model:        modelCfg,
		provider:     p,
		startedAt:    time.Now(),
	}, nil
}

// ProviderName returns the name of the agent model provider.
func (s *Session) ProviderName() string {
	return s.provider.Name()
}

// Model returns the agent model configuration in use.
func (s *Session) Model() config.ModelConfig {
	return s.model
}

// Check verifies the agent model provider is reachable.
func (s *Session) Check(ctx context.Context) error {
	if err := s.provider.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check: %w", s.provider.Name(), err)
	}
	return nil
}

// Run starts the simulation and blocks until it ends.
func (s *Session) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	slog.Debug("starting run", "run", s.Orchestrator.RunID(), "provider", s.provider.Name(), "model", s.model.Model)
	return s.Orchestrator.Start(ctx)
}

// Record describes the finished run for the archive.
func (s *Session) Record() archive.Record {
	return archive.Record{
		RunID:             s.Orchestrator.RunID(),
		SOW:               s.Input.SOW,
		StaffingPlan:      s.Input.StaffingPlan,
		AdditionalContext: s.Input.AdditionalContext,
		StartedAt:         s.startedAt,
		FinishedAt:        time.Now(),
		Roster:            s.Orchestrator.Roster(),
		State:             s.Orchestrator.State(),
		Tokens:            s.Usage.GetTotalTokens(),
		Cost:              s.Usage.GetTotalCost(),
	}
}

// Archive saves the run when archiving is enabled and returns its directory.
// It returns "" when archiving is off.
func (s *Session) Archive(ctx context.Context) (string, error) {
	if !s.cfg.Archive.IsEnabled() {
		return "", nil
	}
	store, err := archive.Open(s.cfg.Archive.Dir)
	if err != nil {
		return "", err
	}
	defer store.Close()

	dir, err := store.Save(ctx, s.Record())
	if err != nil {
		return "", err
	}
	slog.Info("run archived", "run", s.Orchestrator.RunID(), "dir", dir)
	return dir, nil
}
