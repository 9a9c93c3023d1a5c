package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxmullins/kickoff/internal/config"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/session"
	"github.com/jxmullins/kickoff/internal/simulation"
	"github.com/jxmullins/kickoff/internal/timeline"
	"github.com/jxmullins/kickoff/internal/tui"
)

type runFlags struct {
	sow         string
	staffing    string
	context     string
	contextFile string
	start       string
	end         string
	useTUI      bool
	offline     bool
	noDelay     bool
	check       bool
	usageFile   string
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a kickoff simulation",
		Long: `Run a kickoff simulation for a statement of work.

The SOW is read from a file, or from stdin with --sow -.
Dates are optional; with both --start and --end each deliverable gets a
simulated start and completion date.

Press Ctrl+C once to stop after the current phase, twice to abort.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			in, err := f.input(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, in, f)
		},
	}

	cmd.Flags().StringVar(&f.sow, "sow", "", "statement of work file (- for stdin)")
	cmd.Flags().StringVar(&f.staffing, "staffing", "", "staffing plan file, one role per line")
	cmd.Flags().StringVar(&f.context, "context", "", "additional project context")
	cmd.Flags().StringVar(&f.contextFile, "context-file", "", "file with additional project context")
	cmd.Flags().StringVar(&f.start, "start", "", "project start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "project end date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.useTUI, "tui", false, "show the interactive kickoff board")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "use the scripted provider instead of a model")
	cmd.Flags().BoolVar(&f.noDelay, "no-delay", false, "skip the pacing delays between agents and phases")
	cmd.Flags().BoolVar(&f.check, "check", false, "check the model provider is reachable before running")
	cmd.Flags().StringVar(&f.usageFile, "usage-file", "", "write token usage JSON to this file")
	_ = cmd.MarkFlagRequired("sow")
	return cmd
}

func (f runFlags) input(stdin io.Reader) (session.Input, error) {
	var in session.Input

	sow, err := readText(f.sow, stdin)
	if err != nil {
		return in, fmt.Errorf("reading SOW: %w", err)
	}
	in.SOW = sow

	if f.staffing != "" {
		if in.StaffingPlan, err = readText(f.staffing, stdin); err != nil {
			return in, fmt.Errorf("reading staffing plan: %w", err)
		}
	}

	in.AdditionalContext = f.context
	if f.contextFile != "" {
		extra, err := readText(f.contextFile, stdin)
		if err != nil {
			return in, fmt.Errorf("reading context: %w", err)
		}
		in.AdditionalContext = strings.TrimSpace(in.AdditionalContext + "\n\n" + extra)
	}

	if in.StartDate, err = optionalDate(f.start); err != nil {
		return in, fmt.Errorf("--start: %w", err)
	}
	if in.EndDate, err = optionalDate(f.end); err != nil {
		return in, fmt.Errorf("--end: %w", err)
	}
	if (in.StartDate == nil) != (in.EndDate == nil) {
		slog.Warn("timeline needs both --start and --end, running without dates")
	}
	return in, nil
}

func readText(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func optionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := timeline.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func runSimulation(ctx context.Context, out io.Writer, cfg *config.Config, in session.Input, f runFlags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var board *tui.Runner
	var onEvent func(simulation.Event)
	var printer *consolePrinter
	if f.useTUI {
		board = tui.NewRunner()
		onEvent = board.Sink()
	} else {
		printer = &consolePrinter{out: out}
		onEvent = printer.handle
	}

	s, err := session.New(cfg, in, session.Options{Offline: f.offline, NoDelay: f.noDelay, OnEvent: onEvent})
	if err != nil {
		return err
	}
	o := s.Orchestrator
	if printer != nil {
		printer.roster = o.Roster()
		printer.roles = o.ProjectRoles()
	}

	if f.check {
		checkCtx, done := context.WithTimeout(ctx, 30*time.Second)
		err := s.Check(checkCtx)
		done()
		if err != nil {
			return err
		}
		slog.Info("provider reachable", "provider", s.ProviderName(), "model", s.Model().Model)
	}

	// First interrupt stops at the next phase boundary, the second aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go watchInterrupts(ctx, sigCh, o, cancel, os.Stderr)

	if board != nil {
		err = board.Run(ctx, o, shortTitle(in.SOW))
	} else {
		err = s.Run(ctx)
	}

	if dir, archErr := s.Archive(context.WithoutCancel(ctx)); archErr != nil {
		slog.Error("archiving run failed", "error", archErr)
	} else if dir != "" {
		fmt.Fprintf(out, "\nDeliverables saved to: %s\n", dir)
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, s.Usage.Summary())
	if f.usageFile != "" {
		if saveErr := s.Usage.SaveToFile(f.usageFile); saveErr != nil {
			slog.Error("saving usage failed", "path", f.usageFile, "error", saveErr)
		}
	}

	if errors.Is(err, simulation.ErrCancelled) {
		fmt.Fprintln(out, "Kickoff cancelled.")
		return nil
	}
	return err
}

type stopper interface {
	Stop()
	Stopping() bool
}

// watchInterrupts stops the run on the first interrupt and cancels it on the
// next. A run already stopping, for instance after the board was closed, is
// cancelled straight away.
func watchInterrupts(ctx context.Context, sigCh <-chan os.Signal, o stopper, cancel context.CancelFunc, w io.Writer) {
	for {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		if o.Stopping() {
			fmt.Fprintln(w, "\nAborting...")
			cancel()
			return
		}
		fmt.Fprintln(w, "\nStopping after the current phase (Ctrl+C again to abort)...")
		o.Stop()
	}
}

// shortTitle is the first non-empty SOW line, trimmed of markdown heading marks.
func shortTitle(sow string) string {
	for _, line := range strings.Split(sow, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			if r := []rune(line); len(r) > 60 {
				return string(r[:57]) + "..."
			}
			return line
		}
	}
	return "Statement of Work"
}

// consolePrinter renders the event stream as plain text.
type consolePrinter struct {
	out    io.Writer
	roster *roster.Roster
	roles  map[string]string
}

func (p *consolePrinter) name(agentID string) string {
	if p.roster != nil {
		if a, ok := p.roster.Agent(agentID); ok {
			if role := p.roles[agentID]; role != "" {
				return fmt.Sprintf("%s %s (%s)", a.Emoji, a.JobFunction, role)
			}
			return a.Emoji + " " + a.JobFunction
		}
	}
	return agentID
}

func (p *consolePrinter) title(deliverableID string) string {
	if p.roster != nil {
		if d, ok := p.roster.Deliverable(deliverableID); ok {
			return d.Title
		}
	}
	return deliverableID
}

func (p *consolePrinter) handle(e simulation.Event) {
	w := p.out
	switch d := e.Data.(type) {
	case simulation.SimulationStart:
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
		fmt.Fprintln(w, "  Project Kickoff")
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════")

	case simulation.PhaseStart:
		fmt.Fprintln(w)
		fmt.Fprintln(w, "───────────────────────────────────────────────────────")
		fmt.Fprintf(w, "  Phase %d: %s\n", d.PhaseID, d.PhaseName)
		fmt.Fprintln(w, "───────────────────────────────────────────────────────")

	case simulation.AgentStatusChange:
		if d.Status == simulation.StatusThinking && d.Task != "" {
			fmt.Fprintf(w, "%s is working on %s...\n", p.name(d.AgentID), d.Task)
		}

	case simulation.MessagePosted:
		fmt.Fprintf(w, "\n%s:\n  %s\n", p.name(d.Message.AgentID), d.Message.Text)

	case simulation.DeliverableUpdate:
		switch d.Status {
		case simulation.DeliverableCompleted:
			line := fmt.Sprintf("  ✓ %s", p.title(d.DeliverableID))
			if d.CompletedDate != nil {
				line += fmt.Sprintf(" (done %s, %d business days)", timeline.FormatDate(*d.CompletedDate), d.DurationDays)
			}
			fmt.Fprintln(w, line)
		case simulation.DeliverableError:
			fmt.Fprintf(w, "  ✗ %s failed\n", p.title(d.DeliverableID))
		}

	case simulation.TimelineUpdate:
		slog.Debug("simulated date", "date", timeline.FormatDate(d.SimulatedDate))

	case simulation.AgentError:
		fmt.Fprintf(w, "%s failed: %s\n", p.name(d.AgentID), d.Error)

	case simulation.InsightsGenerating:
		fmt.Fprintln(w, "\nGenerating project insights...")

	case simulation.InsightsReady:
		in := d.Insights
		fmt.Fprintln(w)
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
		fmt.Fprintln(w, "  Project Insights")
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
		fmt.Fprintln(w, in.ExecutiveSummary)
		fmt.Fprintf(w, "\nScope: %s\n", in.ScopeAssessment.Verdict)
		for _, r := range in.ProjectRisks {
			fmt.Fprintf(w, "  Risk [%s]: %s\n", r.Severity, r.Risk)
		}
		for _, r := range in.KeyRecommendations {
			fmt.Fprintf(w, "  Recommendation [%s]: %s\n", r.Priority, r.Recommendation)
		}

	case simulation.InsightsError:
		fmt.Fprintf(w, "Insights failed: %s\n", d.Error)

	case simulation.SimulationComplete:
		fmt.Fprintln(w, "\nKickoff complete.")

	case simulation.SimulationError:
		fmt.Fprintf(w, "\nKickoff failed: %s\n", d.Error)

	case simulation.SimulationCancelled:
		fmt.Fprintf(w, "\nStopped before phase %d.\n", d.Phase)
	}
}
