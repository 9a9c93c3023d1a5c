package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jxmullins/kickoff/internal/config"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/simulation"
)

func TestRunFlagsInput(t *testing.T) {
	dir := t.TempDir()
	sowPath := filepath.Join(dir, "sow.md")
	staffPath := filepath.Join(dir, "staff.txt")
	ctxPath := filepath.Join(dir, "context.txt")
	os.WriteFile(sowPath, []byte("# Data Platform\nBuild it."), 0644)
	os.WriteFile(staffPath, []byte("Data Engineer - Pipeline Lead"), 0644)
	os.WriteFile(ctxPath, []byte("Client is in retail."), 0644)

	f := runFlags{
		sow:         sowPath,
		staffing:    staffPath,
		context:     "Budget is fixed.",
		contextFile: ctxPath,
		start:       "2025-01-06",
		end:         "2025-03-28",
	}
	in, err := f.input(strings.NewReader(""))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.SOW != "# Data Platform\nBuild it." {
		t.Errorf("SOW = %q", in.SOW)
	}
	if in.StaffingPlan != "Data Engineer - Pipeline Lead" {
		t.Errorf("staffing = %q", in.StaffingPlan)
	}
	if in.AdditionalContext != "Budget is fixed.\n\nClient is in retail." {
		t.Errorf("context = %q", in.AdditionalContext)
	}
	if in.StartDate == nil || !in.StartDate.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", in.StartDate)
	}
}

func TestRunFlagsInputStdinAndBadDate(t *testing.T) {
	in, err := runFlags{sow: "-"}.input(strings.NewReader("SOW from stdin"))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if in.SOW != "SOW from stdin" || in.StartDate != nil {
		t.Errorf("input = %+v", in)
	}

	if _, err := (runFlags{sow: "-", start: "01/06/2025"}).input(strings.NewReader("x")); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestShortTitle(t *testing.T) {
	tests := []struct {
		sow  string
		want string
	}{
		{"\n\n# Acme Data Platform\nbody", "Acme Data Platform"},
		{"", "Statement of Work"},
		{strings.Repeat("x", 80), strings.Repeat("x", 57) + "..."},
	}
	for _, tt := range tests {
		if got := shortTitle(tt.sow); got != tt.want {
			t.Errorf("shortTitle(%q) = %q, want %q", tt.sow, got, tt.want)
		}
	}
}

func TestConsolePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &consolePrinter{
		out:    &buf,
		roster: roster.Default(),
		roles:  map[string]string{"client-partner": "Account Lead"},
	}
	done := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	for _, payload := range []simulation.Payload{
		simulation.SimulationStart{},
		simulation.PhaseStart{PhaseID: 1, PhaseName: "Discovery"},
		simulation.MessagePosted{Message: simulation.Message{AgentID: "client-partner", Text: "SOW reviewed."}},
		simulation.DeliverableUpdate{DeliverableID: "sow-review", Status: simulation.DeliverableCompleted, CompletedDate: &done, DurationDays: 6},
		simulation.DeliverableUpdate{DeliverableID: "test-strategy", Status: simulation.DeliverableError},
		simulation.SimulationComplete{},
	} {
		p.handle(simulation.NewEvent(payload))
	}

	out := buf.String()
	for _, want := range []string{
		"Phase 1: Discovery",
		"Client Partner (Account Lead):",
		"SOW reviewed.",
		"✓ SOW Review & Objectives (done Jan 14, 2025, 6 business days)",
		"✗ Test Strategy failed",
		"Kickoff complete.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestRunSimulationOffline(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Dir = t.TempDir()

	var buf bytes.Buffer
	f := runFlags{offline: true, noDelay: true}
	in, err := runFlags{sow: "-"}.input(strings.NewReader("# Retail analytics\nBuild dashboards."))
	if err != nil {
		t.Fatal(err)
	}

	if err := runSimulation(context.Background(), &buf, cfg, in, f); err != nil {
		t.Fatalf("runSimulation: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Phase 5: Deliverables & Wrap-up", "Project Insights", "Kickoff complete.", "Deliverables saved to:", "No usage recorded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	entries, err := os.ReadDir(cfg.Archive.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var runDirs int
	for _, e := range entries {
		if e.IsDir() {
			runDirs++
		}
	}
	if runDirs != 1 {
		t.Errorf("run dirs = %d, want 1", runDirs)
	}
}

type fakeStopper struct {
	mu      sync.Mutex
	stopped bool
}

func (f *fakeStopper) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeStopper) Stopping() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestWatchInterrupts(t *testing.T) {
	tests := []struct {
		name       string
		stopping   bool
		signals    int
		wantCancel bool
		wantOutput string
	}{
		{"first stops", false, 1, false, "Stopping after the current phase"},
		{"second aborts", false, 2, true, "Aborting"},
		{"already stopping aborts", true, 1, true, "Aborting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var cancelled bool
			var mu sync.Mutex
			cancelFn := func() {
				mu.Lock()
				cancelled = true
				mu.Unlock()
				cancel()
			}

			o := &fakeStopper{stopped: tt.stopping}
			sigCh := make(chan os.Signal, 2)
			for i := 0; i < tt.signals; i++ {
				sigCh <- os.Interrupt
			}

			var buf bytes.Buffer
			done := make(chan struct{})
			go func() {
				watchInterrupts(ctx, sigCh, o, cancelFn, &buf)
				close(done)
			}()

			if !tt.wantCancel {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("watchInterrupts did not return")
			}

			mu.Lock()
			defer mu.Unlock()
			if cancelled != tt.wantCancel {
				t.Errorf("cancelled = %v, want %v", cancelled, tt.wantCancel)
			}
			if !o.Stopping() {
				t.Error("run not stopped")
			}
			if !strings.Contains(buf.String(), tt.wantOutput) {
				t.Errorf("output = %q, want %q", buf.String(), tt.wantOutput)
			}
		})
	}
}
