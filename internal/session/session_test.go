package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jxmullins/kickoff/internal/archive"
	"github.com/jxmullins/kickoff/internal/config"
	"github.com/jxmullins/kickoff/internal/provider"
	"github.com/jxmullins/kickoff/internal/simulation"
)

func TestOfflineRunArchives(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Dir = t.TempDir()

	var events int
	s, err := New(cfg, Input{SOW: "Build a customer data platform on GCP."}, Options{
		Offline: true,
		NoDelay: true,
		OnEvent: func(simulation.Event) { events++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.ProviderName() != provider.ScriptedName {
		t.Errorf("provider = %q, want %q", s.ProviderName(), provider.ScriptedName)
	}
	if err := s.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := s.Orchestrator.State()
	if st.RunState != simulation.RunCompleted {
		t.Fatalf("state = %s, want completed", st.RunState)
	}
	if st.Insights == nil {
		t.Error("insights missing")
	}
	if events == 0 {
		t.Error("no events delivered")
	}

	dir, err := s.Archive(context.Background())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "MANIFEST.md")); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	store, err := archive.Open(cfg.Archive.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	d, err := store.Get(context.Background(), s.Orchestrator.RunID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Completed != st.CompletedCount() {
		t.Errorf("archived completed = %d, want %d", d.Completed, st.CompletedCount())
	}
}

func TestArchiveDisabled(t *testing.T) {
	cfg := config.Default()
	off := false
	cfg.Archive.Enabled = &off
	cfg.Archive.Dir = filepath.Join(t.TempDir(), "runs")

	s, err := New(cfg, Input{SOW: "Modernize billing."}, Options{Offline: true, NoDelay: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir, err := s.Archive(context.Background())
	if err != nil || dir != "" {
		t.Errorf("Archive = %q, %v; want nothing", dir, err)
	}
	if _, err := os.Stat(cfg.Archive.Dir); !os.IsNotExist(err) {
		t.Error("archive dir created while disabled")
	}
}

func TestEmptySOW(t *testing.T) {
	_, err := New(config.Default(), Input{SOW: "  \n"}, Options{Offline: true})
	if !errors.Is(err, ErrEmptySOW) {
		t.Errorf("err = %v, want ErrEmptySOW", err)
	}
}

func TestUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "nope"
	if _, err := New(cfg, Input{SOW: "x"}, Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
