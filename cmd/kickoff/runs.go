package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jxmullins/kickoff/internal/archive"
	"github.com/jxmullins/kickoff/internal/config"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "runs", Short: "Browse archived kickoff runs"}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func withArchive(fn func(*archive.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return withStore(cfg, fn)
}

func withStore(cfg *config.Config, fn func(*archive.Store) error) error {
	store, err := archive.Open(cfg.Archive.Dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(store *archive.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), runs)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Started", "State", "Deliverables", "Tokens", "SOW"})
				for _, r := range runs {
					tw.AppendRow(table.Row{
						r.ID,
						r.StartedAt.Local().Format(time.DateTime),
						r.State,
						fmt.Sprintf("%d/%d", r.Completed, r.Total),
						r.Tokens,
						firstLine(r.SOW, 40),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(store *archive.Store) error {
				d, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, archive.ErrNotFound) {
					return fmt.Errorf("run %s not found in %s", args[0], store.Dir())
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), d)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:      %s\n", d.ID)
				fmt.Fprintf(out, "State:    %s\n", d.State)
				fmt.Fprintf(out, "Started:  %s\n", d.StartedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Duration: %s\n", d.FinishedAt.Sub(d.StartedAt).Round(time.Second))
				fmt.Fprintf(out, "Tokens:   %d ($%.4f)\n", d.Tokens, d.Cost)
				if d.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", d.Error)
				}
				fmt.Fprintf(out, "Files:    %s\n\n", d.Dir)

				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.AppendHeader(table.Row{"Phase", "Deliverable", "Agent", "Status", "Completed"})
				for _, dl := range d.Deliverables {
					tw.AppendRow(table.Row{dl.Phase, dl.Title, dl.AgentID, dl.Status, dl.CompletedDate})
				}
				tw.Render()

				if d.Insights != nil {
					fmt.Fprintf(out, "\nInsights (%s scope):\n%s\n", d.Insights.ScopeAssessment.Verdict, d.Insights.ExecutiveSummary)
				} else if d.InsightsError != "" {
					fmt.Fprintf(out, "\nInsights failed: %s\n", d.InsightsError)
				}
				return nil
			})
		},
	}
}
