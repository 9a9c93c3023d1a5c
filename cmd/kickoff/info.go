package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jxmullins/kickoff/internal/staffing"
	"github.com/jxmullins/kickoff/internal/timeline"
)

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the kickoff team and their deliverables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			r := cfg.Roster()
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), r.Agents())
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Phase", "Agent", "Job Function", "Default Role", "Deliverable"})
			for _, p := range r.Phases() {
				for _, id := range p.Agents {
					a, _ := r.Agent(id)
					deliverable := ""
					if d, ok := r.DeliverableFor(id, p.ID); ok {
						deliverable = d.Title
					}
					tw.AppendRow(table.Row{fmt.Sprintf("%d %s", p.ID, p.Name), id, a.Emoji + " " + a.JobFunction, a.DefaultProjectRole, deliverable})
				}
			}
			tw.Render()
			return nil
		},
	}
}

func staffingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "staffing <file>",
		Short: "Show how a staffing plan maps onto the agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			text, err := readText(args[0], cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading staffing plan: %w", err)
			}

			parsed := staffing.Parse(text)
			roles := make(map[string]string)
			for _, a := range cfg.Roster().Agents() {
				roles[a.ID] = staffing.RoleFor(parsed, a)
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), roles)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Agent", "Project Role", "Source"})
			for _, a := range cfg.Roster().Agents() {
				source := "default"
				if _, ok := parsed[a.ID]; ok {
					source = "plan"
				}
				tw.AppendRow(table.Row{a.JobFunction, roles[a.ID], source})
			}
			tw.Render()
			return nil
		},
	}
}

func timelineCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Preview the phase calendar for a project date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			s, err := optionalDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			e, err := optionalDate(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			r := cfg.Roster()
			tl := timeline.Compute(s, e, r.Phases())
			if tl == nil {
				return errors.New("no timeline: --end must fall after --start with at least one business day")
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), tl)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Phase", "Start", "End", "Business Days", "Days per Agent"})
			for _, p := range r.Phases() {
				w, ok := tl.Phase(p.ID)
				if !ok {
					continue
				}
				tw.AppendRow(table.Row{
					fmt.Sprintf("%d %s", p.ID, p.Name),
					timeline.FormatDate(w.StartDate),
					timeline.FormatDate(w.EndDate),
					w.BusinessDays,
					w.AgentDuration(len(p.Agents)),
				})
			}
			tw.AppendFooter(table.Row{"Total", timeline.FormatDate(tl.StartDate), timeline.FormatDate(tl.EndDate), tl.TotalBusinessDays, ""})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "project start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "project end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

