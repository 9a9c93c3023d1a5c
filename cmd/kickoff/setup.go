package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jxmullins/kickoff/internal/provider"
	"github.com/jxmullins/kickoff/internal/tui"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure a kickoff interactively, then run it on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			form := tui.NewSetupForm(cfg.Model.Provider, provider.Names())
			if err := form.Run(); err != nil {
				return err
			}
			if !form.Confirmed {
				return errors.New("cancelled")
			}

			f := runFlags{
				sow:      form.SOWPath,
				staffing: form.StaffingPath,
				context:  form.AdditionalContext,
				start:    form.StartDate,
				end:      form.EndDate,
				useTUI:   true,
				offline:  form.Provider == provider.ScriptedName,
			}
			if form.Provider != cfg.Model.Provider {
				cfg.Model.Provider = form.Provider
				cfg.Model.Model = ""
			}

			in, err := f.input(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, in, f)
		},
	}
}
