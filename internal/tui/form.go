package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/jxmullins/kickoff/internal/timeline"
)

// SetupForm holds the form state for a kickoff run.
type SetupForm struct {
	SOWPath           string
	StaffingPath      string
	AdditionalContext string
	StartDate         string
	EndDate           string
	Provider          string
	Confirmed         bool

	providers []string
}

// NewSetupForm creates a setup form preselecting the configured provider.
func NewSetupForm(provider string, providers []string) *SetupForm {
	return &SetupForm{
		Provider:  provider,
		providers: providers,
	}
}

// Run displays the setup form.
func (f *SetupForm) Run() error {
	providerOptions := make([]huh.Option[string], 0, len(f.providers))
	for _, name := range f.providers {
		providerOptions = append(providerOptions, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Statement of Work").
				Description("Path to the SOW text or markdown file").
				Placeholder("./sow.md").
				Value(&f.SOWPath).
				Validate(validateFile(true)),

			huh.NewInput().
				Title("Staffing Plan").
				Description("Optional path to a staffing plan (one role per line)").
				Value(&f.StaffingPath).
				Validate(validateFile(false)),

			huh.NewText().
				Title("Additional Context").
				Description("Anything the team should know that is not in the SOW").
				Value(&f.AdditionalContext),
		).Title("Project Kickoff").Description("Point the team at the engagement"),

		huh.NewGroup(
			huh.NewInput().
				Title("Start Date").
				Description("YYYY-MM-DD, leave empty to run without a timeline").
				Value(&f.StartDate).
				Validate(validateDate),

			huh.NewInput().
				Title("End Date").
				Description("YYYY-MM-DD").
				Value(&f.EndDate).
				Validate(f.validateEndDate),
		).Title("Project Timeline"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model Provider").
				Description("Use scripted for an offline dry run").
				Options(providerOptions...).
				Value(&f.Provider),
		).Title("Model"),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Ready to Begin?").
				DescriptionFunc(f.summary, f).
				Affirmative("Start Kickoff").
				Negative("Cancel").
				Value(&f.Confirmed),
		).Title("Confirm"),
	).WithTheme(kickoffTheme())

	return form.Run()
}

func (f *SetupForm) summary() string {
	dates := "no timeline"
	if f.StartDate != "" && f.EndDate != "" {
		dates = f.StartDate + " to " + f.EndDate
	}
	staffing := f.StaffingPath
	if staffing == "" {
		staffing = "default roles"
	}
	return fmt.Sprintf("SOW: %s\nStaffing: %s\nTimeline: %s\nProvider: %s",
		truncateString(f.SOWPath, 40),
		truncateString(staffing, 40),
		dates,
		f.Provider,
	)
}

func validateFile(required bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if required {
				return errors.New("a statement of work is required")
			}
			return nil
		}
		info, err := os.Stat(s)
		if err != nil {
			return fmt.Errorf("cannot read %s", s)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", s)
		}
		return nil
	}
}

func validateDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := timeline.ParseDate(s); err != nil {
		return errors.New("use YYYY-MM-DD")
	}
	return nil
}

func (f *SetupForm) validateEndDate(s string) error {
	if err := validateDate(s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" || strings.TrimSpace(f.StartDate) == "" {
		return nil
	}
	start, _ := timeline.ParseDate(f.StartDate)
	end, _ := timeline.ParseDate(s)
	if end.Before(start) {
		return errors.New("end date is before start date")
	}
	return nil
}

func kickoffTheme() *huh.Theme {
	t := huh.ThemeDracula()

	t.Focused.Title = t.Focused.Title.Foreground(lipgloss.Color("#7C3AED"))
	t.Focused.Description = t.Focused.Description.Foreground(lipgloss.Color("#9CA3AF"))
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(lipgloss.Color("#10B981"))
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(lipgloss.Color("#7C3AED"))

	return t
}
