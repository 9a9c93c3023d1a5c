// Kickoff CLI
// Simulates a consulting project kickoff with a team of AI agents.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jxmullins/kickoff/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "kickoff",
	Short: "Simulate a consulting project kickoff with AI agents",
	Long: `Kickoff runs a statement of work past a team of eight AI consultants.

The team works through five phases:
  1. Discovery                 Client Partner reviews the SOW
  2. Architecture & Planning   Solutions Architect and Project Manager
  3. Engineering Breakdown     Data, AI/ML, Cloud and Full-Stack engineers in parallel
  4. Quality & Review          QA Engineer
  5. Deliverables & Wrap-up    Project Manager and Client Partner

Each agent posts a chat update and writes a deliverable that later agents
build on. An insights report closes the run.

Example:
  kickoff run --sow sow.md
  kickoff run --sow sow.md --staffing team.txt --start 2025-01-06 --end 2025-03-28 --tui
  kickoff run --sow sow.md --offline`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KICKOFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(staffingCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(versionCmd())
}

func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the config file and layers KICKOFF_* environment
// overrides on top. A missing file means built-in defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func readConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.Load(path)
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./config/config.yaml",
		"./config.yaml",
		filepath.Join(home, ".config/kickoff/config.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			slog.Debug("loading config", "path", loc)
			return config.Load(loc)
		}
	}

	slog.Debug("no config file found, using defaults", "tried", locations)
	return config.Default(), nil
}

func applyEnv(cfg *config.Config) {
	if v := viper.GetString("model.provider"); v != "" {
		cfg.Model.Provider = v
		// A provider switch drops the default model name.
		if m := viper.GetString("model.model"); m == "" && v != "google" {
			cfg.Model.Model = ""
		}
	}
	if v := viper.GetString("model.model"); v != "" {
		cfg.Model.Model = v
	}
	if v := viper.GetString("model.endpoint"); v != "" {
		cfg.Model.Endpoint = v
	}
	if v := viper.GetString("archive.dir"); v != "" {
		cfg.Archive.Dir = v
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kickoff %s\n", Version)
		},
	}
}
