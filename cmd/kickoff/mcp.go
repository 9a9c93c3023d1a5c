package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jxmullins/kickoff/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the kickoff tools over MCP stdio",
		Long: `Serve the kickoff tools to an MCP client over stdin/stdout.

Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			mcpserver.Version = Version
			slog.Info("serving MCP over stdio", "version", Version, "provider", cfg.Model.Provider)
			if err := mcpserver.Serve(cfg); err != nil {
				fmt.Fprintln(os.Stderr, "server error:", err)
				return err
			}
			return nil
		},
	}
}
