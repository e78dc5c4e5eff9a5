package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/timedilation/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing:

  tdsim_simulate  run the simulation in memory and return per-run summaries
  tdsim_expect    closed-form beta, gamma, lambda and survival per species

Tool calls start from the effective configuration. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := newMCPServer(cmd)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("audit-dir", "", "Directory for the tool-call audit log (disabled when empty)")

	return cmd
}

// newMCPServer builds the server from the effective configuration and the
// command's flags.
func newMCPServer(cmd *cobra.Command) (*mcp.Server, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	auditDir, _ := cmd.Flags().GetString("audit-dir")

	server, err := mcp.NewServer(&mcp.Config{
		Name:     "tdsim",
		Version:  version,
		Base:     cfg,
		AuditDir: auditDir,
		Logger:   newLogger(cmd, cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server, nil
}
