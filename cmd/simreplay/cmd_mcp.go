package main

import (
	"github.com/nvandessel/simreplay/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve replay tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing replay_run, replay_history
and trajectory_decode. Tools may only read and write under the configured
data path and ~/.simreplay. Invocations are audited to
~/.simreplay/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "simreplay",
				Version: version,
				App:     cfg,
			})
			if err != nil {
				return err
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}
}
