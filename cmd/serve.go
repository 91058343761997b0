package cmd

import (
	"github.com/agentic-research/etfkit/internal/mcptools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metadata lookups as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadMetadata()
			if err != nil {
				return err
			}
			a.log.Info("serving MCP over stdio", "version", Version, "metadata", a.cfg.MetadataFile)
			return server.ServeStdio(mcptools.NewServer(m, Version))
		},
	}
}
