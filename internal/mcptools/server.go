package mcptools

import (
	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/mark3labs/mcp-go/server"
)

const instructions = `Tools over one UNFCCC ETF metadata file. Sectors are named by alias
(energy, ippu, lulucf, agriculture, waste, ...), by node uid or by node name.`

// NewServer registers every tool over m. The tools share one Store, so
// calls are served one at a time.
func NewServer(m *etf.Metadata, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"etf",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	store := NewStore(m)

	find := NewFindTool(store)
	s.AddTool(find.Definition(), find.Handle)

	query := NewQueryTool(store)
	s.AddTool(query.Definition(), query.Handle)

	sectorUIDs := NewSectorUIDsTool(store)
	s.AddTool(sectorUIDs.Definition(), sectorUIDs.Handle)
	return s
}
