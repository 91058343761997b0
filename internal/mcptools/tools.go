// Package mcptools exposes read-only lookups over ETF metadata as MCP tools.
//
// Each tool is a struct holding a shared Store, with Definition returning
// the tool schema and Handle serving a call.
package mcptools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/mark3labs/mcp-go/mcp"
)

// Store serialises access to one loaded metadata document. The document's
// parent cache is filled lazily by lookups, so concurrent tool calls must
// not share it unguarded.
type Store struct {
	mu       sync.Mutex
	metadata *etf.Metadata
}

func NewStore(m *etf.Metadata) *Store { return &Store{metadata: m} }

// lock holds the store until the returned func is called.
func (s *Store) lock() (*etf.Metadata, func()) {
	s.mu.Lock()
	return s.metadata, s.mu.Unlock
}

// FindTool handles etf_find.
type FindTool struct {
	store *Store
}

func NewFindTool(s *Store) *FindTool { return &FindTool{store: s} }

func (t *FindTool) Definition() mcp.Tool {
	return mcp.NewTool("etf_find",
		mcp.WithDescription("Find ETF metadata nodes and navigation dimension instances by sector "+
			"alias (energy, lulucf, ...), node uid or node name such as \"1.A. Fuel combustion\"."),
		mcp.WithString("sector",
			mcp.Required(),
			mcp.Description("Sector alias, node uid or node name"),
		),
	)
}

func (t *FindTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, unlock := t.store.lock()
	defer unlock()

	sector := strings.TrimSpace(req.GetString("sector", ""))
	if sector == "" {
		return mcp.NewToolResultError("'sector' is required"), nil
	}
	findings, err := m.Find(sector)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("find failed: %v", err)), nil
	}
	if len(findings) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Nothing matches %q.", sector)), nil
	}
	var b strings.Builder
	for _, f := range findings {
		_, _ = f.WriteTo(&b)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// QueryTool handles etf_query.
type QueryTool struct {
	store *Store
}

func NewQueryTool(s *Store) *QueryTool { return &QueryTool{store: s} }

func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("etf_query",
		mcp.WithDescription("Evaluate a JSONPath expression ($, .child, [n], *, ..) over the ETF "+
			"metadata document. Containers are returned with their document path."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("JSONPath expression, e.g. $.Metadata[0].dimension[*]"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 50)"),
		),
	)
}

func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, unlock := t.store.lock()
	defer unlock()

	expr := req.GetString("path", "")
	if expr == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	limit := intArg(req, "limit", 50)

	matches, err := m.Select(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No matches."), nil
	}

	var b strings.Builder
	for i, n := range matches {
		if i == limit {
			fmt.Fprintf(&b, "... %d more\n", len(matches)-limit)
			break
		}
		text, err := jsontree.Marshal(n, jsontree.EncodeOptions{})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
		}
		if n.IsContainer() {
			fmt.Fprintf(&b, "%s\t%s\n", m.Path(n), text)
		} else {
			fmt.Fprintln(&b, text)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// SectorUIDsTool handles etf_sector_uids.
type SectorUIDsTool struct {
	store *Store
}

func NewSectorUIDsTool(s *Store) *SectorUIDsTool { return &SectorUIDsTool{store: s} }

func (t *SectorUIDsTool) Definition() mcp.Tool {
	return mcp.NewTool("etf_sector_uids",
		mcp.WithDescription("List the metadata uids belonging to a sector: its nodes with their "+
			"nested and enclosing nodes, the variables of those nodes, or its navigation instances."),
		mcp.WithString("sector",
			mcp.Required(),
			mcp.Description("Sector alias, node uid or node name"),
		),
		mcp.WithString("kind",
			mcp.Description("nodes (default), variables or dimension_instances"),
			mcp.Enum("nodes", "variables", "dimension_instances"),
		),
	)
}

func (t *SectorUIDsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, unlock := t.store.lock()
	defer unlock()

	sector := strings.TrimSpace(req.GetString("sector", ""))
	if sector == "" {
		return mcp.NewToolResultError("'sector' is required"), nil
	}
	uids, err := m.CollectSectorUIDs(m.SectorFilter(sector))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("collect failed: %v", err)), nil
	}

	var set jsontree.UIDSet
	switch kind := req.GetString("kind", "nodes"); kind {
	case "nodes":
		set = uids.Nodes
	case "variables":
		set = uids.Variables
	case "dimension_instances":
		set = uids.DimensionInstances
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", kind)), nil
	}
	if len(set) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No uids for %q.", sector)), nil
	}
	return mcp.NewToolResultText(strings.Join(set.Sorted(), "\n") + "\n"), nil
}

// intArg reads a numeric argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok || v < 1 {
		return defaultVal
	}
	return int(v)
}
