package etf

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/stretchr/testify/require"
)

const (
	energyUID  = "3665c27e-d055-47d7-8393-5f934f3ced9d"
	lulucfUID  = "db7b9be0-76bc-497e-a4ee-9334ec2429d2"
	agriUID    = "43bc1534-201c-416b-a348-e5866d69dddb"
	wasteUID   = "b1e41219-79a2-493d-ba97-de0e4d7f9d0f"
	lulucfVar  = "de6fab87-82f6-46d5-b8f5-73190d8e4ace"
	energyVar  = "0c4e9a8e-6f0a-4f43-9d61-8e2f0f0c1a01"
	tmplUID    = "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004"
	lulucfSub  = "5e0bd8c1-2d6c-4b8e-8f43-1c9e0a7a3b11"
	lulucfSub1 = "5e0bd8c1-2d6c-4b8e-8f43-1c9e0a7a3b12"
)

const rawMetadata = `{
    "Metadata": [
        {
            "version": {"name": "ETF test metadata", "version": "1.0.test", "publication_date": "2026-01-01"},
            "node": [
                {"uid": "3665c27e-d055-47d7-8393-5f934f3ced9d", "name_prefix": "1.", "name": "Energy", "template_node_uid": null},
                {"uid": "fed65b84-cdad-4e38-8848-ea6af3c391bc", "name_prefix": "2.", "name": "Industrial processes and product use", "template_node_uid": null, "node": []},
                {"uid": "43bc1534-201c-416b-a348-e5866d69dddb", "name_prefix": "3.", "name": "Agriculture", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0001", "node": []},
                {"uid": "db7b9be0-76bc-497e-a4ee-9334ec2429d2", "name_prefix": "4.", "name": "Land use, land-use change and forestry", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0002",
                 "node": [{"uid": "5e0bd8c1-2d6c-4b8e-8f43-1c9e0a7a3b11", "node": [{"uid": "5e0bd8c1-2d6c-4b8e-8f43-1c9e0a7a3b12"}]}]},
                {"uid": "b1e41219-79a2-493d-ba97-de0e4d7f9d0f", "name_prefix": "5.", "name": "Waste", "parent_uid": null, "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0003", "node": []}
            ],
            "dimension": [
                {"id": 1, "name": "NAVIGATION"}
            ],
            "dimension_instance": [
                {"dimension_id": 1, "id": 301, "uid": "db7b9be0-76bc-497e-a4ee-9334ec2429d2",
                 "name": "4. Land use, land-use change and forestry", "children": []}
            ],
            "grid": [
                {"node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004", "group": [
                    {"uid": "tg-1", "variable_uid": "tv-1"},
                    {"uid": "tg-2", "variable_uid": "tv-2"},
                    {"uid": "tg-3"}
                ]}
            ],
            "variable": [
                {"id": 483, "uid": "de6fab87-82f6-46d5-b8f5-73190d8e4ace", "node_uid": "db7b9be0-76bc-497e-a4ee-9334ec2429d2",
                 "name": "[4. Land use, land-use change and forestry][no classification][Emissions][CO₂][no parameter][kt]",
                 "is_calculated": true, "dimension_to_change": []},
                {"id": 484, "uid": "0c4e9a8e-6f0a-4f43-9d61-8e2f0f0c1a01", "node_uid": "3665c27e-d055-47d7-8393-5f934f3ced9d"}
            ]
        }
    ]
}`

// rawCountry hangs a three level chain of country nodes below LULUCF. The
// chain is listed deepest first, so the sector closure needs several passes.
const rawCountry = `{
    "country_specific_data": {
        "nodes": [
            {"uid": "c3", "parent_uid": "c2", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004", "name": "Level 3"},
            {"uid": "c2", "parent_uid": "c1", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004", "name": "Level 2"},
            {"uid": "c1", "parent_uid": "db7b9be0-76bc-497e-a4ee-9334ec2429d2", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004", "name": "Level 1"},
            {"uid": "e1", "parent_uid": "3665c27e-d055-47d7-8393-5f934f3ced9d", "template_node_uid": "9a1f0a9e-1c55-4c1e-9a55-2f1b2a0c0004", "name": "Energy extra"}
        ],
        "variables": [
            {"uid": "v-c1", "node_uid": "c1", "template_var_uid": "tv-1"},
            {"uid": "v-c3", "node_uid": "c3", "template_var_uid": "tv-2"},
            {"uid": "v-e1", "node_uid": "e1", "template_var_uid": "tv-1"}
        ],
        "grids": [
            {"node_uid": "c1", "group": [{"uid": "g-c1", "variable_uid": "v-c1"}]},
            {"node_uid": "e1", "group": [{"uid": "g-e1", "variable_uid": "v-e1"}]}
        ],
        "line_description": [
            {"variable_uid": "v-c1", "text": "kept"},
            {"variable_uid": "v-e1", "text": "dropped"}
        ]
    },
    "data": {
        "values": [
            {"inventory_year": 2020, "values": [
                {"variable_uid": "de6fab87-82f6-46d5-b8f5-73190d8e4ace", "value": 1.5},
                {"variable_uid": "0c4e9a8e-6f0a-4f43-9d61-8e2f0f0c1a01", "value": 2},
                {"variable_uid": "v-c3", "value": 3}
            ]},
            {"inventory_year": 2021, "values": [
                {"variable_uid": "v-e1", "value": 4}
            ]}
        ]
    }
}`

func parseTree(t *testing.T, src string, log *slog.Logger) *jsontree.Tree {
	t.Helper()
	root, err := jsontree.Parse([]byte(src))
	require.NoError(t, err)
	return jsontree.New(root, jsontree.WithLogger(log))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureLogger records JSON log lines at debug level and above.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func loadMetadata(t *testing.T, log *slog.Logger) *Metadata {
	t.Helper()
	m, err := NewMetadata(parseTree(t, rawMetadata, log), WithLogger(log))
	require.NoError(t, err)
	return m
}

func loadCountry(t *testing.T, src string, log *slog.Logger) *CountryData {
	t.Helper()
	c, err := NewCountryData(parseTree(t, src, log), loadMetadata(t, log), WithLogger(log))
	require.NoError(t, err)
	return c
}

func uidsOf(list *jsontree.Node) []string {
	var out []string
	for _, item := range list.Items() {
		out = append(out, uidOf(item))
	}
	return out
}

func mustNode(t *testing.T, c *CountryData, uid string) *jsontree.Node {
	t.Helper()
	n, ok := c.GetNode(uid, false)
	require.True(t, ok, "node %s", uid)
	return n
}
