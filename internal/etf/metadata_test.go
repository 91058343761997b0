package etf

import (
	"testing"

	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetadata(t *testing.T) {
	log, buf := captureLogger()
	m := loadMetadata(t, log)

	assert.Equal(t, 5, m.Nodes.Len())
	assert.Equal(t, 7, m.NodeIndex.Len())
	assert.Equal(t, 1, m.DimensionInstanceIndex.Len())
	assert.Equal(t, 1, m.GridIndex.Len())
	require.NotNil(t, m.NavigationRoot)
	assert.Equal(t, lulucfUID, uidOf(m.NavigationRoot))
	assert.Contains(t, buf.String(), "1.0.test")

	lulucf, ok := m.GetNode(lulucfUID)
	require.True(t, ok)
	assert.Equal(t, ".Metadata[0].node[3]", m.Path(lulucf))

	_, ok = m.GetNode("missing")
	assert.False(t, ok)
	_, ok = m.GetGrid(tmplUID)
	assert.True(t, ok)
}

func TestNewMetadataMissingSection(t *testing.T) {
	for name, src := range map[string]string{
		"no metadata":  `{"data": {}}`,
		"empty list":   `{"Metadata": []}`,
		"no variables": `{"Metadata": [{"node": [], "grid": [], "dimension": [], "dimension_instance": []}]}`,
		"wrong kind":   `{"Metadata": [{"node": {}, "variable": [], "grid": [], "dimension": [], "dimension_instance": []}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewMetadata(parseTree(t, src, quietLogger()), WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrMissingSection)
		})
	}
}

func TestMetadataWithoutNavigation(t *testing.T) {
	log, buf := captureLogger()
	src := `{"Metadata": [{"node": [{"uid": "a", "name": "A"}], "variable": [], "grid": [],
		"dimension": [{"id": 2, "name": "OTHER"}], "dimension_instance": [{"dimension_id": 2, "uid": "x"}]}]}`
	m, err := NewMetadata(parseTree(t, src, log), WithLogger(log))
	require.NoError(t, err)
	assert.Nil(t, m.NavigationRoot)
	assert.Zero(t, m.DimensionInstanceIndex.Len())
	assert.Contains(t, buf.String(), "no navigation dimension instance")

	dis, err := m.FindNavigationDIs(catalog.Criteria{"uid": catalog.String("x")})
	require.NoError(t, err)
	assert.Empty(t, dis)
}

func TestSectorFilter(t *testing.T) {
	m := loadMetadata(t, quietLogger())

	assert.Equal(t, catalog.Criteria{"uid": catalog.String(wasteUID)}, m.SectorFilter(wasteUID))
	assert.Equal(t, catalog.Criteria{"uid": catalog.String(lulucfUID)}, m.SectorFilter("LULUCF"))
	assert.Equal(t, catalog.Criteria{"uid": catalog.String(energyUID)}, m.SectorFilter("energy"))
	assert.Equal(t, catalog.Criteria{"name": catalog.String("Agriculture")}, m.SectorFilter("Agriculture"))

	// a version 1 UUID is taken as a name
	v1 := "9a1f0a9e-1c55-11ee-9a55-2f1b2a0c0004"
	assert.Equal(t, catalog.Criteria{"name": catalog.String(v1)}, m.SectorFilter(v1))
}

func TestFindNodes(t *testing.T) {
	m := loadMetadata(t, quietLogger())

	nodes, err := m.FindNodes(catalog.Criteria{"name": catalog.String("4. Land use, land-use change and forestry")})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, lulucfUID, uidOf(nodes[0]))

	nodes, err = m.FindNodes(catalog.Criteria{"name": catalog.String("Agriculture")})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, agriUID, uidOf(nodes[0]))

	// the prefix must match as well
	nodes, err = m.FindNodes(catalog.Criteria{"name": catalog.String("9. Agriculture")})
	require.NoError(t, err)
	assert.Empty(t, nodes)

	nodes, err = m.FindNodes(catalog.Criteria{"template_node_uid": catalog.Null})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	_, err = m.FindNodes(catalog.Criteria{"colour": catalog.String("red")})
	assert.ErrorIs(t, err, catalog.ErrUnknownAttribute)
}

func TestCollectSectorUIDs(t *testing.T) {
	m := loadMetadata(t, quietLogger())
	want := &SectorUIDs{
		Nodes:              jsontree.NewUIDSet(lulucfUID, lulucfSub, lulucfSub1),
		Variables:          jsontree.NewUIDSet(lulucfVar),
		DimensionInstances: jsontree.NewUIDSet(lulucfUID),
	}

	got, err := m.CollectSectorUIDs(m.SectorFilter("lulucf"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("by name", func(t *testing.T) {
		got, err := m.CollectSectorUIDs(m.SectorFilter("4. Land use, land-use change and forestry"))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("sees later additions", func(t *testing.T) {
		agri, ok := m.GetNode(agriUID)
		require.True(t, ok)
		children, ok := agri.Get("node")
		require.True(t, ok)
		children.Append(jsontree.NewObject().SetString("uid", "late"))

		got, err := m.CollectSectorUIDs(m.SectorFilter("agriculture"))
		require.NoError(t, err)
		assert.Equal(t, []string{agriUID, "late"}, got.Nodes.Sorted())
		assert.Empty(t, got.Variables)
		assert.Empty(t, got.DimensionInstances)
	})
}
