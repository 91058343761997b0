package etf

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countryWithNodes(nodes string) string {
	return fmt.Sprintf(`{"country_specific_data": {"nodes": %s, "variables": []}}`, nodes)
}

func TestNewCountryData(t *testing.T) {
	c := loadCountry(t, rawCountry, quietLogger())
	assert.Equal(t, 4, c.NodeIndex.Len())
	assert.Equal(t, 3, c.VariableIndex.Len())
	require.NotNil(t, c.Inventories)
	assert.Equal(t, 2, c.Inventories.Len())

	t.Run("creates missing lists", func(t *testing.T) {
		c := loadCountry(t, countryWithNodes(`[]`), quietLogger())
		assert.True(t, c.Grids.IsArray())
		assert.True(t, c.LineDescriptions.IsArray())
		assert.Nil(t, c.Inventories)
		assert.Equal(t, []string{"nodes", "variables", "grids", "line_description"}, c.CountryMetadata.Keys())
	})

	t.Run("requires nodes and variables", func(t *testing.T) {
		m := loadMetadata(t, quietLogger())
		for _, src := range []string{
			`{}`,
			`{"country_specific_data": {"variables": []}}`,
			`{"country_specific_data": {"nodes": []}}`,
		} {
			_, err := NewCountryData(parseTree(t, src, quietLogger()), m, WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrMissingSection, src)
		}
	})
}

func TestMakeUID(t *testing.T) {
	hex24 := regexp.MustCompile(`^[0-9a-f]{24}$`)
	seen := jsontree.NewUIDSet()
	for range 100 {
		uid := MakeUID()
		assert.Regexp(t, hex24, uid)
		assert.False(t, IsMetadataUID(uid))
		assert.False(t, seen.Has(uid))
		seen.Add(uid)
	}
	assert.True(t, IsMetadataUID(lulucfUID))
}

func TestGetNodeFallback(t *testing.T) {
	c := loadCountry(t, rawCountry, quietLogger())

	_, ok := c.GetNode(lulucfUID, false)
	assert.False(t, ok)
	n, ok := c.GetNode(lulucfUID, true)
	require.True(t, ok)
	name, _ := n.Str("name")
	assert.Equal(t, "Land use, land-use change and forestry", name)

	_, ok = c.GetGrid(tmplUID, false)
	assert.False(t, ok)
	_, ok = c.GetGrid(tmplUID, true)
	assert.True(t, ok)
	_, ok = c.GetGrid("c1", false)
	assert.True(t, ok)
}

func TestCountryCollectSectorUIDs(t *testing.T) {
	log, buf := captureLogger()
	c := loadCountry(t, rawCountry, log)

	got, err := c.CollectSectorUIDs(c.Metadata.SectorFilter("lulucf"))
	require.NoError(t, err)
	assert.Equal(t, jsontree.NewUIDSet(lulucfUID, lulucfSub, lulucfSub1, "c1", "c2", "c3"), got.Nodes)
	assert.Equal(t, jsontree.NewUIDSet(lulucfVar, "v-c1", "v-c3"), got.Variables)
	assert.Equal(t, jsontree.NewUIDSet(lulucfUID), got.DimensionInstances)
	// c1, c2 and c3 are found one pass after another
	assert.Contains(t, buf.String(), `"pass":3`)

	got, err = c.CollectSectorUIDs(c.Metadata.SectorFilter("energy"))
	require.NoError(t, err)
	assert.Equal(t, jsontree.NewUIDSet(energyUID, "e1"), got.Nodes)
	assert.Equal(t, jsontree.NewUIDSet(energyVar, "v-e1"), got.Variables)
}

func TestFilterOut(t *testing.T) {
	c := loadCountry(t, countryWithNodes(`[
		{"uid": "1", "keep": true},
		{"uid": "2", "keep": false, "node": [{"uid": "2a"}]},
		{"uid": "3", "keep": true}
	]`), quietLogger())
	removed := mustNode(t, c, "2")

	survivors := jsontree.NewUIDSet()
	deleted := c.FilterOut(c.Nodes, func(n *jsontree.Node) bool {
		v, ok := n.Get("keep")
		return ok && v.Text() == "true"
	}, survivors)

	assert.Equal(t, []int{1}, deleted)
	assert.Equal(t, jsontree.NewUIDSet("1", "3"), survivors)
	assert.Equal(t, []string{"1", "3"}, uidsOf(c.Nodes))

	_, ok := c.GetNode("2", false)
	assert.False(t, ok)
	_, ok = c.GetNode("2a", false)
	assert.False(t, ok)
	_, ok = c.CachedParent(removed)
	assert.False(t, ok)
	assert.Equal(t, jsontree.BrokenPath, c.Path(removed))

	t.Run("nothing to delete", func(t *testing.T) {
		deleted := c.FilterOut(c.Nodes, func(*jsontree.Node) bool { return true }, nil)
		assert.Empty(t, deleted)
		assert.Equal(t, []string{"1", "3"}, uidsOf(c.Nodes))
	})

	t.Run("delete everything", func(t *testing.T) {
		deleted := c.FilterOut(c.Nodes, func(*jsontree.Node) bool { return false }, nil)
		assert.Equal(t, []int{0, 1}, deleted)
		assert.Zero(t, c.Nodes.Len())
		assert.Zero(t, c.NodeIndex.Len())
	})
}

func TestFilterSector(t *testing.T) {
	c := loadCountry(t, rawCountry, quietLogger())

	report, err := c.FilterSector("lulucf")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Nodes)
	assert.Equal(t, 1, report.Variables)
	assert.Equal(t, 1, report.Grids)
	assert.Equal(t, 1, report.LineDescriptions)
	assert.Equal(t, []YearCount{{Year: "2020", Removed: 1}, {Year: "2021", Removed: 1}}, report.Values)

	assert.Equal(t, []string{"c3", "c2", "c1"}, uidsOf(c.Nodes))
	assert.Equal(t, []string{"v-c1", "v-c3"}, uidsOf(c.Variables))
	assert.Equal(t, 1, c.Grids.Len())
	assert.Equal(t, 1, c.LineDescriptions.Len())

	_, ok := c.GetNode("e1", false)
	assert.False(t, ok)
	_, ok = c.GetGrid("e1", false)
	assert.False(t, ok)

	y2020, ok := c.Locate(".data.values[0].values")
	require.True(t, ok)
	assert.Equal(t, 2, y2020.Len())
	y2021, ok := c.Locate(".data.values[1].values")
	require.True(t, ok)
	assert.Zero(t, y2021.Len())
}
