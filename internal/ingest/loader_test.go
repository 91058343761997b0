package ingest

import (
	"bytes"
	"os"
	"testing"

	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{"test_key": "non-ascii: é", "nodes": [{"uid": "a"}]}`

func testLoader(t *testing.T, files map[string][]byte) *Loader {
	t.Helper()
	fs := memfs.New()
	for name, data := range files {
		require.NoError(t, util.WriteFile(fs, name, data, 0o644))
	}
	return NewLoader(fs, nil)
}

func testKey(t *testing.T, tree *jsontree.Tree) string {
	t.Helper()
	v, ok := tree.Root.Str("test_key")
	require.True(t, ok)
	return v
}

func TestLoadUTF8(t *testing.T) {
	l := testLoader(t, map[string][]byte{"data.json": []byte(doc)})
	tree, err := l.Load("data.json")
	require.NoError(t, err)
	assert.Equal(t, "non-ascii: é", testKey(t, tree))
}

func TestLoadWithBOM(t *testing.T) {
	data := append([]byte{0xef, 0xbb, 0xbf}, doc...)
	l := testLoader(t, map[string][]byte{"bom.json": data})
	tree, err := l.Load("bom.json")
	require.NoError(t, err)
	assert.Equal(t, "non-ascii: é", testKey(t, tree))
}

func TestLoadWindows1252(t *testing.T) {
	// é is 0xE9 in Windows-1252 and invalid as a lone UTF-8 byte
	data := []byte("{\"test_key\": \"non-ascii: \xe9\"}")
	l := testLoader(t, map[string][]byte{"cp1252.json": data})
	tree, err := l.Load("cp1252.json")
	require.NoError(t, err)
	assert.Equal(t, "non-ascii: é", testKey(t, tree))
}

func TestLoadCompressed(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll([]byte(doc), nil)
	require.NoError(t, enc.Close())

	l := testLoader(t, map[string][]byte{
		"data.json.gz":  gz.Bytes(),
		"data.json.zst": zst,
	})
	for _, name := range []string{"data.json.gz", "data.json.zst"} {
		t.Run(name, func(t *testing.T) {
			tree, err := l.Load(name)
			require.NoError(t, err)
			assert.Equal(t, "non-ascii: é", testKey(t, tree))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	l := testLoader(t, map[string][]byte{"broken.json": []byte(`{"a": [1, 2}`)})

	_, err := l.Load("broken.json")
	assert.ErrorIs(t, err, jsontree.ErrSyntax)

	_, err = l.Load("missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadStream(t *testing.T) {
	l := NewLoader(memfs.New(), nil)
	tree, err := l.Read(bytes.NewReader([]byte(doc)), "<stdin>")
	require.NoError(t, err)
	assert.Equal(t, ".nodes[0]", tree.Path(mustSelect(t, tree, "$.nodes[0]")))
}

func mustSelect(t *testing.T, tree *jsontree.Tree, expr string) *jsontree.Node {
	t.Helper()
	matches, err := tree.Select(expr)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}
