package jsontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsOrderAndLiterals(t *testing.T) {
	root, err := Parse([]byte(`{"z": 1.50, "a": [true, null, "x"], "m": {"k": -2e3}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, root.Keys())
	z, _ := root.Get("z")
	assert.Equal(t, Number, z.Kind())
	assert.Equal(t, "1.50", z.Text())

	a, _ := root.Get("a")
	require.Equal(t, 3, a.Len())
	first, _ := a.Index(0)
	assert.Equal(t, Bool, first.Kind())
	second, _ := a.Index(1)
	assert.True(t, second.IsNull())

	m, _ := root.Get("m")
	k, _ := m.Get("k")
	assert.Equal(t, "-2e3", k.Text())
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`[1, 2`,
		`{"a" 1}`,
		`{"a":1} garbage`,
		`{"a":1}{"b":2}`,
		`{"a":1,}`,
		`[1, 2,]`,
		`{"a": [1,], "b": 2}`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseAllowsSurroundingWhitespace(t *testing.T) {
	root, err := Parse([]byte("\n  {\"a\": 1}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, root.Keys())
}

func TestParseUnescapes(t *testing.T) {
	root, err := Parse([]byte(`{"name": "CO₂ \"total\"", "tab\tkey": "a\\b"}`))
	require.NoError(t, err)
	name, ok := root.Str("name")
	require.True(t, ok)
	assert.Equal(t, "CO₂ \"total\"", name)
	v, ok := root.Str("tab\tkey")
	require.True(t, ok)
	assert.Equal(t, `a\b`, v)
}

func TestEncodeIndented(t *testing.T) {
	src := `{
    "uid": "a",
    "values": [
        1,
        2.5,
        null
    ],
    "empty_list": [],
    "empty_object": {},
    "nested": {
        "flag": false,
        "name": "CO\u2082"
    }
}`
	root, err := Parse([]byte(src))
	require.NoError(t, err)
	out, err := Marshal(root, DefaultEncodeOptions)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestEncodeCompactUTF8(t *testing.T) {
	root := NewObject().
		SetString("name", "CO₂ 😀").
		Set("n", NewInt(3)).
		Set("list", NewArray(NewBool(true), NewNull()))
	out, err := Marshal(root, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"CO₂ 😀","n":3,"list":[true,null]}`, out)

	ascii, err := Marshal(root, EncodeOptions{ASCII: true})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"CO\u2082 \ud83d\ude00","n":3,"list":[true,null]}`, ascii)
}

func TestEncodeEscapesControl(t *testing.T) {
	out, err := Marshal(NewString("a\"b\\c\n\x01"), EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n\u0001"`, out)
}

func TestEncodeMalformed(t *testing.T) {
	_, err := Marshal(NewArray(&Node{}), EncodeOptions{})
	assert.ErrorIs(t, err, ErrMalformedContainer)
}

func TestCloneMintsHandles(t *testing.T) {
	group := NewObject().SetString("uid", "g1")
	src := NewObject().Set("group", NewArray(group))

	dst := src.Clone()
	out, err := Marshal(dst, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"group":[{"uid":"g1"}]}`, out)

	groups, _ := dst.Get("group")
	cloned, _ := groups.Index(0)
	assert.NotSame(t, group, cloned)
	assert.NotEqual(t, group.Handle(), cloned.Handle())
	assert.NotEqual(t, src.Handle(), dst.Handle())
}

func TestSetKeepsPosition(t *testing.T) {
	obj := NewObject().SetString("a", "1").SetString("b", "2")
	obj.SetString("a", "3").SetString("c", "4")
	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())

	_, ok := obj.Delete("b")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, obj.Keys())
}

func TestRemoveAt(t *testing.T) {
	arr := NewArray(NewInt(1), NewInt(2), NewInt(3))
	removed := arr.RemoveAt(1)
	assert.Equal(t, "2", removed.Text())
	out, err := Marshal(arr, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `[1,3]`, out)
}
