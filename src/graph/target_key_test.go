package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyTestType(name string) *Type {
	if tt, ok := LookupType(name); ok {
		return tt
	}
	tt := &Type{Name: name, Factory: func(k Key) *Target { return NewTarget(k, DeclExplicit) }}
	RegisterType(tt)
	return tt
}

func TestParseNameExtDisambiguation(t *testing.T) {
	cases := []struct {
		in        string
		name, ext string
		noExt     bool
	}{
		{"foo.cc", "foo", "cc", false},
		{"foo..bar", "foo.bar", "", true},
		{"foo...bar", "foo", "bar", false},
		{"foo...", "foo", "", false},
		{"foo.", "foo", "", true},
		{"foo", "foo", "", false},
	}
	for _, c := range cases {
		name, ext, noExt, err := ParseNameExt(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.name, name, c.in)
		assert.Equal(t, c.ext, ext, c.in)
		assert.Equal(t, c.noExt, noExt, c.in)
	}
}

func TestParseNameExtEmptyIsError(t *testing.T) {
	_, _, _, err := ParseNameExt("")
	assert.Error(t, err)
}

func TestKeyStringRoundTripsThroughParseKey(t *testing.T) {
	tt := keyTestType("graph-test-roundtrip")

	cases := []Key{
		{Type: tt, SrcDir: "src/pkg", OutDir: "src/pkg", Name: "foo", Ext: "cc"},
		{Type: tt, SrcDir: "src/pkg", OutDir: "out/pkg", Name: "foo", Ext: "cc"},
		{Type: tt, Name: "foo.bar", NoExt: true},
		{Type: tt, Name: "foo"},
	}
	for _, k := range cases {
		s := k.String()
		parsed, err := ParseKey(s)
		require.NoError(t, err, s)
		assert.Equal(t, k.Type, parsed.Type, s)
		assert.Equal(t, k.Name, parsed.Name, s)
		assert.Equal(t, k.Ext, parsed.Ext, s)
		assert.Equal(t, k.NoExt, parsed.NoExt, s)
		assert.Equal(t, k.SrcDir, parsed.SrcDir, s)
	}
}

func TestParseKeyExplicitOutSuffix(t *testing.T) {
	tt := keyTestType("graph-test-outsuffix")

	k, err := ParseKey("src/pkg/" + tt.Name + "{foo.cc}@out/pkg")
	require.NoError(t, err)
	assert.Equal(t, "src/pkg", k.SrcDir)
	assert.Equal(t, "out/pkg", k.OutDir)
	assert.Equal(t, "foo", k.Name)
	assert.Equal(t, "cc", k.Ext)
}

func TestParseKeyNoDirectory(t *testing.T) {
	tt := keyTestType("graph-test-nodir")

	k, err := ParseKey(tt.Name + "{foo}")
	require.NoError(t, err)
	assert.Equal(t, "", k.SrcDir)
	assert.Equal(t, "", k.OutDir)
	assert.Equal(t, "foo", k.Name)
}

func TestParseKeyUnknownTypeErrors(t *testing.T) {
	_, err := ParseKey("no-such-graph-test-type{foo}")
	assert.Error(t, err)
}

func TestParseKeyMissingOpenBraceErrors(t *testing.T) {
	tt := keyTestType("graph-test-missing-open")
	_, err := ParseKey(tt.Name + "foo}")
	assert.Error(t, err)
}

func TestParseKeyMissingCloseBraceErrors(t *testing.T) {
	tt := keyTestType("graph-test-missing-close")
	_, err := ParseKey(tt.Name + "{foo")
	assert.Error(t, err)
}

func TestParseKeyUnexpectedTrailingErrors(t *testing.T) {
	tt := keyTestType("graph-test-trailing")
	_, err := ParseKey(tt.Name + "{foo}garbage")
	assert.Error(t, err)
}

func TestParseKeyPropagatesNameExtError(t *testing.T) {
	tt := keyTestType("graph-test-bad-name")
	_, err := ParseKey(tt.Name + "{}")
	assert.Error(t, err)
}
