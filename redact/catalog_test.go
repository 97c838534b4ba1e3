package redact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfscrub/ir/raw"
)

const sampleCatalog = `
descend: false
keys: [Author, Producer]
conditional:
  - {match: Subtype, value: Link, key: Border}
paired:
  - [URI, S]
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	assert.False(t, c.Descend())
	assert.Equal(t, []string{"Author", "Producer"}, c.Keys())

	rules := c.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, KeyRule{Keys: []string{"Author", "Producer"}}, rules[0])
	assert.Equal(t, PairedRule{First: "URI", Second: "S"}, rules[1])
	assert.Equal(t, ConditionalRule{Match: "Subtype", Value: "Link", Key: "Border"}, rules[2])

	link := raw.Dict()
	link.Set("Subtype", raw.NameLiteral("Link"))
	link.Set("Border", raw.NewArray())
	doc := raw.NewDocument()
	doc.Objects[raw.ObjectRef{Num: 1}] = link
	doc.Trailer.Set("Size", raw.NumberInt(2))
	got := New(Config{Catalog: c}).Redact(doc)
	require.Len(t, got, 1)
	assert.Equal(t, "Subtype=Link", got[0].Rule)
}

func TestParseCatalogDefaultsToDescend(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader("keys: [Author]\n"))
	require.NoError(t, err)
	assert.True(t, c.Descend())
}

func TestParseCatalogValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want error
	}{
		{"empty key", "keys: [Author, '']\n", ErrEmptyKey},
		{"bad match", "conditional:\n  - {match: Kind, value: X, key: Y}\n", ErrBadMatch},
		{"missing value", "conditional:\n  - {match: Type, key: Y}\n", ErrEmptyKey},
		{"short pair", "paired:\n  - [JS]\n", ErrBadPair},
		{"no rules", "descend: true\n", ErrEmptyCatalog},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(tc.yaml))
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseCatalogRejectsUnknownFields(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("keyz: [Author]\n"))
	require.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.Rules(), 3)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("paired: [[A]]\n"), 0o644))
	_, err = LoadCatalog(bad)
	assert.ErrorIs(t, err, ErrBadPair)
	assert.Contains(t, err.Error(), bad)
}

func TestCatalogAccessorsReturnCopies(t *testing.T) {
	c := DefaultCatalog()
	keys := c.Keys()
	keys[0] = "Changed"
	assert.Equal(t, "AcroForm", c.Keys()[0])
}
