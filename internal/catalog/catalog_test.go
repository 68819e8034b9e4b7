package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: invoices
    description: billed amounts
    columns:
      - {name: id, type: integer}
      - {name: amount}
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "TABLE invoices (id integer, amount) -- billed amounts\n", c.Render())
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":      `tables: []`,
		"no columns": "tables:\n  - name: t\n",
		"duplicate":  "tables:\n  - {name: t, columns: [{name: a}]}\n  - {name: t, columns: [{name: b}]}\n",
		"bad yaml":   "tables: [",
	} {
		_, err := Parse([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestSearchRanksByOverlap(t *testing.T) {
	c := Default()
	hits := c.Search("is xlsx supported for excel files", 2)
	require.NotEmpty(t, hits)
	assert.Equal(t, "exports", hits[0].Source)
	assert.Empty(t, c.Search("zz", 3))
}
