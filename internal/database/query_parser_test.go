package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNamedQueries(t *testing.T) {
	content := `
-- Lead-in comment that belongs to no query.

-- name: First
SELECT 1

-- name: Second
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR PRIMARY KEY
)
`
	queries := parseNamedQueries(content)
	require.Len(t, queries, 2)
	assert.Equal(t, "SELECT 1", queries["First"])
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS %s (\nid VARCHAR PRIMARY KEY\n)", queries["Second"])
}

func TestParseNamedQueries_SkipsComments(t *testing.T) {
	content := `
-- name: WithComment
SELECT a
-- trailing comment inside the query
FROM b
`
	queries := parseNamedQueries(content)
	require.Len(t, queries, 1)
	assert.Equal(t, "SELECT a\nFROM b", queries["WithComment"])
}

func TestParseNamedQueries_Empty(t *testing.T) {
	assert.Empty(t, parseNamedQueries("-- just a comment\n"))
}

func TestEmbeddedQueriesLoad(t *testing.T) {
	db, _, err := newMockDB(t)
	require.NoError(t, err)
	defer db.Close()

	for _, name := range []string{
		"EnsureDataset",
		"EnsureViewRegistry",
		"GetRegisteredViewSQL",
		"UpsertRegisteredView",
		"DeleteRegisteredView",
		"CountView",
		"CreateOrReplaceView",
		"DropView",
		"EnsureChangelogTable",
		"AppendChangelogRow",
	} {
		_, err := db.GetQuery(name)
		assert.NoError(t, err, name)
	}
}
