//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legalpub/internal/config"
	"github.com/sells-group/legalpub/internal/model"
)

const fixtureYAML = `
- external_id: pub-1
  process_number: 0001234-56.2024.8.26.0100
  published_at: 2024-03-01T10:00:00Z
  court: TJSP
  content: Intimação da parte autora
- external_id: pub-2
  process_number: 0001234-56.2024.8.26.0100
  court: TJSP
  content: Segunda intimação
- external_id: pub-3
  process_number: 0009999-11.2023.8.26.0001
  content: Despacho
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPublications_YAMLList(t *testing.T) {
	pubs, err := loadPublications(writeFixture(t, "pubs.yaml", fixtureYAML))
	require.NoError(t, err)
	require.Len(t, pubs, 3)

	assert.Equal(t, "pub-1", pubs[0].ExternalID)
	assert.Equal(t, "TJSP", pubs[0].Court)
	require.NotNil(t, pubs[0].PublishedAt)
	assert.Equal(t, 2024, pubs[0].PublishedAt.Year())
	assert.Nil(t, pubs[1].PublishedAt)
}

func TestLoadPublications_JSONWrapped(t *testing.T) {
	doc := `{"publications": [{"process_number": "123", "content": "x"}]}`

	pubs, err := loadPublications(writeFixture(t, "pubs.json", doc))
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "123", pubs[0].ProcessNumber)
}

func TestLoadPublications_EmptyFile(t *testing.T) {
	pubs, err := loadPublications(writeFixture(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.NotNil(t, pubs)
	assert.Empty(t, pubs)
}

func TestLoadPublications_Errors(t *testing.T) {
	_, err := loadPublications(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")

	_, err = loadPublications(writeFixture(t, "bad.yaml", "publications: {not: [a list"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func setIngestFlags(t *testing.T, values map[string]string) {
	t.Helper()
	for name, v := range values {
		require.NoError(t, ingestCmd.Flags().Set(name, v))
	}
	t.Cleanup(func() {
		for name := range values {
			f := ingestCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func TestIngestCommand_FromFilePersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ingest.db")
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath},
	}

	setIngestFlags(t, map[string]string{
		"oab":       "123456",
		"uf":        "sp",
		"name":      "Maria Souza",
		"persist":   "true",
		"from-file": writeFixture(t, "pubs.yaml", fixtureYAML),
	})

	var out bytes.Buffer
	ingestCmd.SetOut(&out)
	ingestCmd.SetContext(context.Background())
	t.Cleanup(func() { ingestCmd.SetOut(nil) })

	require.NoError(t, ingestCmd.RunE(ingestCmd, nil))

	var result model.SyncResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "SP", result.Lawyer.UF)
	assert.NotEmpty(t, result.Lawyer.ID)
	assert.Equal(t, 3, result.Stats.TotalPublications)
	assert.Equal(t, 2, result.Stats.TotalProcesses)
	assert.False(t, result.Stats.EnrichmentUsed)
	for _, p := range result.Processes {
		assert.Equal(t, model.EnrichmentSkipped, p.EnrichmentStatus)
	}
}

func TestIngestCommand_InvalidUF(t *testing.T) {
	cfg = &config.Config{}

	setIngestFlags(t, map[string]string{
		"oab":       "123456",
		"uf":        " ",
		"from-file": writeFixture(t, "pubs.yaml", fixtureYAML),
	})
	ingestCmd.SetContext(context.Background())

	err := ingestCmd.RunE(ingestCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request")
}
