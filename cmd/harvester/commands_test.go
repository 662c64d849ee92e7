package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - id: 7
    name: Portal
    key: portal_main
    url: https://portal.example.pl/
    strategy: main_news
    period: 10m
    status: active
`), 0o644))
	t.Setenv("SOURCES_CONFIG_PATH", path)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"sources"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "portal_main")
	assert.Contains(t, out.String(), "main_news")
	assert.Contains(t, out.String(), "10m0s")
}

func TestOnceCommand_RequiresSource(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"once"})
	require.Error(t, root.Execute())
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]int{"status_New": 2, "total_items": 5, "last_24h": 1, "source_main": 5})
	assert.Equal(t, []string{"total_items", "last_24h", "source_main", "status_New"}, got)
}

func TestEllipsize(t *testing.T) {
	assert.Equal(t, "Коротко", ellipsize("Коротко", 10))
	assert.Equal(t, "Довгий з…", ellipsize("Довгий заголовок", 9))
}
