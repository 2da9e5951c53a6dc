package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagdrop/internal/infra"
)

func TestExtractTables_RepoMigrations(t *testing.T) {
	dir, err := infra.FindMigrations()
	require.NoError(t, err)

	tables, err := extractTables(dir)
	require.NoError(t, err)
	assert.Subset(t, tables, []string{"profiles", "contracts", "contract_status_events", "pricing", "push_tokens", "location_snapshots"})
}

func TestExtractTables_Ordered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_b.sql"), []byte("create table if not exists beta (id int);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("CREATE TABLE IF NOT EXISTS alpha (id int);\nCREATE INDEX x ON alpha(id);"), 0o600))

	tables, err := extractTables(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, tables)
}

func TestRunAll_WithoutBackends(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{}
	results := r.RunAll(context.Background(), &out, checkCases())

	pass, fail, skip := summarize(results)
	assert.Equal(t, 0, pass)
	assert.Equal(t, 2, fail)
	assert.Equal(t, 3, skip)
	assert.Contains(t, out.String(), "FAIL  Postgres connect")
	assert.Contains(t, out.String(), "db not configured")
}

func TestProfileCommandsAreRegistered(t *testing.T) {
	cmd := ProfileCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"set-status", "set-verification", "set-role"}, names)
}
