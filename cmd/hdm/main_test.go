package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestListCmd(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "  - fs_chunk\n")
	assert.Contains(t, out, "  - snowflake_copy\n")
	assert.Contains(t, out, "Ledger backends:")
	assert.Contains(t, out, "  - sqlite\n")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hdm v"+version)
}

func TestRunCmd_NoManifest(t *testing.T) {
	t.Setenv("HDM_MANIFEST", "")
	_, err := execute(t, "run", "--log-file", filepath.Join(t.TempDir(), "hdm.log"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HDM_MANIFEST")
}

func TestRunCmd_FSToFS(t *testing.T) {
	home := t.TempDir()
	in := filepath.Join(home, "in")
	out := filepath.Join(home, "out")
	require.NoError(t, os.MkdirAll(in, 0o755))
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "hdm_3f2a.csv"), []byte("id,name\n1,a\n2,b\n"), 0o644))

	profiles := filepath.Join(home, ".hashmap_data_migrator", "hdm_profiles.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(profiles), 0o755))
	require.NoError(t, os.WriteFile(profiles, []byte(`dev:
  state_manager:
    database: `+filepath.Join(home, "state")+`
`), 0o644))

	manifest := filepath.Join(home, "fs_to_fs.yml")
	require.NoError(t, os.WriteFile(manifest, []byte(`state_manager:
  connection: state_manager
  dao: sqlite
orchestrator:
  type: declared_orchestrator
declared_data_links:
  stages:
    - source:
        name: landing
        type: fs
        conf:
          directory: `+in+`
      sink:
        name: staged
        type: fs
        conf:
          directory: `+out+`
`), 0o644))

	t.Setenv("HDM_HOME", home)
	t.Setenv("HDM_ENV", "dev")
	logFile := filepath.Join(home, "hdm.log")

	stdout, err := execute(t, "run", manifest, "--log-file", logFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1/1 links succeeded")

	data, err := os.ReadFile(filepath.Join(out, "hdm_3f2a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n2,b\n", string(data))

	stdout, err = execute(t, "ledger", "zombies", manifest, "--log-file", logFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "no rows in progress")
}
