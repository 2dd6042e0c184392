package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// runCommand executes the root command with the given args and returns
// captured stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROGREV_CONFIG_DIR", dir)
	return dir
}

func writeContentFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProgramAndRevisionCommands(t *testing.T) {
	dir := setupConfigDir(t)

	out, err := runCommand(t, "program", "add", "part-1", "--name", "Bracket")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered program part-1")

	file := writeContentFile(t, dir, "prog.nc", "G0 X0\nG1 Z-2\n")
	out, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice", "-m", "first cut")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", gjson.Get(out, "version").String())
	assert.True(t, gjson.Get(out, "is_current").Bool())

	writeContentFile(t, dir, "prog.nc", "G0 X5\nG1 Z-2\n")
	out, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice", "--bump", "minor")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", gjson.Get(out, "version").String())

	out, err = runCommand(t, "revision", "list", "part-1", "--query", "0.version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.1.0")

	out, err = runCommand(t, "revision", "show", "part-1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "first cut", gjson.Get(out, "comment").String())

	out, err = runCommand(t, "revision", "content", "part-1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "G0 X0\nG1 Z-2\n", out)
}

func TestDiffCommand(t *testing.T) {
	dir := setupConfigDir(t)

	_, err := runCommand(t, "program", "add", "part-1")
	require.NoError(t, err)

	file := writeContentFile(t, dir, "prog.nc", "A\nB\nC\n")
	_, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice")
	require.NoError(t, err)
	writeContentFile(t, dir, "prog.nc", "A\nX\nC\n")
	_, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice")
	require.NoError(t, err)

	out, err := runCommand(t, "diff", "part-1", "1.0.0", "1.0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "B -> X")
	assert.Contains(t, out, "0 added, 0 removed, 1 changed, 2 unchanged")

	out, err = runCommand(t, "diff", "part-1", "1.0.0", "1.0.1", "--query", "summary.changed")
	require.NoError(t, err)
	assert.Contains(t, out, "1")
}

func TestRollbackCommand(t *testing.T) {
	dir := setupConfigDir(t)

	_, err := runCommand(t, "program", "add", "part-1")
	require.NoError(t, err)

	file := writeContentFile(t, dir, "prog.nc", "v1\n")
	_, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice")
	require.NoError(t, err)
	writeContentFile(t, dir, "prog.nc", "v2\n")
	_, err = runCommand(t, "revision", "create", "part-1", "--file", file, "--author", "alice")
	require.NoError(t, err)

	out, err := runCommand(t, "rollback", "part-1", "1.0.0", "--author", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back part-1 to 1.0.0")

	// Second rollback to the same target is rejected.
	_, err = runCommand(t, "rollback", "part-1", "1.0.0", "--author", "carol")
	assert.Error(t, err)
}

func TestWorkflowCommands(t *testing.T) {
	setupConfigDir(t)

	_, err := runCommand(t, "program", "add", "part-1")
	require.NoError(t, err)

	out, err := runCommand(t, "workflow", "states", "--query", "#")
	require.NoError(t, err)
	assert.Contains(t, out, "6")

	out, err = runCommand(t, "workflow", "transitions", "program", "part-1", "--query", "current_state")
	require.NoError(t, err)
	assert.Contains(t, out, "draft")

	out, err = runCommand(t, "workflow", "change", "program", "part-1", "review", "--by", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "program/part-1 is now review")

	// Rejection without a reason is refused.
	_, err = runCommand(t, "workflow", "change", "program", "part-1", "rejected", "--by", "bob")
	assert.Error(t, err)

	out, err = runCommand(t, "workflow", "change", "program", "part-1", "rejected", "--by", "bob", "-r", "wrong fixture")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")

	out, err = runCommand(t, "workflow", "history", "program", "part-1", "--query", "0.to_state")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
}

func TestValidateCommand(t *testing.T) {
	dir := setupConfigDir(t)

	good := writeContentFile(t, dir, "wf.yaml", `
version: "1"
initial: open
states:
  - code: open
  - code: closed
    terminal: true
transitions:
  - from: open
    to: closed
`)
	out, err := runCommand(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := writeContentFile(t, dir, "bad.yaml", "version: \"1\"\ninitial: ghost\nstates:\n  - code: open\n")
	_, err = runCommand(t, "validate", bad)
	assert.Error(t, err)
}

func TestCustomWorkflowDefinitionIsLoaded(t *testing.T) {
	dir := setupConfigDir(t)

	writeContentFile(t, dir, definitionFile, `
version: "1"
initial: pending
states:
  - code: pending
  - code: done
    terminal: true
transitions:
  - from: pending
    to: done
`)

	_, err := runCommand(t, "program", "add", "part-1")
	require.NoError(t, err)

	out, err := runCommand(t, "workflow", "transitions", "program", "part-1", "--query", "current_state")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
}
