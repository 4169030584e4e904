package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/core"
)

// run executes the CLI with fresh flag values.
func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func listIDs(t *testing.T, dir string) []core.Specification {
	t.Helper()
	out, err := run(t, nil, "list", "-C", dir, "--json")
	require.NoError(t, err)
	var specs []core.Specification
	require.NoError(t, json.Unmarshal([]byte(out), &specs))
	return specs
}

func TestCLI_Workflow(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, nil, "init", "-C", dir, "--name", "Brew")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized brewing project")
	assert.DirExists(t, filepath.Join(dir, ".brewing", "features"))

	out, err = run(t, nil, "project", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "name:      Brew")
	assert.Contains(t, out, "onboarded: false")

	_, err = run(t, nil, "project", "onboard", "-C", dir, "Brew")
	require.NoError(t, err)

	out, err = run(t, nil, "new", "-C", dir, "--emoji", "🔐", "Login flow")
	require.NoError(t, err)
	assert.Contains(t, out, "🔐 Login flow")

	specs := listIDs(t, dir)
	require.Len(t, specs, 1)
	id := specs[0].ID

	_, err = run(t, nil, "rename", "-C", dir, id[:8], "Sign", "in")
	require.NoError(t, err)

	out, err = run(t, strings.NewReader("# Sign in\nUsers authenticate.\n"), "edit", "-C", dir, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved draft_content")

	out, err = run(t, nil, "show", "-C", dir, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Sign in (draft)")
	assert.Contains(t, out, "Users authenticate.")

	_, err = run(t, nil, "publish", "-C", dir, id)
	require.NoError(t, err)

	specs = listIDs(t, dir)
	require.Len(t, specs, 1)
	assert.Equal(t, "Sign in", specs[0].Name)
	assert.Equal(t, "# Sign in\nUsers authenticate.\n", core.StringValue(specs[0].Content))
	assert.NotNil(t, specs[0].DatePublished)

	out, err = run(t, nil, "list", "-C", dir, "--drafts")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, nil, "delete", "-C", dir, id)
	require.NoError(t, err)
	assert.Empty(t, listIDs(t, dir))

	_, err = run(t, nil, "delete", "-C", dir, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCLI_Create(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, nil, "create", "-C", dir, "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "Your project was created")

	data, err := os.ReadFile(filepath.Join(dir, "shop", ".brewing", "project.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"shop"`)

	_, err = run(t, nil, "create", "-C", dir, "shop")
	assert.ErrorContains(t, err, "already exists")
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, nil, "init", "-C", dir)
	require.NoError(t, err)

	_, err = run(t, nil, "list", "-C", dir, "--sort", "size")
	assert.ErrorContains(t, err, "unknown sort key")

	_, err = run(t, nil, "show", "-C", dir, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = run(t, nil, "history", "-C", dir)
	assert.Error(t, err)

	out, err := run(t, nil, "health", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "fs: healthy (0 specifications)")

	out, err = run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "brewing version")
}
