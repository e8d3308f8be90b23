package cliengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wippyai/wasm-runtime/runtime"

	"github.com/wacker-dev/wackerd/internal/testfixture"
	"github.com/wacker-dev/wackerd/logsink"
	"github.com/wacker-dev/wackerd/registry"
)

func writeFixture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestResolveCoreEntryPrefersStart(t *testing.T) {
	name, ok := resolveCoreEntry([]runtime.Export{{Name: ""}, {Name: "_start"}})
	require.True(t, ok)
	require.Equal(t, "_start", name)
}

func TestResolveCoreEntryFallsBackToEmpty(t *testing.T) {
	name, ok := resolveCoreEntry([]runtime.Export{{Name: ""}})
	require.True(t, ok)
	require.Equal(t, "", name)
}

func TestResolveCoreEntryNoneFails(t *testing.T) {
	_, ok := resolveCoreEntry([]runtime.Export{{Name: "other"}})
	require.False(t, ok)
}

func TestResolveRunExport(t *testing.T) {
	require.Equal(t, "wasi:cli/run@0.2.3#run", resolveRunExport([]runtime.Export{
		{Name: "other"},
		{Name: "wasi:cli/run@0.2.3#run"},
	}))
	require.Equal(t, "", resolveRunExport([]runtime.Export{{Name: "other"}}))
}

func TestRunCoreModuleSuccess(t *testing.T) {
	path := writeFixture(t, testfixture.CLISuccess())
	log, err := logsink.Open(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	defer log.Close()

	eng := New(nil)
	err = eng.Run(context.Background(), registry.ProgramMeta{Path: path, ProgramType: registry.ProgramCLI}, log)
	require.NoError(t, err)
}

func TestRunCoreModuleTrap(t *testing.T) {
	path := writeFixture(t, testfixture.CLIExitCode())
	log, err := logsink.Open(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	defer log.Close()

	eng := New(nil)
	err = eng.Run(context.Background(), registry.ProgramMeta{Path: path, ProgramType: registry.ProgramCLI}, log)
	require.Error(t, err)
}

func TestRunCoreModuleNoEntry(t *testing.T) {
	path := writeFixture(t, testfixture.NoEntry())
	log, err := logsink.Open(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	defer log.Close()

	eng := New(nil)
	err = eng.Run(context.Background(), registry.ProgramMeta{Path: path, ProgramType: registry.ProgramCLI}, log)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no main function to run")
}
