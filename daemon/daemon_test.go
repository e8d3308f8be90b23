package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wacker-dev/wackerd/client"
	"github.com/wacker-dev/wackerd/paths"
)

func TestRunFailsIfSocketExists(t *testing.T) {
	layout := paths.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	ln, err := net.Listen("unix", layout.SockPath)
	require.NoError(t, err)
	defer ln.Close()

	err = Run(context.Background(), layout, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}

func TestRunServesUntilCancelledAndCleansUpSocket(t *testing.T) {
	layout := paths.NewLayout(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- Run(ctx, layout, zap.NewNop())
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(layout.SockPath)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cl, err := client.Dial(context.Background(), layout.SockPath)
	require.NoError(t, err)
	progs, err := cl.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, progs)

	cancel()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	_, statErr := os.Stat(layout.SockPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunRoundTripsProgramViaClient(t *testing.T) {
	layout := paths.NewLayout(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() {
		runDone <- Run(ctx, layout, zap.NewNop())
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(layout.SockPath)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cl, err := client.Dial(context.Background(), layout.SockPath)
	require.NoError(t, err)

	id, err := cl.Run(context.Background(), filepath.Join("testdata", "hello.wasm"), nil)
	require.NoError(t, err)
	require.Contains(t, id, "hello-")

	require.Eventually(t, func() bool {
		progs, err := cl.List(context.Background())
		return err == nil && len(progs) == 1 && progs[0].ID == id
	}, time.Second, 5*time.Millisecond)
}
