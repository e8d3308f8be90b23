// Package daemon wires the supervisor, registry, engines, and RPC server
// into one running process: wackerd's entire bootstrap and shutdown
// sequence lives here so cmd/wackerd/main.go stays a thin signal/flag
// shim.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/wacker-dev/wackerd/cliengine"
	"github.com/wacker-dev/wackerd/httpengine"
	"github.com/wacker-dev/wackerd/paths"
	"github.com/wacker-dev/wackerd/registry"
	"github.com/wacker-dev/wackerd/rpc"
	"github.com/wacker-dev/wackerd/supervisor"
)

// Run executes the daemon's full lifecycle: bootstrap, serve until ctx is
// cancelled, then drain and tear down. It returns a non-nil error only
// for bootstrap failures; a clean shutdown returns nil.
func Run(ctx context.Context, layout paths.Layout, logger *zap.Logger) error {
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	if _, err := os.Stat(layout.SockPath); err == nil {
		return fmt.Errorf("wackerd socket file exists, is wackerd already running?")
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat socket path: %w", err)
	}

	reg, err := registry.Open(layout.DBPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	engines := map[registry.ProgramType]supervisor.Engine{
		registry.ProgramCLI:  cliengine.New(logger),
		registry.ProgramHTTP: httpengine.New(logger),
	}

	sup, err := supervisor.New(ctx, reg, engines, layout.LogsDir, logger)
	if err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	defer sup.Shutdown()

	ln, err := net.Listen("unix", layout.SockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", layout.SockPath, err)
	}
	defer func() {
		if rmErr := os.Remove(layout.SockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("remove socket file", zap.Error(rmErr))
		}
	}()

	srv := rpc.NewServer(ln, sup, logger)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.Serve(ctx)
	}()

	logger.Info("wackerd listening", zap.String("socket", layout.SockPath))

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil {
			logger.Warn("rpc server stopped unexpectedly", zap.Error(err))
		}
	}

	ln.Close()
	srv.Drain()

	if err := reg.Flush(); err != nil {
		logger.Warn("flush registry on shutdown", zap.Error(err))
	}

	return nil
}
