// Command wackerd is the wacker daemon: it supervises CLI and HTTP wasm
// programs and exposes their lifecycle over a local unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wacker-dev/wackerd/daemon"
	"github.com/wacker-dev/wackerd/paths"
)

func main() {
	var (
		dir = flag.String("dir", "", "override the daemon's root directory (default $HOME/.wacker)")
		dev = flag.Bool("dev", false, "use console-friendly development logging instead of JSON")
	)
	flag.Parse()

	logger, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wackerd: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	layout, err := resolveLayout(*dir)
	if err != nil {
		logger.Error("resolve layout", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, layout, logger); err != nil {
		logger.Error("wackerd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func resolveLayout(dir string) (paths.Layout, error) {
	if dir != "" {
		return paths.NewLayout(dir), nil
	}
	return paths.Default()
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
