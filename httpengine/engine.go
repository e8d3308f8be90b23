// Package httpengine hosts a wasm component implementing the WASI HTTP
// incoming-handler interface behind a real TCP listener, dispatching each
// connection to a fresh per-request instance.
//
// Grounded on wasi/preview2/http/types.go's TypesHost, whose incoming-request
// and response-outparam methods already ignore their resource-handle
// argument and thread state through SetRequest/GetResponse instead — the
// "simple handler pattern" its own comments describe. httpengine builds on
// that simplification rather than threading real resource-table handles
// through the component ABI for every request.
package httpengine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-runtime/runtime"
	"github.com/wippyai/wasm-runtime/wasi/preview2"
	wasihttp "github.com/wippyai/wasm-runtime/wasi/preview2/http"

	"github.com/wacker-dev/wackerd/fuel"
	"github.com/wacker-dev/wackerd/logsink"
	"github.com/wacker-dev/wackerd/registry"
	"github.com/wacker-dev/wackerd/wasiartifact"
	"github.com/wacker-dev/wackerd/wasihost"
)

// incomingHandlerExport is the export name command-world HTTP proxy
// components expose their handler under.
const incomingHandlerExport = "wasi:http/incoming-handler@0.2.8#handle"

// Engine hosts HTTP component proxies. The daemon shares one Engine across
// every HTTP program; each Run call builds that program's compiled module,
// WASI hosts, and listener once and reuses them for every request.
type Engine struct {
	meter  *fuel.Meter
	logger *zap.Logger

	// mu serializes request handling: the component's environment host and
	// HTTP types host are shared across all instances of this program's
	// module (host functions bind once per Module, not per Instance), so
	// only one request may mutate REQUEST_ID / currentRequest at a time.
	// It also guards stdoutN/stderrN, the byte offsets already flushed from
	// wasi's accumulated stdout/stderr buffers to the log file.
	mu               sync.Mutex
	stdoutN, stderrN int
}

// New creates an HTTP engine sharing the specification's 10,000-call
// cooperative yield interval, logging with the given logger.
func New(logger *zap.Logger) *Engine {
	return &Engine{meter: fuel.NewMeter(fuel.DefaultInterval), logger: logger}
}

// Run compiles the component at meta.Path once, binds meta.Addr, and
// serves incoming requests until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, meta registry.ProgramMeta, log *logsink.LogFile) error {
	ctx = e.meter.WithListener(ctx)

	data, err := wasiartifact.Load(ctx, meta.Path)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	if wasiartifact.Classify(data) != wasiartifact.KindComponent {
		return fmt.Errorf("http engine requires a wasm component")
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	out := log.Clone()

	wasi := preview2.New()
	defer wasi.Close()

	if err := wasihost.RegisterAll(rt, wasi); err != nil {
		return fmt.Errorf("register wasi: %w", err)
	}
	envHost := wasihost.NewEnvironmentHost(nil, nil, "/")
	if err := rt.RegisterHost(envHost); err != nil {
		return fmt.Errorf("register environment host: %w", err)
	}
	typesHost := wasihttp.NewTypesHost(wasi.Resources())
	if err := rt.RegisterHost(typesHost); err != nil {
		return fmt.Errorf("register http types host: %w", err)
	}

	mod, err := rt.LoadComponent(ctx, data)
	if err != nil {
		return fmt.Errorf("load component: %w", err)
	}
	if err := mod.Compile(ctx); err != nil {
		return fmt.Errorf("compile component: %w", err)
	}

	ln, err := net.Listen("tcp", meta.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", meta.Addr, err)
	}
	defer ln.Close()

	fmt.Fprintf(out, "Serving HTTP on http://%s/\n", meta.Addr)

	var reqID atomic.Uint64

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := reqID.Add(1)
			fmt.Fprintf(out, "Request %d handling %s to %s\n", id, r.Method, r.URL.RequestURI())
			if err := e.handle(ctx, mod, wasi, envHost, typesHost, out, id, w, r); err != nil {
				fmt.Fprintf(out, "serve error: %v\n", err)
				if e.logger != nil {
					e.logger.Warn("http engine request failed", zap.Uint64("req_id", id), zap.Error(err))
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (e *Engine) handle(ctx context.Context, mod *runtime.Module, wasi *preview2.WASI, envHost *wasihost.EnvironmentHost, typesHost *wasihttp.TypesHost, out io.Writer, reqID uint64, w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err := normalizeURI(r); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.flushWASIOutput(wasi, out)

	envHost.SetVar("REQUEST_ID", strconv.FormatUint(reqID, 10))
	typesHost.SetRequest(&wasihttp.Request{Request: r, Body: body})
	defer typesHost.Reset()

	inst, err := mod.InstantiateWithAsyncify(ctx)
	if err != nil {
		return fmt.Errorf("instantiate component: %w", err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, incomingHandlerExport, uint32(1), uint32(1)); err != nil {
		return fmt.Errorf("call incoming-handler error: %w", err)
	}

	resp := typesHost.GetResponse()
	if resp == nil {
		return fmt.Errorf("guest never invoked response-outparam::set")
	}

	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(int(status))
	_, err = w.Write(resp.Body)
	return err
}

// flushWASIOutput writes the bytes appended to wasi's stdout/stderr buffers
// since the last call to out, and must be called with e.mu held: wasi's
// stdout/stderr accumulate across every request this program ever serves,
// so only the newly-written suffix is flushed each time.
func (e *Engine) flushWASIOutput(wasi *preview2.WASI, out io.Writer) {
	if stdout := wasi.Stdout(); len(stdout) > e.stdoutN {
		out.Write(stdout[e.stdoutN:])
		e.stdoutN = len(stdout)
	}
	if stderr := wasi.Stderr(); len(stderr) > e.stderrN {
		out.Write(stderr[e.stderrN:])
		e.stderrN = len(stderr)
	}
}

// normalizeURI fills in a default scheme and resolves the authority from
// the Host header when the request URI omits it, per spec.md §4.4.
func normalizeURI(r *http.Request) error {
	if r.URL.Scheme == "" {
		r.URL.Scheme = "http"
	}
	if r.URL.Host == "" {
		r.URL.Host = r.Host
	}
	if r.URL.Path == "" && r.URL.RawQuery == "" {
		return fmt.Errorf("HttpRequestUriInvalid: missing path and query")
	}
	return nil
}
