// Package cliengine runs a CLI-style wasm artifact (core module or
// component) to completion as a batch job, wiring its stdout/stderr onto a
// shared log file and treating an exit code of 0 as success.
//
// Grounded on runtime/wasi.go's RegisterWASI wiring and runtime_test.go's
// "_start" invocation pattern, generalized from a one-shot test harness
// into the supervisor's run(meta, out) -> Result contract.
package cliengine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-runtime/runtime"
	"github.com/wippyai/wasm-runtime/wasi/preview2"

	"github.com/wacker-dev/wackerd/fuel"
	"github.com/wacker-dev/wackerd/logsink"
	"github.com/wacker-dev/wackerd/registry"
	"github.com/wacker-dev/wackerd/wasiartifact"
	"github.com/wacker-dev/wackerd/wasihost"
)

// Engine runs CLI programs. It satisfies the supervisor's Engine contract.
type Engine struct {
	meter  *fuel.Meter
	logger *zap.Logger
}

// New creates a CLI engine with the specification's mandated 10,000-call
// cooperative yield interval, logging with the given logger.
func New(logger *zap.Logger) *Engine {
	return &Engine{meter: fuel.NewMeter(fuel.DefaultInterval), logger: logger}
}

// Run loads the artifact at meta.Path, wires its stdout/stderr onto log,
// and runs it to completion. A guest process exit of 0 is success; any
// other outcome, including a non-zero wasi:cli/exit code, is an error.
func (e *Engine) Run(ctx context.Context, meta registry.ProgramMeta, log *logsink.LogFile) (err error) {
	ctx = e.meter.WithListener(ctx)

	defer func() {
		if err != nil && e.logger != nil {
			e.logger.Warn("cli engine run failed", zap.String("path", meta.Path), zap.Error(err))
		}
	}()

	data, err := wasiartifact.Load(ctx, meta.Path)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	wasi := preview2.New().
		WithArgs(append([]string{meta.Path}, meta.Args...)).
		WithStdin(nil)
	defer wasi.Close()

	if err := wasihost.RegisterAll(rt, wasi); err != nil {
		return fmt.Errorf("register wasi: %w", err)
	}

	defer func() {
		if out := wasi.Stdout(); len(out) > 0 {
			log.Clone().Write(out)
		}
		if errOut := wasi.Stderr(); len(errOut) > 0 {
			log.Clone().Write(errOut)
		}
	}()

	kind := wasiartifact.Classify(data)
	if kind == wasiartifact.KindComponent {
		return e.runComponent(ctx, rt, data)
	}
	return e.runCoreModule(ctx, rt, data)
}

func (e *Engine) runCoreModule(ctx context.Context, rt *runtime.Runtime, data []byte) (err error) {
	mod, err := rt.LoadWASM(ctx, data, "")
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate module: %w", err)
	}
	defer inst.Close(ctx)

	entry, ok := resolveCoreEntry(mod.Exports())
	if !ok {
		return fmt.Errorf("no main function to run")
	}

	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(wasihost.ExitSignal)
			if !ok {
				panic(r)
			}
			if sig.Code != 0 {
				err = fmt.Errorf("process exited with code %d", sig.Code)
			}
		}
	}()

	if _, callErr := inst.CallWithTypes(ctx, entry, nil, nil); callErr != nil {
		return fmt.Errorf("call %s: %w", entry, callErr)
	}
	return nil
}

func (e *Engine) runComponent(ctx context.Context, rt *runtime.Runtime, data []byte) (err error) {
	mod, err := rt.LoadComponent(ctx, data)
	if err != nil {
		return fmt.Errorf("load component: %w", err)
	}

	inst, err := mod.InstantiateWithAsyncify(ctx)
	if err != nil {
		return fmt.Errorf("instantiate component: %w", err)
	}
	defer inst.Close(ctx)

	runExport := resolveRunExport(mod.Exports())
	if runExport == "" {
		return fmt.Errorf("no main function to run")
	}

	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(wasihost.ExitSignal)
			if !ok {
				panic(r)
			}
			if sig.Code != 0 {
				err = fmt.Errorf("process exited with code %d", sig.Code)
			}
		}
	}()

	result, callErr := inst.Call(ctx, runExport)
	if callErr != nil {
		return fmt.Errorf("call run function error: %w", callErr)
	}
	if ok, isBool := result.(bool); isBool && !ok {
		return fmt.Errorf("call run function error: guest reported failure")
	}
	return nil
}

// resolveCoreEntry picks "_start" if exported, else falls back to the
// empty-name export core modules without a command-style entry still use.
func resolveCoreEntry(exports []runtime.Export) (string, bool) {
	hasEmpty := false
	for _, exp := range exports {
		if exp.Name == "_start" {
			return "_start", true
		}
		if exp.Name == "" {
			hasEmpty = true
		}
	}
	if hasEmpty {
		return "", true
	}
	return "", false
}

// resolveRunExport finds the command world's run export among a
// component's exported function names, tolerating the version suffix
// component tooling embeds (e.g. "wasi:cli/run@0.2.3#run").
func resolveRunExport(exports []runtime.Export) string {
	for _, exp := range exports {
		if exp.Name == "run" || hasRunSuffix(exp.Name) {
			return exp.Name
		}
	}
	return ""
}

func hasRunSuffix(name string) bool {
	const suffix = "#run"
	return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
}
