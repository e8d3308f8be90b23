// Package testfixture compiles small WAT sources into wasm bytes for use
// across the module's test suites, standing in for the prebuilt .wasm
// testdata binaries the original toolchain would produce.
package testfixture

import "github.com/wippyai/wasm-runtime/wat"

// CLISuccess is a core module exporting a no-op "_start", the WASI
// command entry point cliengine looks for. Running it succeeds.
func CLISuccess() []byte {
	mod, err := wat.Compile(`(module (func (export "_start")))`)
	if err != nil {
		panic(err)
	}
	return mod
}

// CLIExitCode is a core module whose "_start" traps with an
// unreachable instruction, standing in for a nonzero-exit guest: the
// engine sees a runtime trap, not a clean wasi:cli/exit(0).
func CLIExitCode() []byte {
	mod, err := wat.Compile(`(module (func (export "_start") (unreachable)))`)
	if err != nil {
		panic(err)
	}
	return mod
}

// NoEntry is a core module with no "_start" and no empty-named export,
// exercising cliengine's "no main function to run" error path.
func NoEntry() []byte {
	mod, err := wat.Compile(`(module (func (export "noop")))`)
	if err != nil {
		panic(err)
	}
	return mod
}
