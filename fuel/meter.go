// Package fuel provides a cooperative auto-yield mechanism for guest wasm
// execution, standing in for wasmtime's native fuel counter and
// fuel_async_yield_interval: wazero has no instruction-level fuel metering,
// so we count host-observed function calls instead and hand control back to
// the Go scheduler at the same cadence the specification asks of wasmtime
// (every 10,000 units).
//
// Grounded on engine/asyncify.go's shape (a small mutex/atomic-guarded
// state machine) repurposed for a different job: instead of tracking the
// asyncify unwind/rewind state, Meter tracks a call counter and yields.
package fuel

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// DefaultInterval is the auto-yield interval mandated by the specification:
// a guest is preempted at least every 10,000 fuel units.
const DefaultInterval uint64 = 10000

// Meter counts calls into guest code across an instantiation and forces a
// cooperative yield (runtime.Gosched) every Interval calls.
type Meter struct {
	interval uint64
	count    atomic.Uint64
	yields   atomic.Uint64
}

// NewMeter creates a meter with the given yield interval. An interval of 0
// uses DefaultInterval.
func NewMeter(interval uint64) *Meter {
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Meter{interval: interval}
}

// Yields reports how many cooperative yields this meter has forced so far.
// Exposed for tests.
func (m *Meter) Yields() uint64 {
	return m.yields.Load()
}

// Calls reports the number of calls observed so far. Exposed for tests.
func (m *Meter) Calls() uint64 {
	return m.count.Load()
}

// WithListener installs this meter's function-call listener on ctx, so
// every guest function call wazero makes under that context is counted.
func (m *Meter) WithListener(ctx context.Context) context.Context {
	return experimental.WithFunctionListenerFactory(ctx, listenerFactory{m})
}

type listenerFactory struct{ m *Meter }

func (f listenerFactory) NewListener(api.FunctionDefinition) experimental.FunctionListener {
	return meterListener{f.m}
}

type meterListener struct{ m *Meter }

func (l meterListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) context.Context {
	n := l.m.count.Add(1)
	if n%l.m.interval == 0 {
		l.m.yields.Add(1)
		runtime.Gosched()
	}
	return ctx
}

func (l meterListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}
