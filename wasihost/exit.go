package wasihost

import "context"

// ExitHost implements wasi:cli/exit. Unlike the upstream runtime's
// implementation, it never calls os.Exit: wackerd hosts many guest
// programs in one process, and one guest's call to wasi:cli/exit must not
// take down the others.
type ExitHost struct{}

// NewExitHost builds an ExitHost.
func NewExitHost() *ExitHost { return &ExitHost{} }

func (h *ExitHost) Namespace() string { return "wasi:cli/exit@0.2.3" }

// ExitSignal is panicked by Exit. Engines must recover it at the guest
// call boundary and treat Code as the guest's process exit code.
type ExitSignal struct {
	Code uint32
}

func (e ExitSignal) Error() string { return "guest called wasi:cli/exit" }

func (h *ExitHost) Exit(_ context.Context, status uint32) {
	panic(ExitSignal{Code: status})
}
