// Package rpcproto defines the wire message shapes and framing for the
// daemon's local RPC surface: one request/response pair per operation in
// spec.md §6, plus a multi-frame stream for logs.
package rpcproto

import "encoding/gob"

// Method tags an Envelope with the RPC operation it carries.
type Method uint8

const (
	MethodRun Method = iota
	MethodServe
	MethodList
	MethodStop
	MethodRestart
	MethodDelete
	MethodLogs
)

func (m Method) String() string {
	switch m {
	case MethodRun:
		return "run"
	case MethodServe:
		return "serve"
	case MethodList:
		return "list"
	case MethodStop:
		return "stop"
	case MethodRestart:
		return "restart"
	case MethodDelete:
		return "delete"
	case MethodLogs:
		return "logs"
	default:
		return "unknown"
	}
}

// RunRequest/RunResponse back spec.md §6's run(path, args) -> { id }.
type RunRequest struct {
	Path string
	Args []string
}

type RunResponse struct {
	ID string
}

// ServeRequest/ServeResponse back serve(path, addr) -> { id }.
type ServeRequest struct {
	Path string
	Addr string
}

type ServeResponse struct {
	ID string
}

// ListRequest/ListResponse back list() -> { programs }.
type ListRequest struct{}

type ListResponse struct {
	Programs []Program
}

// Program is the wire shape of one supervisor.Program snapshot.
// ProgramType: 0=CLI, 1=HTTP. Status: 0=Running, 1=Finished, 2=Error, 3=Stopped.
type Program struct {
	ID          string
	Path        string
	ProgramType uint32
	Status      uint32
	Addr        string
}

// StopRequest/StopResponse back stop(ids) -> ().
type StopRequest struct {
	IDs []string
}

type StopResponse struct{}

// RestartRequest/RestartResponse back restart(ids) -> ().
type RestartRequest struct {
	IDs []string
}

type RestartResponse struct{}

// DeleteRequest/DeleteResponse back delete(ids) -> ().
type DeleteRequest struct {
	IDs []string
}

type DeleteResponse struct{}

// LogsRequest is the single request that opens a logs(id, follow, tail)
// stream; the server replies with one or more LogChunk frames.
type LogsRequest struct {
	ID     string
	Follow bool
	Tail   uint32
}

type LogChunk struct {
	Content string
}

// Fault is how any supervisor/registry error crosses the wire: the
// original message is preserved, not re-typed, per spec.md §7.
type Fault struct {
	Message string
}

func (f *Fault) Error() string {
	return f.Message
}

func init() {
	gob.Register(&RunRequest{})
	gob.Register(&RunResponse{})
	gob.Register(&ServeRequest{})
	gob.Register(&ServeResponse{})
	gob.Register(&ListRequest{})
	gob.Register(&ListResponse{})
	gob.Register(&StopRequest{})
	gob.Register(&StopResponse{})
	gob.Register(&RestartRequest{})
	gob.Register(&RestartResponse{})
	gob.Register(&DeleteRequest{})
	gob.Register(&DeleteResponse{})
	gob.Register(&LogsRequest{})
	gob.Register(&LogChunk{})
	gob.Register(&Fault{})
}
