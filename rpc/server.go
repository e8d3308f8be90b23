// Package rpc serves the daemon's local RPC surface over a unix socket,
// dispatching each connection's request onto a supervisor.Supervisor and
// replying with rpcproto's framed, Zstd-compressed responses.
package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/wacker-dev/wackerd/rpcproto"
	"github.com/wacker-dev/wackerd/supervisor"
)

// Server accepts connections on a listener and dispatches each one's
// request to a Supervisor. One connection carries exactly one RPC call:
// a single request/response pair, or — for logs — a request followed by
// a stream of response frames.
type Server struct {
	ln     net.Listener
	sup    *supervisor.Supervisor
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewServer builds a Server that will accept on ln and dispatch to sup.
func NewServer(ln net.Listener, sup *supervisor.Supervisor, logger *zap.Logger) *Server {
	return &Server{ln: ln, sup: sup, logger: logger}
}

// Serve accepts connections until ln is closed or ctx is cancelled,
// spawning one goroutine per connection. It returns nil on a clean
// shutdown (ctx cancelled or listener closed deliberately).
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && !ne.Timeout() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Drain waits for every in-flight connection handler to finish. Callers
// close the listener before calling Drain so no new connections arrive.
func (s *Server) Drain() {
	s.wg.Wait()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	env, err := rpcproto.ReadEnvelope(conn)
	if err != nil {
		return
	}

	switch env.Method {
	case rpcproto.MethodRun:
		req, ok := env.Payload.(*rpcproto.RunRequest)
		if !ok {
			s.fault(conn, "malformed run request")
			return
		}
		id, err := s.sup.Run(req.Path, req.Args)
		s.respond(conn, &rpcproto.RunResponse{ID: id}, err)

	case rpcproto.MethodServe:
		req, ok := env.Payload.(*rpcproto.ServeRequest)
		if !ok {
			s.fault(conn, "malformed serve request")
			return
		}
		id, err := s.sup.Serve(req.Path, req.Addr)
		s.respond(conn, &rpcproto.ServeResponse{ID: id}, err)

	case rpcproto.MethodList:
		progs := s.sup.List()
		wire := make([]rpcproto.Program, len(progs))
		for i, p := range progs {
			wire[i] = rpcproto.Program{
				ID:          p.ID,
				Path:        p.Path,
				ProgramType: uint32(p.ProgramType),
				Status:      uint32(p.Status),
				Addr:        p.Addr,
			}
		}
		s.respond(conn, &rpcproto.ListResponse{Programs: wire}, nil)

	case rpcproto.MethodStop:
		req, ok := env.Payload.(*rpcproto.StopRequest)
		if !ok {
			s.fault(conn, "malformed stop request")
			return
		}
		s.respond(conn, &rpcproto.StopResponse{}, s.sup.Stop(req.IDs))

	case rpcproto.MethodRestart:
		req, ok := env.Payload.(*rpcproto.RestartRequest)
		if !ok {
			s.fault(conn, "malformed restart request")
			return
		}
		s.respond(conn, &rpcproto.RestartResponse{}, s.sup.Restart(req.IDs))

	case rpcproto.MethodDelete:
		req, ok := env.Payload.(*rpcproto.DeleteRequest)
		if !ok {
			s.fault(conn, "malformed delete request")
			return
		}
		s.respond(conn, &rpcproto.DeleteResponse{}, s.sup.Delete(req.IDs))

	case rpcproto.MethodLogs:
		req, ok := env.Payload.(*rpcproto.LogsRequest)
		if !ok {
			s.fault(conn, "malformed logs request")
			return
		}
		s.streamLogs(connCtx, cancel, conn, req)

	default:
		s.fault(conn, fmt.Sprintf("unknown method %d", env.Method))
	}
}

func (s *Server) streamLogs(ctx context.Context, cancel context.CancelFunc, conn net.Conn, req *rpcproto.LogsRequest) {
	ch, err := s.sup.Logs(ctx, req.ID, req.Follow, req.Tail)
	if err != nil {
		s.fault(conn, err.Error())
		return
	}
	for msg := range ch {
		if err := rpcproto.WriteResult(conn, &rpcproto.LogChunk{Content: msg.Content}, nil); err != nil {
			// client disconnected: cancel so the supervisor's follow
			// goroutine stops polling and closes ch.
			cancel()
			return
		}
	}
}

func (s *Server) respond(conn net.Conn, payload any, err error) {
	if err != nil {
		s.fault(conn, err.Error())
		return
	}
	if werr := rpcproto.WriteResult(conn, payload, nil); werr != nil && s.logger != nil {
		s.logger.Warn("write rpc response", zap.Error(werr))
	}
}

func (s *Server) fault(conn net.Conn, message string) {
	if err := rpcproto.WriteResult(conn, nil, &rpcproto.Fault{Message: message}); err != nil && s.logger != nil {
		s.logger.Warn("write rpc fault", zap.Error(err))
	}
}
