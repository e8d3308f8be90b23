// Package client is the daemon's RPC client stub: one blocking method per
// operation in spec.md §4.7/§6, each opening its own connection, sending
// a single framed request, and reading the framed response (or, for
// Logs, a stream of them).
package client

import (
	"context"
	"fmt"
	"net"

	"github.com/wacker-dev/wackerd/rpcproto"
)

// Client dials a wackerd unix socket fresh for every call. The daemon
// treats each connection as exactly one RPC, so there is no persistent
// connection state to manage here.
type Client struct {
	sockPath string
	dialer   net.Dialer
}

// Dial validates nothing about sockPath up front (the daemon owning it
// may not have started yet is a call-time concern, not a dial-time one);
// it simply remembers the path for later connections.
func Dial(ctx context.Context, sockPath string) (*Client, error) {
	return &Client{sockPath: sockPath}, nil
}

func (c *Client) call(ctx context.Context, method rpcproto.Method, req any) (*rpcproto.ResultEnvelope, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.sockPath, err)
	}
	defer conn.Close()

	if err := rpcproto.WriteEnvelope(conn, method, req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	res, err := rpcproto.ReadResult(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.Fault != nil {
		return nil, res.Fault
	}
	return res, nil
}

// Run starts a CLI program and returns its assigned id.
func (c *Client) Run(ctx context.Context, path string, args []string) (string, error) {
	res, err := c.call(ctx, rpcproto.MethodRun, &rpcproto.RunRequest{Path: path, Args: args})
	if err != nil {
		return "", err
	}
	resp, ok := res.Payload.(*rpcproto.RunResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response type for run")
	}
	return resp.ID, nil
}

// Serve starts an HTTP program bound to addr and returns its assigned id.
func (c *Client) Serve(ctx context.Context, path, addr string) (string, error) {
	res, err := c.call(ctx, rpcproto.MethodServe, &rpcproto.ServeRequest{Path: path, Addr: addr})
	if err != nil {
		return "", err
	}
	resp, ok := res.Payload.(*rpcproto.ServeResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response type for serve")
	}
	return resp.ID, nil
}

// List returns a snapshot of every program the daemon knows about.
func (c *Client) List(ctx context.Context) ([]rpcproto.Program, error) {
	res, err := c.call(ctx, rpcproto.MethodList, &rpcproto.ListRequest{})
	if err != nil {
		return nil, err
	}
	resp, ok := res.Payload.(*rpcproto.ListResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for list")
	}
	return resp.Programs, nil
}

// Stop aborts each resolved program in order.
func (c *Client) Stop(ctx context.Context, ids []string) error {
	_, err := c.call(ctx, rpcproto.MethodStop, &rpcproto.StopRequest{IDs: ids})
	return err
}

// Restart aborts and relaunches each resolved program in order.
func (c *Client) Restart(ctx context.Context, ids []string) error {
	_, err := c.call(ctx, rpcproto.MethodRestart, &rpcproto.RestartRequest{IDs: ids})
	return err
}

// Delete aborts, deregisters, and removes the log file of each resolved
// program in order.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	_, err := c.call(ctx, rpcproto.MethodDelete, &rpcproto.DeleteRequest{IDs: ids})
	return err
}

// Logs opens a log stream for id. The returned channel yields one
// LogChunk per server frame and is closed when the stream ends (EOF,
// server-side disconnect handling, or ctx cancellation). Errors
// encountered after the first successful frame close the channel
// without a reportable error; a failure on the opening frame is returned
// directly.
func (c *Client) Logs(ctx context.Context, id string, follow bool, tail uint32) (<-chan rpcproto.LogChunk, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.sockPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.sockPath, err)
	}

	if err := rpcproto.WriteEnvelope(conn, rpcproto.MethodLogs, &rpcproto.LogsRequest{ID: id, Follow: follow, Tail: tail}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}

	first, err := rpcproto.ReadResult(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if first.Fault != nil {
		conn.Close()
		return nil, first.Fault
	}
	chunk, ok := first.Payload.(*rpcproto.LogChunk)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected response type for logs")
	}

	ch := make(chan rpcproto.LogChunk, 128)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		defer close(ch)
		defer conn.Close()

		select {
		case ch <- *chunk:
		case <-ctx.Done():
			return
		}
		if !follow {
			return
		}

		for {
			res, err := rpcproto.ReadResult(conn)
			if err != nil {
				return
			}
			if res.Fault != nil {
				return
			}
			c, ok := res.Payload.(*rpcproto.LogChunk)
			if !ok {
				return
			}
			select {
			case ch <- *c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
