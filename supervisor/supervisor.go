// Package supervisor owns the live table of running programs, dispatches
// to the CLI/HTTP engines, and implements the daemon's full lifecycle
// surface: run, serve, list, stop, restart, delete, logs.
//
// Grounded on runtime/wasi.go's "build once, share" host-registration shape
// and on the teacher's overall preference for explicit, short-lived
// critical sections — generalized here into the single short-held mutex
// spec.md §4.5/§5 requires: the lock guards map mutation and runInner's
// synchronous setup (which opens the program's log file), never an
// engine.Run call, a registry write, or any other file I/O.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wacker-dev/wackerd/errors"
	"github.com/wacker-dev/wackerd/idgen"
	"github.com/wacker-dev/wackerd/logsink"
	"github.com/wacker-dev/wackerd/registry"
)

// Status is a LiveProgram's current lifecycle state.
type Status uint32

const (
	StatusRunning Status = iota
	StatusFinished
	StatusError
	StatusStopped
)

// Engine runs one program to completion (CLI) or until cancelled (HTTP).
type Engine interface {
	Run(ctx context.Context, meta registry.ProgramMeta, log *logsink.LogFile) error
}

// Program is the supervisor's externally-visible snapshot of one
// registered program, returned by List.
type Program struct {
	ID          string
	Path        string
	ProgramType registry.ProgramType
	Status      Status
	Addr        string
}

// LogMessage is one unit of log content delivered by Logs, matching the
// RPC stream contract of spec.md §6.
type LogMessage struct {
	Content string
}

type liveProgram struct {
	id      string
	meta    registry.ProgramMeta
	cancel  context.CancelFunc
	done    chan struct{}
	failure error
	status  Status
	err     error
}

// Supervisor is the daemon's core state machine: the live program table,
// the engine set, and the registry it stays consistent with.
type Supervisor struct {
	mu       sync.Mutex
	reg      registry.Registry
	engines  map[registry.ProgramType]Engine
	live     map[string]*liveProgram
	logsDir  string
	logger   *zap.Logger
	rootCtx  context.Context
	shutdown chan struct{}
	once     sync.Once
}

// New opens the live table and rehydrates every program the registry
// remembers, relaunching each from its last known ProgramMeta. Load
// ordering is not significant. A program whose engine type is missing is
// logged and skipped rather than failing the whole daemon.
func New(ctx context.Context, reg registry.Registry, engines map[registry.ProgramType]Engine, logsDir string, logger *zap.Logger) (*Supervisor, error) {
	s := &Supervisor{
		reg:      reg,
		engines:  engines,
		live:     make(map[string]*liveProgram),
		logsDir:  logsDir,
		logger:   logger,
		rootCtx:  ctx,
		shutdown: make(chan struct{}),
	}

	err := reg.Iter(func(id string, meta registry.ProgramMeta) error {
		if err := s.runInner(id, meta); err != nil && logger != nil {
			logger.Warn("failed to relaunch program on startup", zap.String("id", id), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rehydrate registry: %w", err)
	}
	return s, nil
}

// Shutdown ends every in-progress logs(follow=true) stream. It does not
// stop running programs; the daemon's own context cancellation does that.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() { close(s.shutdown) })
}

// Run registers and launches a CLI program. Returns its assigned id.
func (s *Supervisor) Run(path string, args []string) (string, error) {
	id, err := idgen.New(path)
	if err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("run", zap.String("id", id), zap.String("path", path))
	}
	meta := registry.ProgramMeta{Path: path, ProgramType: registry.ProgramCLI, Args: args}
	if err := s.reg.Insert(id, meta); err != nil {
		return "", err
	}
	if err := s.runInner(id, meta); err != nil {
		return "", err
	}
	return id, nil
}

// Serve registers and launches an HTTP program bound to addr.
func (s *Supervisor) Serve(path, addr string) (string, error) {
	id, err := idgen.New(path)
	if err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("serve", zap.String("id", id), zap.String("path", path), zap.String("addr", addr))
	}
	meta := registry.ProgramMeta{Path: path, ProgramType: registry.ProgramHTTP, Addr: addr}
	if err := s.reg.Insert(id, meta); err != nil {
		return "", err
	}
	if err := s.runInner(id, meta); err != nil {
		return "", err
	}
	return id, nil
}

// runInner opens (or reopens) the program's log file, resolves its
// engine, spawns the task, and inserts its LiveProgram entry. The lock is
// held only across this synchronous setup, never across the spawned
// engine.Run call.
func (s *Supervisor) runInner(id string, meta registry.ProgramMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logPath := filepath.Join(s.logsDir, id)
	logFile, err := logsink.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file for %s: %w", id, err)
	}

	eng, ok := s.engines[meta.ProgramType]
	if !ok {
		_ = logFile.Close()
		return errors.UnknownProgramType(uint32(meta.ProgramType))
	}

	taskCtx, cancel := context.WithCancel(s.rootCtx)
	lp := &liveProgram{
		id:     id,
		meta:   meta,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusRunning,
	}

	go func() {
		defer logFile.Close()
		runErr := eng.Run(taskCtx, meta, logFile)
		if runErr != nil {
			if s.logger != nil {
				s.logger.Warn("running program error", zap.String("id", id), zap.Error(runErr))
			}
			if appendErr := logsink.AppendLine(logPath, runErr.Error()+"\n"); appendErr != nil && s.logger != nil {
				s.logger.Warn("failed to append failure to log", zap.String("id", id), zap.Error(appendErr))
			}
		}
		lp.failure = runErr
		close(lp.done)
	}()

	s.live[id] = lp
	return nil
}

// List returns a snapshot of every program, lazily transitioning Running
// entries whose task has finished to Finished or Error. This is the only
// operation that observes that transition.
func (s *Supervisor) List() []Program {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Program, 0, len(s.live))
	for id, lp := range s.live {
		if lp.status == StatusRunning {
			select {
			case <-lp.done:
				if lp.failure != nil {
					lp.status = StatusError
					lp.err = lp.failure
				} else {
					lp.status = StatusFinished
				}
			default:
			}
		}
		out = append(out, Program{
			ID:          id,
			Path:        lp.meta.Path,
			ProgramType: lp.meta.ProgramType,
			Status:      lp.status,
			Addr:        lp.meta.Addr,
		})
	}
	return out
}

// Stop aborts each resolved program in order. The batch is not
// transactional: the first failure aborts the remainder.
func (s *Supervisor) Stop(ids []string) error {
	for _, prefix := range ids {
		if err := s.stopOne(prefix); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) stopOne(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := resolvePrefix(s.live, prefix)
	if err != nil {
		return err
	}
	lp := s.live[id]
	select {
	case <-lp.done:
		return nil // already terminal: no-op per the status state machine
	default:
	}
	lp.cancel()
	lp.status = StatusStopped
	return nil
}

// Restart aborts and relaunches each resolved program in place, keeping
// its id and log file. Errors propagate immediately.
func (s *Supervisor) Restart(ids []string) error {
	for _, prefix := range ids {
		if err := s.restartOne(prefix); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) restartOne(prefix string) error {
	s.mu.Lock()
	id, err := resolvePrefix(s.live, prefix)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	lp := s.live[id]
	lp.cancel()
	meta := lp.meta
	s.mu.Unlock()

	return s.runInner(id, meta)
}

// Delete aborts each resolved program, removes its log file (a missing
// file is not an error), then removes its registry and live-table entries.
func (s *Supervisor) Delete(ids []string) error {
	for _, prefix := range ids {
		if err := s.deleteOne(prefix); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) deleteOne(prefix string) error {
	s.mu.Lock()
	id, err := resolvePrefix(s.live, prefix)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	lp := s.live[id]
	lp.cancel()
	s.mu.Unlock()

	logPath := filepath.Join(s.logsDir, id)
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log file for %s: %w", id, err)
	}
	if err := s.reg.Remove(id); err != nil {
		return fmt.Errorf("remove registry entry for %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
	return nil
}

// Logs resolves id, reads the current log file, and returns it (tail-
// filtered per spec.md's boundary rules) as the first message on a
// channel. If follow is set, the channel remains open and further
// messages arrive as content is appended, polling every 200ms; the
// channel closes on client disconnect (ctx cancelled), daemon shutdown,
// or end of follow.
func (s *Supervisor) Logs(ctx context.Context, idPrefix string, follow bool, tail uint32) (<-chan LogMessage, error) {
	s.mu.Lock()
	id, err := resolvePrefix(s.live, idPrefix)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.logsDir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log file for %s: %w", id, err)
	}

	lines := splitInclusive(data)
	first := data
	if tail != 0 && uint32(len(lines)) > tail {
		first = concatLines(lines[uint32(len(lines))-tail:])
	}

	ch := make(chan LogMessage, 128)
	offset := int64(len(data))

	go func() {
		defer close(ch)
		select {
		case ch <- LogMessage{Content: string(first)}:
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		}
		if !follow {
			return
		}

		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.shutdown:
				return
			case <-ticker.C:
				chunk, newOffset, err := readFrom(path, offset)
				if err != nil {
					return
				}
				offset = newOffset
				if len(chunk) == 0 {
					continue
				}
				select {
				case ch <- LogMessage{Content: string(chunk)}:
				case <-ctx.Done():
					return
				case <-s.shutdown:
					return
				}
			}
		}
	}()

	return ch, nil
}

func readFrom(path string, offset int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, err
	}
	return buf, offset + int64(len(buf)), nil
}

func splitInclusive(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i+1])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func concatLines(lines [][]byte) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
	}
	return buf.Bytes()
}

// resolvePrefix implements spec.md's id resolution rule: 0 matches fails
// not-found, 1 match succeeds, 2+ matches fails ambiguous.
func resolvePrefix(live map[string]*liveProgram, prefix string) (string, error) {
	var matches []string
	for id := range live {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.ProgramNotFound(prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errors.AmbiguousID(prefix)
	}
}
