package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wacker-dev/wackerd/logsink"
	"github.com/wacker-dev/wackerd/registry"
)

// fakeRegistry is an in-memory stand-in for registry.Registry.
type fakeRegistry struct {
	mu    sync.Mutex
	items map[string]registry.ProgramMeta
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{items: make(map[string]registry.ProgramMeta)}
}

func (r *fakeRegistry) Insert(id string, meta registry.ProgramMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = meta
	return nil
}

func (r *fakeRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeRegistry) Iter(fn func(id string, meta registry.ProgramMeta) error) error {
	r.mu.Lock()
	items := make(map[string]registry.ProgramMeta, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	r.mu.Unlock()
	for id, meta := range items {
		if err := fn(id, meta); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRegistry) Flush() error { return nil }
func (r *fakeRegistry) Close() error { return nil }

// blockingEngine runs until its context is cancelled, then returns runErr.
type blockingEngine struct {
	runErr error
}

func (e *blockingEngine) Run(ctx context.Context, meta registry.ProgramMeta, log *logsink.LogFile) error {
	<-ctx.Done()
	return e.runErr
}

// fastEngine returns immediately with runErr.
type fastEngine struct {
	runErr error
}

func (e *fastEngine) Run(ctx context.Context, meta registry.ProgramMeta, log *logsink.LogFile) error {
	return e.runErr
}

func newTestSupervisor(t *testing.T, engines map[registry.ProgramType]Engine) (*Supervisor, *fakeRegistry, string) {
	t.Helper()
	logsDir := t.TempDir()
	reg := newFakeRegistry()
	s, err := New(context.Background(), reg, engines, logsDir, nil)
	require.NoError(t, err)
	return s, reg, logsDir
}

func TestRunAssignsIDAndTracksLive(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)
	require.Contains(t, id, "hello-")

	progs := s.List()
	require.Len(t, progs, 1)
	require.Equal(t, id, progs[0].ID)
	require.Equal(t, StatusRunning, progs[0].Status)
}

func TestListTransitionsToFinished(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &fastEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, p := range s.List() {
			if p.ID == id {
				return p.Status == StatusFinished
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestListTransitionsToError(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &fastEngine{runErr: context.DeadlineExceeded},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, p := range s.List() {
			if p.ID == id {
				return p.Status == StatusError
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestRunUnknownProgramType(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{})
	_, err := s.Run("/bin/hello.wasm", nil)
	require.Error(t, err)
}

func TestStopMarksStopped(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	require.NoError(t, s.Stop([]string{id}))

	progs := s.List()
	require.Len(t, progs, 1)
	require.Equal(t, StatusStopped, progs[0].Status)
}

func TestStopAmbiguousPrefix(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	_, err := s.Run("/bin/hello-one.wasm", nil)
	require.NoError(t, err)
	_, err = s.Run("/bin/hello-one.wasm", nil)
	require.NoError(t, err)

	err = s.Stop([]string{"hello-one"})
	require.Error(t, err)
}

func TestStopNotFound(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	err := s.Stop([]string{"nope"})
	require.Error(t, err)
}

func TestRestartRelaunchesSameID(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	require.NoError(t, s.Restart([]string{id}))

	progs := s.List()
	require.Len(t, progs, 1)
	require.Equal(t, id, progs[0].ID)
	require.Equal(t, StatusRunning, progs[0].Status)
}

func TestDeleteRemovesLiveAndRegistryAndLog(t *testing.T) {
	s, reg, logsDir := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &fastEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	logPath := filepath.Join(logsDir, id)
	_, statErr := os.Stat(logPath)
	require.NoError(t, statErr)

	require.NoError(t, s.Delete([]string{id}))

	require.Empty(t, s.List())
	reg.mu.Lock()
	_, ok := reg.items[id]
	reg.mu.Unlock()
	require.False(t, ok)

	_, statErr = os.Stat(logPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestDeleteMissingLogFileNotAnError(t *testing.T) {
	s, _, logsDir := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(logsDir, id)))
	require.NoError(t, s.Delete([]string{id}))
}

func TestRehydratesFromRegistry(t *testing.T) {
	logsDir := t.TempDir()
	reg := newFakeRegistry()
	require.NoError(t, reg.Insert("hello-abc1234", registry.ProgramMeta{
		Path:        "/bin/hello.wasm",
		ProgramType: registry.ProgramCLI,
	}))

	s, err := New(context.Background(), reg, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	}, logsDir, nil)
	require.NoError(t, err)

	progs := s.List()
	require.Len(t, progs, 1)
	require.Equal(t, "hello-abc1234", progs[0].ID)
	require.Equal(t, StatusRunning, progs[0].Status)
}

func TestLogsReturnsCurrentContentAndFollows(t *testing.T) {
	logsDir := t.TempDir()
	reg := newFakeRegistry()
	s, err := New(context.Background(), reg, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	}, logsDir, nil)
	require.NoError(t, err)

	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	logPath := filepath.Join(logsDir, id)
	require.NoError(t, os.WriteFile(logPath, []byte("line1\nline2\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Logs(ctx, id, true, 0)
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, "line1\nline2\n", first.Content)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("line3\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case msg := <-ch:
		require.Equal(t, "line3\n", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestLogsRespectsTail(t *testing.T) {
	logsDir := t.TempDir()
	reg := newFakeRegistry()
	s, err := New(context.Background(), reg, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &fastEngine{},
	}, logsDir, nil)
	require.NoError(t, err)

	id, err := s.Run("/bin/hello.wasm", nil)
	require.NoError(t, err)

	logPath := filepath.Join(logsDir, id)
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(logPath)
		return statErr == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(logPath, []byte("a\nb\nc\n"), 0o644))

	ch, err := s.Logs(context.Background(), id, false, 2)
	require.NoError(t, err)

	msg := <-ch
	require.Equal(t, "b\nc\n", msg.Content)

	_, ok := <-ch
	require.False(t, ok)
}

func TestLogsAmbiguousPrefix(t *testing.T) {
	s, _, _ := newTestSupervisor(t, map[registry.ProgramType]Engine{
		registry.ProgramCLI: &blockingEngine{},
	})
	_, err := s.Run("/bin/dup.wasm", nil)
	require.NoError(t, err)
	_, err = s.Run("/bin/dup.wasm", nil)
	require.NoError(t, err)

	_, err = s.Logs(context.Background(), "dup", false, 0)
	require.Error(t, err)
}
