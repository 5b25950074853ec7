package storagefacade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/process"
)

func newTestCoordClient(t *testing.T) *coord.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping storagefacade integration test in short mode")
	}
	c, err := coord.NewClient(&coord.Config{
		NodeID:   "test-node",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !c.IsLeader() {
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, c.IsLeader())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

// fakeRunner records commands and returns scripted output instead of
// exec'ing real `ceph`/`rbd` binaries.
type fakeRunner struct {
	mu       sync.Mutex
	commands [][]string
	outputs  map[string]string // keyed by the joined command line
	failOn   map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: make(map[string]string), failOn: make(map[string]bool)}
}

func key(name string, args []string) string {
	s := name
	for _, a := range args {
		s += " " + a
	}
	return s
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := f.RunOutput(ctx, name, args...)
	return err
}

func (f *fakeRunner) RunOutput(ctx context.Context, name string, args ...string) (*process.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, append([]string{name}, args...))
	k := key(name, args)
	if f.failOn[k] {
		return &process.Result{ExitCode: 1}, errFake
	}
	return &process.Result{Stdout: f.outputs[k]}, nil
}

var errFake = &fakeError{"fake command failure"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func (f *fakeRunner) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c[0] == name {
			n++
		}
	}
	return n
}
