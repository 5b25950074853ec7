package cmdqueue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/types"
)

func newTestCoordClient(t *testing.T) *coord.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping cmdqueue integration test in short mode")
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

func waitForResult(t *testing.T, c *coord.Client, path string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		v, found, err := c.Read(path)
		require.NoError(t, err)
		if found {
			s := types.DecodeString(v)
			if strings.HasPrefix(s, "success-") || strings.HasPrefix(s, "failure-") {
				return s
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for command result")
	return ""
}

func TestQueueDispatchesRegisteredVerb(t *testing.T) {
	c := newTestCoordClient(t)
	path := types.CmdChannelPath("domains")
	_, err := c.Create(path, nil, false, false)
	require.NoError(t, err)

	var gotArgs string
	q := New(c, "domains")
	q.RegisterHandler("flush_locks", func(ctx context.Context, args string) error {
		gotArgs = args
		return nil
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, c.Write(path, types.EncodeString("flush_locks dom-123")))

	result := waitForResult(t, c, path)
	assert.Equal(t, "success-flush_locks dom-123", result)
	assert.Equal(t, "dom-123", gotArgs)
}

func TestQueueWritesFailureOnHandlerError(t *testing.T) {
	c := newTestCoordClient(t)
	path := types.CmdChannelPath("domains")
	_, err := c.Create(path, nil, false, false)
	require.NoError(t, err)

	q := New(c, "domains")
	q.RegisterHandler("explode", func(ctx context.Context, args string) error {
		return errors.New("boom")
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, c.Write(path, types.EncodeString("explode whatever")))

	result := waitForResult(t, c, path)
	assert.Equal(t, "failure-explode whatever", result)
}

func TestQueueIgnoresAlreadyResolvedRequest(t *testing.T) {
	c := newTestCoordClient(t)
	path := types.CmdChannelPath("domains")
	_, err := c.Create(path, types.EncodeString("success-noop done"), false, false)
	require.NoError(t, err)

	called := false
	q := New(c, "domains")
	q.RegisterHandler("noop", func(ctx context.Context, args string) error {
		called = true
		return nil
	})
	q.Start()
	defer q.Stop()

	time.Sleep(200 * time.Millisecond)
	assert.False(t, called)
}
