package coord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: exercises the real Raft/BoltDB stack, the same way the teacher's
// pkg/scheduler/scheduler_test.go does against pkg/manager. Skipped in
// short mode; known checkptr issues with BoltDB + the race detector on
// recent Go toolchains mean this should run without -race.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping coordination-store integration test in short mode")
	}

	c, err := NewClient(&Config{
		NodeID:   "test-node",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsLeader() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, c.IsLeader(), "client failed to become coordination-store leader")

	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func TestCreateReadWriteDelete(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/nodes", nil, false, false)
	require.NoError(t, err)
	_, err = c.Create("/nodes/hv1", []byte("present"), false, false)
	require.NoError(t, err)

	v, found, err := c.Read("/nodes/hv1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "present", string(v))

	require.NoError(t, c.Write("/nodes/hv1", []byte("updated")))
	v, _, err = c.Read("/nodes/hv1")
	require.NoError(t, err)
	assert.Equal(t, "updated", string(v))

	require.NoError(t, c.Delete("/nodes/hv1", false))
	_, found, err = c.Read("/nodes/hv1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListChildren(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/domains", nil, false, false)
	require.NoError(t, err)
	for _, uuid := range []string{"aaaa", "bbbb", "cccc"} {
		_, err := c.Create("/domains/"+uuid, []byte("dom"), false, false)
		require.NoError(t, err)
	}

	children, err := c.ListChildren("/domains")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaaa", "bbbb", "cccc"}, children)
}

func TestWriteAllIsAtomic(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/domains/u1", []byte("dom"), false, false)
	require.NoError(t, err)
	_, err = c.Create("/domains/u1/node", []byte("hv1"), false, false)
	require.NoError(t, err)
	_, err = c.Create("/domains/u1/state", []byte("start"), false, false)
	require.NoError(t, err)

	require.NoError(t, c.WriteAll(map[string][]byte{
		"/domains/u1/node":  []byte("hv2"),
		"/domains/u1/state": []byte("migrate"),
	}))

	node, _, _ := c.Read("/domains/u1/node")
	state, _, _ := c.Read("/domains/u1/state")
	assert.Equal(t, "hv2", string(node))
	assert.Equal(t, "migrate", string(state))
}

func TestWatchDataFiresOnWriteAndDelete(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/nodes/hv1", []byte("v0"), false, false)
	require.NoError(t, err)

	events := make(chan bool, 4)
	c.WatchData("/nodes/hv1", func(deleted bool) Action {
		events <- deleted
		if deleted {
			return Stop
		}
		return Continue
	})

	require.NoError(t, c.Write("/nodes/hv1", []byte("v1")))
	select {
	case deleted := <-events:
		assert.False(t, deleted)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write event")
	}

	require.NoError(t, c.Delete("/nodes/hv1", false))
	select {
	case deleted := <-events:
		assert.True(t, deleted)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestLockSerializesConcurrentAcquires(t *testing.T) {
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l1, err := c.Lock(ctx, "/cmd/domains")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		l2, err := c.Lock(ctx, "/cmd/domains")
		require.NoError(t, err)
		close(acquired)
		_ = l2.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, l1.Unlock())

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestCompareAndSwap(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/primary_node", []byte("none"), false, false)
	require.NoError(t, err)

	swapped, err := c.CompareAndSwap("/primary_node", []byte("wrong"), []byte("hv1"))
	require.NoError(t, err)
	assert.False(t, swapped)
	v, _, _ := c.Read("/primary_node")
	assert.Equal(t, "none", string(v))

	swapped, err = c.CompareAndSwap("/primary_node", []byte("none"), []byte("hv1"))
	require.NoError(t, err)
	assert.True(t, swapped)
	v, _, _ = c.Read("/primary_node")
	assert.Equal(t, "hv1", string(v))
}

func TestEphemeralNodeCreated(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Create("/nodes/hv1/liveness", []byte("1"), true, false)
	require.NoError(t, err)

	_, found, err := c.Read("/nodes/hv1/liveness")
	require.NoError(t, err)
	assert.True(t, found)

	paths, err := c.tree.ephemeralsBySession(c.sessionID)
	require.NoError(t, err)
	assert.Contains(t, paths, "/nodes/hv1/liveness")
}
