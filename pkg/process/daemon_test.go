package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonStartRunningStop(t *testing.T) {
	d := &Daemon{Name: "sleep", Args: []string{"30"}, StopGrace: 200 * time.Millisecond}

	require.NoError(t, d.Start())
	assert.True(t, d.Running())

	// Starting again while already running is a no-op, not an error.
	require.NoError(t, d.Start())

	require.NoError(t, d.Stop())
	assert.False(t, d.Running())
}

func TestDaemonReloadRequiresRunningProcess(t *testing.T) {
	d := &Daemon{Name: "sleep", Args: []string{"30"}}
	err := d.Reload()
	assert.Error(t, err)

	require.NoError(t, d.Start())
	defer d.Stop()
	assert.NoError(t, d.Reload())
}

func TestDaemonStopKillsProcessThatIgnoresTerm(t *testing.T) {
	// trap ignores SIGTERM so Stop must fall back to SIGKILL after StopGrace.
	d := &Daemon{
		Name:      "sh",
		Args:      []string{"-c", "trap '' TERM; sleep 30"},
		StopGrace: 100 * time.Millisecond,
	}
	require.NoError(t, d.Start())

	start := time.Now()
	require.NoError(t, d.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, d.Running())
}

func TestStartBackgroundDoesNotBlock(t *testing.T) {
	err := StartBackground("sleep", "1")
	assert.NoError(t, err)
}
