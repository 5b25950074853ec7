package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOutputCapturesStdout(t *testing.T) {
	var r Runner
	res, err := r.RunOutput(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunReturnsErrorOnNonZeroExit(t *testing.T) {
	var r Runner
	err := r.Run(context.Background(), "false")
	assert.Error(t, err)
}

func TestRunOutputHonorsDefaultTimeout(t *testing.T) {
	r := Runner{DefaultTimeout: 50 * time.Millisecond}
	_, err := r.RunOutput(context.Background(), "sleep", "5")
	assert.Error(t, err)
}
