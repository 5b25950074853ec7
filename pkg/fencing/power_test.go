package fencing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	commands [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.commands = append(f.commands, append([]string{name}, args...))
	return nil
}

func TestIPMIPowerCycleWithCredentials(t *testing.T) {
	runner := &fakeRunner{}
	p := &IPMIPowerCycler{Runner: runner, Username: "admin", Password: "secret"}

	require.NoError(t, p.PowerCycle(context.Background(), "10.0.0.9"))

	require.Len(t, runner.commands, 1)
	assert.Equal(t,
		[]string{"ipmitool", "-I", "lanplus", "-H", "10.0.0.9", "-U", "admin", "-P", "secret", "chassis", "power", "cycle"},
		runner.commands[0])
}

func TestIPMIPowerCycleWithoutCredentials(t *testing.T) {
	runner := &fakeRunner{}
	p := &IPMIPowerCycler{Runner: runner}

	require.NoError(t, p.PowerCycle(context.Background(), "10.0.0.9"))
	assert.NotContains(t, runner.commands[0], "-U")
}
