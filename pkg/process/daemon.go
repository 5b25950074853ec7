package process

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/parvane/pvcd/pkg/log"
)

// Daemon manages one long-running external process (dnsmasq, in practice)
// that outlives a single Run call: started once, reloaded via signal on
// config change, stopped gracefully with a kill fallback.
type Daemon struct {
	Name string
	Args []string

	// StopGrace bounds how long Stop waits for the process to exit after
	// SIGTERM before it sends SIGKILL.
	StopGrace time.Duration

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Start launches the daemon if it is not already running. Safe to call
// again after Stop.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil && d.cmd.Process != nil {
		return nil
	}

	cmd := exec.Command(d.Name, d.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon %s: %w", d.Name, err)
	}
	d.cmd = cmd

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Logger.Warn().Err(err).Str("daemon", d.Name).Msg("daemon exited")
		}
	}()
	return nil
}

// Running reports whether Start has a live process tracked.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cmd != nil && d.cmd.Process != nil
}

// Reload sends SIGHUP, the signal dnsmasq treats as "reread lease and
// reservation files".
func (d *Daemon) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil || d.cmd.Process == nil {
		return fmt.Errorf("daemon %s not running", d.Name)
	}
	return d.cmd.Process.Signal(syscall.SIGHUP)
}

// Stop sends SIGTERM, waits up to StopGrace, then SIGKILLs if the process
// hasn't exited.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	proc := d.cmd
	d.mu.Unlock()
	if proc == nil || proc.Process == nil {
		return nil
	}

	grace := d.StopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	_ = proc.Process.Signal(syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case <-done:
	case <-time.After(grace):
		_ = proc.Process.Kill()
		<-done
	}

	d.mu.Lock()
	d.cmd = nil
	d.mu.Unlock()
	return nil
}

// StartBackground launches name as a detached one-shot background
// process (fire-and-forget, e.g. a lease-event notification script) and
// does not wait for it to exit.
func StartBackground(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
