package coord

import (
	"time"

	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
)

// janitorInterval is how often the leader sweeps for stale sessions.
const janitorInterval = 5 * time.Second

// sessionRenewLoop periodically applies a renew_session entry for this
// client's own session so the leader's janitor does not expire it. The
// first renewal happens immediately so a freshly started client is never
// briefly mistaken for stale.
func (c *Client) sessionRenewLoop() {
	lastSuccess := time.Now()
	renew := func() {
		if _, err := c.applyOp(op{Kind: opRenewSession, Session: c.sessionID}); err != nil {
			log.Logger.Warn().Err(err).Msg("coordination store session renewal failed")
			if time.Since(lastSuccess) > sessionTTL {
				log.Logger.Error().Str("session", c.sessionID).Msg("coordination store session renewal exceeded TTL, treating session as expired")
				c.notifySessionExpired()
			}
			return
		}
		lastSuccess = time.Now()
	}
	renew()

	ticker := time.NewTicker(sessionRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			renew()
		case <-c.stopCh:
			return
		}
	}
}

// janitorLoop runs only meaningfully on the leader: it periodically scans
// for sessions that have gone silent past sessionTTL and expires them,
// which deletes their ephemeral nodes cluster-wide via opExpireSessions.
// Non-leaders also tick but IsLeader gates the actual sweep, since only
// the leader's fsm.renewed reflects every session's applied renewals.
func (c *Client) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepStaleSessions()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) sweepStaleSessions() {
	if !c.IsLeader() {
		return
	}
	cutoff := time.Now().Unix() - int64(sessionTTL.Seconds())
	stale := c.fsm.staleSessions(cutoff)
	if len(stale) == 0 {
		return
	}
	if _, err := c.applyOp(op{Kind: opExpireSessions, Expired: stale}); err != nil {
		log.Logger.Warn().Err(err).Strs("sessions", stale).Msg("coordination store session expiry failed")
	}
}

// OnSessionEvent registers a listener that receives a SessionEvent with
// Expired=true once this client's own session renewals have failed for
// longer than the session TTL (clock skew, prolonged partition from the
// leader), by which point the janitor may already have reaped the
// session. Receiving EXPIRED is fatal: the caller must treat it as a
// signal to step down from any role keyed on ephemeral nodes and restart.
// cmd/pvc-agent wires this into a process exit so the binary never keeps
// running against ephemeral nodes the janitor has already reaped elsewhere.
func (c *Client) OnSessionEvent() <-chan SessionEvent {
	ch := make(chan SessionEvent, 1)
	c.mu.Lock()
	c.sessionListeners = append(c.sessionListeners, ch)
	c.mu.Unlock()
	return ch
}

func (c *Client) notifySessionExpired() {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	listeners := append([]chan SessionEvent{}, c.sessionListeners...)
	c.mu.Unlock()

	c.PublishEvent(events.EventSessionExpired, "coordination store session expired", map[string]string{
		"node_id": c.nodeID,
	})

	for _, ch := range listeners {
		select {
		case ch <- SessionEvent{Expired: true}:
		default:
		}
	}
}
