/*
Package events provides an in-memory event broker used to fan local
coordination-store mutations and component state changes out to
subscribers without blocking the writer.

# Architecture

A single Broker holds a buffered intake channel and a set of subscriber
channels; Publish blocks the caller only while the intake buffer is full,
and a full subscriber buffer drops events rather than stalling the
broadcast loop. The coordination
store's FSM (pkg/coord) publishes tree.written/tree.created/tree.deleted
events here after every local apply; pkg/coord's watch dispatcher
subscribes and re-routes matching events to registered watch callbacks.
Components may also publish their own events (domain.state_changed,
node.fenced) for anything that wants to observe state changes without
depending directly on pkg/coord's watch API.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.Type == events.EventTreeDeleted {
				// react to path removal
			}
		}
	}()

# Limitations

In-memory only, best-effort delivery, no ordering guarantees across
subscribers. Anything that must not miss an event establishes its
subscription before the operation that could produce it, the same pattern
pkg/coord's watch registry uses around tree mutations.
*/
package events
