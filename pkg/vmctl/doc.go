// Package vmctl implements the VM Controller (VMC, spec §4.2): one serial
// event processor per domain UUID that reconciles the coordination store's
// desired state against the local virtualization driver, including the
// live-migration send/receive handshake. Design Notes calls for replacing
// the source's per-entity flag soup (instart, inmigrate, ...) with a
// single task per entity pulling off a bounded channel; "busy" is then
// implicit in "currently handling an event" rather than an explicit flag.
package vmctl
