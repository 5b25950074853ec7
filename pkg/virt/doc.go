// Package virt wraps the local virtualization driver (libvirt) that the VM
// Controller reconciles domains against. It composes an existing driver
// rather than defining a new guest-domain description format: XML blobs
// flow through unmodified, and this package only adds the thin surface the
// PVC agent actually needs (lifecycle, migration, host telemetry).
package virt
