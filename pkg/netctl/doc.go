// Package netctl implements the Network Controller: per-node vxlan+bridge
// overlay lifecycle, primary-only gateway/DHCP ownership, and firewall ACL
// materialization, the way the teacher's pkg/network managed host-port
// iptables rules through subprocess calls.
package netctl
