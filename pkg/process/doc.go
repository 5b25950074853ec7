// Package process runs the external CLI tools the agent shells out to —
// virsh, ceph/rbd, ip, bridge, dnsmasq, iptables/nft, ipmitool — capturing
// combined output for error messages and logging every invocation at
// debug level the way the node supervisor logs its own ticks.
package process
