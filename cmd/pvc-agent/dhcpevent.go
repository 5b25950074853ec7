package main

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// dhcpEventCmd is what dnsmasq's --dhcp-script actually execs on every
// lease add/old/del. dnsmasq passes the action, MAC, and IP as the first
// three positional arguments and an optional hostname as the fourth; this
// relays them verbatim over the running agent's per-network lease socket
// so the coordination-store write happens inside the long-lived process
// rather than from this short-lived one.
var dhcpEventCmd = &cobra.Command{
	Use:    "dhcp-event <action> <mac> <ip> [hostname]",
	Short:  "Relay a dnsmasq lease event to the running agent",
	Hidden: true,
	Args:   cobra.RangeArgs(3, 4),
	RunE:   runDHCPEvent,
}

func init() {
	dhcpEventCmd.Flags().String("socket", "", "Lease-event socket for this network")
	_ = dhcpEventCmd.MarkFlagRequired("socket")
	rootCmd.AddCommand(dhcpEventCmd)
}

func runDHCPEvent(cmd *cobra.Command, args []string) error {
	sockPath, _ := cmd.Flags().GetString("socket")

	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial lease socket %s: %w", sockPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, strings.Join(args, " ")); err != nil {
		return fmt.Errorf("write lease event: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read lease socket reply: %w", err)
	}
	if !strings.HasPrefix(reply, "OK") {
		return fmt.Errorf("lease event rejected: %s", strings.TrimSpace(reply))
	}
	return nil
}
