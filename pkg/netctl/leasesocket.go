package netctl

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/types"
)

// leaseSocketPath is where the per-network dhcp lease-event listener binds.
// One socket per VNI so each network's dnsmasq lease script always reaches
// the listener for its own reservations.
func leaseSocketPath(base string, vni int) string {
	return leaseDir(base, vni) + "/lease.sock"
}

// leaseListener accepts lease-event callbacks forwarded by dnsmasq's
// --dhcp-script hook (via the agent binary's dhcp-event subcommand) and
// writes the resulting dynamic lease back to the coordination store at
// /networks/<vni>/dhcp4_reservations/<mac>/..., the primary-writer contract
// for dynamic DHCP4 leases.
type leaseListener struct {
	vni      int
	coord    *coord.Client
	sockPath string
	logger   zerolog.Logger

	ln net.Listener
}

func newLeaseListener(base string, vni int, c *coord.Client) (*leaseListener, error) {
	sockPath := leaseSocketPath(base, vni)
	_ = os.Remove(sockPath)

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on lease socket %s: %w", sockPath, err)
	}

	l := &leaseListener{
		vni:      vni,
		coord:    c,
		sockPath: sockPath,
		logger:   log.WithVNI(vni),
		ln:       ln,
	}
	go l.serve()
	return l, nil
}

func (l *leaseListener) serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		go l.handle(conn)
	}
}

func (l *leaseListener) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	if err := l.apply(scanner.Text()); err != nil {
		l.logger.Warn().Err(err).Str("event", scanner.Text()).Msg("lease event failed")
		fmt.Fprintf(conn, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(conn, "OK\n")
}

// apply handles one "<action> <mac> <ip> [<hostname>]" lease event, the
// format dnsmasq's dhcp-script contract passes as positional arguments.
func (l *leaseListener) apply(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return fmt.Errorf("malformed lease event: %q", line)
	}
	action, mac, ip := fields[0], fields[1], fields[2]
	hostname := ""
	if len(fields) > 3 {
		hostname = fields[3]
	}

	if l.ownedByStaticReservation(mac) {
		// A static reservation already owns this MAC; dnsmasq handed it the
		// fixed address itself, so there is nothing dynamic to record.
		return nil
	}

	switch action {
	case "add", "old":
		values := map[string][]byte{
			types.NetworkReservationIPPath(l.vni, mac):     types.EncodeString(ip),
			types.NetworkReservationStaticPath(l.vni, mac): types.EncodeBool(false),
		}
		if hostname != "" {
			values[types.NetworkReservationHostnamePath(l.vni, mac)] = types.EncodeString(hostname)
		}
		return l.coord.WriteAll(values)
	case "del":
		return l.coord.Delete(types.NetworkReservationPath(l.vni, mac), true)
	default:
		return nil
	}
}

func (l *leaseListener) ownedByStaticReservation(mac string) bool {
	b, found, err := l.coord.Read(types.NetworkReservationStaticPath(l.vni, mac))
	if err != nil || !found {
		return false
	}
	static, err := types.DecodeBool(b)
	return err == nil && static
}

func (l *leaseListener) Stop() {
	_ = l.ln.Close()
	_ = os.Remove(l.sockPath)
}
