package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec functions turn coordination-store byte values into typed Go
// values and back. Design Notes calls out the original's "decode or empty
// string" parsing as a pattern to replace: every function here returns an
// explicit error on a malformed value instead of silently treating it as
// zero/empty, so a corrupt value stops a controller from acting on it
// rather than letting it quietly misbehave.

func EncodeString(s string) []byte { return []byte(s) }

func DecodeString(b []byte) string { return string(b) }

func EncodeInt64(v int64) []byte { return []byte(strconv.FormatInt(v, 10)) }

func DecodeInt64(b []byte) (int64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("decode int64: empty value")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode int64 from %q: %w", s, err)
	}
	return v, nil
}

func EncodeFloat64(v float64) []byte { return []byte(strconv.FormatFloat(v, 'f', -1, 64)) }

func DecodeFloat64(b []byte) (float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("decode float64: empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("decode float64 from %q: %w", s, err)
	}
	return v, nil
}

func EncodeInt(v int) []byte { return EncodeInt64(int64(v)) }

func DecodeInt(b []byte) (int, error) {
	v, err := DecodeInt64(b)
	return int(v), err
}

func EncodeBool(v bool) []byte {
	if v {
		return []byte("true")
	}
	return []byte("false")
}

func DecodeBool(b []byte) (bool, error) {
	switch strings.TrimSpace(string(b)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("decode bool: invalid value %q", string(b))
	}
}

// EncodeStringList / DecodeStringList handle the comma-separated list
// fields (runningdomains, rbdlist, node_limit, name_servers).
func EncodeStringList(vs []string) []byte { return []byte(strings.Join(vs, ",")) }

func DecodeStringList(b []byte) []string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EncodeDomainRunState(s DomainRunState) []byte { return []byte(s) }

func DecodeDomainRunState(b []byte) (DomainRunState, error) {
	s := DomainRunState(strings.TrimSpace(string(b)))
	switch s {
	case DomainStart, DomainRestart, DomainShutdown, DomainStop, DomainDisable,
		DomainMigrate, DomainUnmigrate, DomainProvision, DomainFail:
		return s, nil
	default:
		return "", fmt.Errorf("decode domain state: invalid value %q", string(b))
	}
}

func EncodeDaemonState(s DaemonState) []byte { return []byte(s) }

func DecodeDaemonState(b []byte) (DaemonState, error) {
	s := DaemonState(strings.TrimSpace(string(b)))
	switch s {
	case DaemonStateInit, DaemonStateRun, DaemonStateStop, DaemonStateDead, DaemonStateFenced:
		return s, nil
	default:
		return "", fmt.Errorf("decode daemon state: invalid value %q", string(b))
	}
}

func EncodeNodeDomainState(s DomainState) []byte { return []byte(s) }

func DecodeNodeDomainState(b []byte) (DomainState, error) {
	s := DomainState(strings.TrimSpace(string(b)))
	switch s {
	case NodeDomainStateReady, NodeDomainStateFlush, NodeDomainStateFlushed:
		return s, nil
	default:
		return "", fmt.Errorf("decode node domain state: invalid value %q", string(b))
	}
}

func EncodeRouterState(s RouterState) []byte { return []byte(s) }

func DecodeRouterState(b []byte) (RouterState, error) {
	s := RouterState(strings.TrimSpace(string(b)))
	switch s {
	case RouterStatePrimary, RouterStateSecondary, RouterStateTakeover, RouterStateRelinquish:
		return s, nil
	default:
		return "", fmt.Errorf("decode router state: invalid value %q", string(b))
	}
}

func EncodeNetworkType(t NetworkType) []byte { return []byte(t) }

func DecodeNetworkType(b []byte) (NetworkType, error) {
	t := NetworkType(strings.TrimSpace(string(b)))
	switch t {
	case NetworkManaged, NetworkBridged:
		return t, nil
	default:
		return "", fmt.Errorf("decode network type: invalid value %q", string(b))
	}
}

func EncodeFirewallDirection(d FirewallDirection) []byte { return []byte(d) }

func DecodeFirewallDirection(b []byte) (FirewallDirection, error) {
	d := FirewallDirection(strings.TrimSpace(string(b)))
	switch d {
	case FirewallIn, FirewallOut:
		return d, nil
	default:
		return "", fmt.Errorf("decode firewall direction: invalid value %q", string(b))
	}
}

func EncodeNodeSelector(s NodeSelector) []byte { return []byte(s) }

func DecodeNodeSelector(b []byte) (NodeSelector, error) {
	s := NodeSelector(strings.TrimSpace(string(b)))
	switch s {
	case SelectorMem, SelectorLoad, SelectorVCPUs, SelectorVMs:
		return s, nil
	default:
		return "", fmt.Errorf("decode node selector: invalid value %q", string(b))
	}
}
