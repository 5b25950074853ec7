/*
Package log provides structured logging for the node agent using zerolog.

The package wraps a single global zerolog.Logger, configured once via Init,
plus a set of context-logger helpers for attaching the identifiers this
agent's components care about: node, domain, and overlay VNI.

# Usage

Initializing:

	import "github.com/parvane/pvcd/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Simple logging:

	log.Info("agent starting")
	log.Error("failed to dial libvirt")
	log.Fatal("cannot start without a data directory") // exits the process

Context loggers:

	nodeLog := log.WithNodeID("node-abc123")
	nodeLog.Info().Msg("keepalive tick")

	domainLog := log.WithDomainID("a1b2c3d4")
	domainLog.Warn().Msg("migration retry")

	vniLog := log.WithVNI(4201)
	vniLog.Info().Msg("gateway asserted")

	compLog := log.WithComponent("netctl")
	compLog.Debug().Msg("dhcp lease renewed")

# Log Levels

Debug, Info, Warn, and Error map directly onto zerolog's levels. Fatal logs
and then calls os.Exit(1); it is reserved for startup failures the agent
cannot run without (no data directory, cannot reach libvirtd, no coordination
store quorum).

# Best Practices

  - Never log IPMI credentials or RBD lock cookies.
  - Prefer typed fields (.Str, .Int, .Err) over string concatenation.
  - Attach node_id to every log line emitted on behalf of a node-scoped
    component so multi-node log aggregation can filter by it.

# See Also

  - zerolog: https://github.com/rs/zerolog
*/
package log
