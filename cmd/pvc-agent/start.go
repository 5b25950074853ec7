package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parvane/pvcd/pkg/cmdqueue"
	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/fencing"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/netctl"
	"github.com/parvane/pvcd/pkg/nodesup"
	"github.com/parvane/pvcd/pkg/process"
	"github.com/parvane/pvcd/pkg/storagefacade"
	"github.com/parvane/pvcd/pkg/virt"
	"github.com/parvane/pvcd/pkg/vmctl"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node agent",
	Long: `Start brings up the coordination store client, registers this node,
and launches the Node Supervisor's keepalive/election tick along with the
VM Controller, Network Controller, Storage Facade, Command Queue, and
Fencing Module it depends on.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringP("config", "f", "", "Agent config YAML file (required)")
	_ = startCmd.MarkFlagRequired("config")
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadAgentConfig(configPath)
	if err != nil {
		return err
	}

	logger := log.WithNodeID(cfg.NodeID)
	logger.Info().Str("bind_addr", cfg.BindAddr).Bool("bootstrap", cfg.Bootstrap).Msg("starting agent")

	coordClient, err := coord.NewClient(&coord.Config{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create coordination store client: %w", err)
	}

	if cfg.Bootstrap {
		if err := coordClient.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap coordination store: %w", err)
		}
	} else {
		// Joining an existing cluster's raft configuration requires the
		// current leader to AddVoter this node; that is an operator action
		// taken directly against the leader's running process, since no
		// RPC frontend for it is in scope here.
		if err := coordClient.Join(); err != nil {
			return fmt.Errorf("join coordination store: %w", err)
		}
	}

	go func() {
		ev := <-coordClient.OnSessionEvent()
		if ev.Expired {
			logger.Fatal().Msg("coordination store session expired, exiting for restart")
		}
	}()

	conn, err := virt.DialLocal()
	if err != nil {
		return fmt.Errorf("connect to local libvirtd: %w", err)
	}

	vmManager := vmctl.NewManager(coordClient, conn, cfg.NodeID, cfg.ClusterDomain)
	if err := vmManager.Start(); err != nil {
		return fmt.Errorf("start vm controller: %w", err)
	}

	var runner process.Runner
	netController := netctl.NewController(coordClient, &runner, cfg.Carrier)
	if err := netController.Start(context.Background()); err != nil {
		return fmt.Errorf("start network controller: %w", err)
	}

	storageFacade := storagefacade.New(coordClient, &runner)

	powerCycler := &fencing.IPMIPowerCycler{
		Runner:   &runner,
		Username: cfg.IPMI.Username,
		Password: cfg.IPMI.Password,
	}
	fencingModule := fencing.New(coordClient, powerCycler, storageFacade)

	supervisor := nodesup.NewSupervisor(nodesup.Config{
		Coord:          coordClient,
		Driver:         conn,
		VMCtl:          vmManager,
		Gateway:        netController,
		Fencer:         fencingModule,
		SelfNode:       cfg.NodeID,
		Coordinator:    cfg.Coordinator,
		ManagementAddr: cfg.ManagementAddr,
		Tick:           cfg.tick(),
	})
	if err := supervisor.Start(); err != nil {
		return fmt.Errorf("start node supervisor: %w", err)
	}

	domainsQueue := cmdqueue.New(coordClient, "domains")
	domainsQueue.RegisterHandler("flush_locks", func(ctx context.Context, args string) error {
		uuid := strings.TrimSpace(args)
		if uuid == "" {
			return fmt.Errorf("flush_locks: missing domain uuid")
		}
		return storageFacade.FlushLocks(ctx, uuid)
	})
	domainsQueue.Start()

	cephQueue := cmdqueue.New(coordClient, "ceph")
	registerCephHandlers(cephQueue, storageFacade)
	cephQueue.Start()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("coord", true, "raft started")
	metrics.RegisterComponent("vmctl", true, "ready")
	metrics.RegisterComponent("netctl", true, "ready")

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics and health endpoints ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	cephQueue.Stop()
	domainsQueue.Stop()
	supervisor.Stop()
	netController.Stop()
	vmManager.Stop()
	if err := conn.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing libvirt connection failed")
	}
	if err := coordClient.Shutdown(); err != nil {
		return fmt.Errorf("shutdown coordination store: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// registerCephHandlers wires the /cmd/ceph channel's verbs to the Storage
// Facade, one verb per SF request per spec.md §4.2/§6's storage ceph CLI
// grouping: pool/volume/snapshot/OSD lifecycle.
func registerCephHandlers(q *cmdqueue.Queue, sf *storagefacade.Facade) {
	q.RegisterHandler("pool_add", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return fmt.Errorf("pool_add: expected <name> <pg_count>")
		}
		pgCount, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("pool_add: invalid pg_count: %w", err)
		}
		return sf.CreatePool(ctx, fields[0], pgCount)
	})
	q.RegisterHandler("pool_remove", func(ctx context.Context, args string) error {
		name := strings.TrimSpace(args)
		if name == "" {
			return fmt.Errorf("pool_remove: missing pool name")
		}
		return sf.RemovePool(ctx, name)
	})
	q.RegisterHandler("osd_add", func(ctx context.Context, args string) error {
		device := strings.TrimSpace(args)
		if device == "" {
			return fmt.Errorf("osd_add: missing device")
		}
		return sf.AddOSD(ctx, device)
	})
	q.RegisterHandler("osd_remove", func(ctx context.Context, args string) error {
		id := strings.TrimSpace(args)
		if id == "" {
			return fmt.Errorf("osd_remove: missing osd id")
		}
		return sf.RemoveOSD(ctx, id)
	})
	q.RegisterHandler("volume_add", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("volume_add: expected <pool> <name> <size>")
		}
		return sf.CreateVolume(ctx, fields[0], fields[1], fields[2])
	})
	q.RegisterHandler("volume_remove", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return fmt.Errorf("volume_remove: expected <pool> <name>")
		}
		return sf.RemoveVolume(ctx, fields[0], fields[1])
	})
	q.RegisterHandler("volume_resize", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("volume_resize: expected <pool> <name> <size>")
		}
		return sf.ResizeVolume(ctx, fields[0], fields[1], fields[2])
	})
	q.RegisterHandler("volume_rename", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("volume_rename: expected <pool> <old_name> <new_name>")
		}
		return sf.RenameVolume(ctx, fields[0], fields[1], fields[2])
	})
	q.RegisterHandler("volume_clone", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 4 {
			return fmt.Errorf("volume_clone: expected <src_pool> <src_name> <dst_pool> <dst_name>")
		}
		return sf.CloneVolume(ctx, fields[0], fields[1], fields[2], fields[3])
	})
	q.RegisterHandler("snapshot_add", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("snapshot_add: expected <pool> <volume> <snap_name>")
		}
		return sf.CreateSnapshot(ctx, fields[0], fields[1], fields[2])
	})
	q.RegisterHandler("snapshot_remove", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("snapshot_remove: expected <pool> <volume> <snap_name>")
		}
		return sf.RemoveSnapshot(ctx, fields[0], fields[1], fields[2])
	})
	q.RegisterHandler("snapshot_rollback", func(ctx context.Context, args string) error {
		fields := strings.Fields(args)
		if len(fields) != 3 {
			return fmt.Errorf("snapshot_rollback: expected <pool> <volume> <snap_name>")
		}
		return sf.RollbackSnapshot(ctx, fields[0], fields[1], fields[2])
	})
}
