// Package main provides the entry point for kvgrid-server.
//
// kvgrid-server is the per-node process of a sharded, replicated
// key-value cluster: it serves partition reads/writes over the framed
// wire protocol, answers master-to-master migration control calls, and
// participates in the Raft-backed topology store that tracks which
// group owns which partition.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvgrid/kvgrid/internal/clusterstate"
	"github.com/kvgrid/kvgrid/internal/config"
	"github.com/kvgrid/kvgrid/internal/discovery"
	"github.com/kvgrid/kvgrid/internal/dispatch"
	"github.com/kvgrid/kvgrid/internal/infra/confloader"
	"github.com/kvgrid/kvgrid/internal/infra/shutdown"
	"github.com/kvgrid/kvgrid/internal/kvdomain"
	"github.com/kvgrid/kvgrid/internal/lifecycle"
	"github.com/kvgrid/kvgrid/internal/login"
	"github.com/kvgrid/kvgrid/internal/migration"
	"github.com/kvgrid/kvgrid/internal/nodeserver"
	"github.com/kvgrid/kvgrid/internal/storage"
	"github.com/kvgrid/kvgrid/internal/telemetry/logger"
	"github.com/kvgrid/kvgrid/internal/telemetry/metric"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kvgrid-server %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting kvgrid-server",
		"version", version,
		"commit", commit,
		"node_id", cfg.Cluster.NodeID,
		"group", cfg.Cluster.Group)

	self := kvdomain.NodeID{Group: kvdomain.GroupID(cfg.Cluster.Group), Index: uint8(cfg.Cluster.Index)}

	app := newApplication(cfg, self, log, slogLogger)
	sup := lifecycle.NewSupervisor(slogLogger, app.components()...)

	if err := sup.Start(context.Background()); err != nil {
		return fmt.Errorf("lifecycle start: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down kvgrid-server")
		return sup.Stop(ctx)
	})

	log.Info("server started, press Ctrl+C to stop",
		"partitions_addr", cfg.Partitions.Addr,
		"admin_addr", cfg.Admin.Addr)
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger. Returns both the logger
// interface and a slog.Logger for components that need one directly.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.SetDefault(log)
	slogLogger := slog.Default()

	return log, slogLogger, nil
}

// application holds the mutable state the nine lifecycle.Component steps
// build up and tear down, in the order internal/lifecycle.Component's
// doc comment names them. Pointers are shared across step closures via
// atomic.Pointer since Start for a later step runs after an earlier
// step's goroutine (the replica-state listener, the background
// collectors) is already reading them.
type application struct {
	cfg    *config.ServerConfig
	self   kvdomain.NodeID
	log    logger.Logger
	slog   *slog.Logger
	migCfg migration.Config

	env   atomic.Pointer[storage.Environment]
	store atomic.Pointer[clusterstate.Store]
	disc  atomic.Pointer[discovery.Discovery]

	logins *login.Manager

	configuredCh  chan struct{}
	configureOnce sync.Once

	mu          sync.Mutex
	handler     *nodeserver.Handler
	server      *nodeserver.Server
	responder   *migration.Responder
	coordinator *migration.Coordinator
	adminServer *http.Server
}

func newApplication(cfg *config.ServerConfig, self kvdomain.NodeID, log logger.Logger, slogLogger *slog.Logger) *application {
	return &application{
		cfg:  cfg,
		self: self,
		log:  log,
		slog: slogLogger,
		migCfg: migration.Config{
			RNFailoverDelay:         cfg.Migration.RNFailoverDelay,
			CheckMigrationPeriod:    cfg.Migration.CheckMigrationPeriod,
			ServiceUnreachableDelay: cfg.Migration.ServiceUnreachableDelay,
			AdminFailoverDelay:      cfg.Migration.AdminFailoverDelay,
			CallTimeout:             cfg.Migration.CallTimeout,
		},
		logins:       login.NewManager(dispatch.DialFor(cfg.Migration.CallTimeout)),
		configuredCh: make(chan struct{}),
	}
}

// components assembles the nine named lifecycle steps in order. The
// first component is the monitoring sink by convention: Supervisor.Stop
// always tears it down last so shutdown is still observable while the
// rest of the process unwinds.
func (a *application) components() []lifecycle.Component {
	return []lifecycle.Component{
		{Name: "monitoring sink", Start: a.startMonitoring},
		{Name: "admin endpoint", Start: a.startAdminEndpoint, Stop: a.stopAdminEndpoint},
		{Name: "replica-state listener", Start: a.startReplicaStateListener},
		{Name: "replicated environment", Start: a.startEnvironment, Stop: a.stopEnvironment},
		{Name: "topology bootstrap", Start: a.startTopology, Stop: a.stopTopology},
		{Name: "security startup", Start: a.startSecurity},
		{Name: "request handler", Start: a.startRequestHandler, Stop: a.stopRequestHandler},
		{Name: "login service", Start: a.startLoginService, Stop: a.stopLoginService},
		{Name: "background collectors", Start: a.startBackgroundCollectors},
	}
}

// 1. monitoring sink: register the process-wide Prometheus collector
// that samples storage size and partitions-owned at scrape time, ahead
// of anything else starting so a failed later step is still visible on
// /metrics.
func (a *application) startMonitoring(ctx context.Context) error {
	collector := metric.NewCollector(
		func() uint64 {
			env := a.env.Load()
			if env == nil {
				return 0
			}
			stats, err := env.Stats(ctx)
			if err != nil {
				return 0
			}
			return stats.TotalSize
		},
		func() int {
			store := a.store.Load()
			if store == nil {
				return 0
			}
			owned := 0
			for _, g := range store.Topology().Partitions {
				if g == a.self.Group {
					owned++
				}
			}
			return owned
		},
	)
	return metric.Global().Register(collector)
}

// 2. minimal-mode admin endpoint: serves /ping, /metrics, and the
// /configure call a genesis node's operator issues once to hand it its
// first partition map, before the replicated environment or topology
// store necessarily exist yet.
func (a *application) startAdminEndpoint(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metric.Global().Handler())
	mux.HandleFunc("/configure", a.handleConfigure)
	mux.HandleFunc("/migrate", a.handleMigrate)
	mux.HandleFunc("/status", a.handleStatus)

	ln, err := net.Listen("tcp", a.cfg.Admin.Addr)
	if err != nil {
		return fmt.Errorf("listen admin addr: %w", err)
	}

	a.mu.Lock()
	a.adminServer = &http.Server{Addr: a.cfg.Admin.Addr, Handler: mux}
	srv := a.adminServer
	a.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin endpoint stopped", "error", err)
		}
	}()
	return nil
}

func (a *application) stopAdminEndpoint(ctx context.Context) error {
	a.mu.Lock()
	srv := a.adminServer
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (a *application) handleConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store := a.store.Load()
	if store == nil {
		http.Error(w, "topology store not yet started", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Partitions map[string]int32 `json:"partitions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	assignments := make(map[kvdomain.PartitionID]kvdomain.GroupID, len(body.Partitions))
	for k, v := range body.Partitions {
		id, err := strconv.Atoi(k)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid partition id %q", k), http.StatusBadRequest)
			return
		}
		assignments[kvdomain.PartitionID(id)] = kvdomain.GroupID(v)
	}

	if err := store.ProposeBootstrap(a.cfg.Partitions.NumPartitions, assignments); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.configureOnce.Do(func() { close(a.configuredCh) })
	w.WriteHeader(http.StatusOK)
}

func (a *application) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.mu.Lock()
	coordinator := a.coordinator
	a.mu.Unlock()
	if coordinator == nil {
		http.Error(w, "migration coordinator not yet started", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Partition   int32 `json:"partition"`
		Source      int32 `json:"source_group"`
		Target      int32 `json:"target_group"`
		FailedShard bool  `json:"failed_shard"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := coordinator.Start(r.Context(), kvdomain.PartitionID(body.Partition),
		kvdomain.GroupID(body.Source), kvdomain.GroupID(body.Target), body.FailedShard)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

// topologyStatus is a JSON-friendly projection of kvdomain.Topology:
// Topology itself keys two of its maps by struct types, which
// encoding/json cannot serialize directly.
type topologyStatus struct {
	Seq           uint64              `json:"seq"`
	NumPartitions int32               `json:"num_partitions"`
	Partitions    map[string]int32    `json:"partitions"`
	Groups        map[string][]string `json:"groups"`
	Nodes         map[string]string   `json:"nodes"`
	Self          string              `json:"self"`
	SelfIsMaster  bool                `json:"self_is_master"`
}

func (a *application) handleStatus(w http.ResponseWriter, r *http.Request) {
	store := a.store.Load()
	if store == nil {
		http.Error(w, "topology store not yet started", http.StatusServiceUnavailable)
		return
	}

	topo := store.Topology()
	resp := topologyStatus{
		Seq:           topo.Seq,
		NumPartitions: topo.NumPartitions,
		Partitions:    make(map[string]int32, len(topo.Partitions)),
		Groups:        make(map[string][]string, len(topo.Groups)),
		Nodes:         make(map[string]string, len(topo.Nodes)),
		Self:          a.self.String(),
	}
	for p, g := range topo.Partitions {
		resp.Partitions[strconv.Itoa(int(p))] = int32(g)
	}
	for g, members := range topo.Groups {
		names := make([]string, len(members))
		for i, n := range members {
			names[i] = n.String()
		}
		resp.Groups[strconv.Itoa(int(g))] = names
	}
	for n, ep := range topo.Nodes {
		resp.Nodes[n.String()] = ep.String()
	}

	gs := store.GroupState(a.self.Group)
	resp.SelfIsMaster = gs.HasMaster && gs.Master == a.self

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// 3. replica-state listener installation: a node has no per-group Raft
// leadership channel of its own (only the topology store's Raft group
// has one, and it is cluster-wide, not per shard group), so a node
// learns whether it is currently its group's master by polling
// GroupState against its own identity.
func (a *application) startReplicaStateListener(ctx context.Context) error {
	go a.replicaStateLoop(ctx)
	return nil
}

func (a *application) replicaStateLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store := a.store.Load()
			env := a.env.Load()
			if store == nil || env == nil {
				continue
			}
			gs := store.GroupState(a.self.Group)
			switch {
			case !gs.HasMaster:
				env.SetState(storage.StateUnknown)
			case gs.Master == a.self:
				env.SetState(storage.StateMaster)
			default:
				env.SetState(storage.StateReplica)
			}
		}
	}
}

// 4. replicated environment open: brings up the embedded Badger-backed,
// per-partition store this node serves reads and writes from.
func (a *application) startEnvironment(ctx context.Context) error {
	storageCfg := storage.KVConfig{
		Dir: a.cfg.Storage.DataDir,
		Badger: storage.BadgerConfig{
			GCInterval:              a.cfg.Storage.Badger.GCInterval,
			GCThreshold:             a.cfg.Storage.Badger.GCThreshold,
			CacheSize:               a.cfg.Storage.Badger.CacheSize,
			ValueLogFileSize:        a.cfg.Storage.Badger.ValueLogFileSize,
			NumMemtables:            a.cfg.Storage.Badger.NumMemtables,
			NumLevelZeroTables:      a.cfg.Storage.Badger.NumLevelZeroTables,
			NumLevelZeroTablesStall: a.cfg.Storage.Badger.NumLevelZeroTablesStall,
			SyncWrites:              a.cfg.Storage.Badger.SyncWrites,
			DetectConflicts:         a.cfg.Storage.Badger.DetectConflicts,
		},
	}

	env, err := storage.OpenEnvironment(ctx, storageCfg, a.cfg.Storage.VersionDir, a.slog)
	if err != nil {
		return err
	}
	a.env.Store(env)
	return nil
}

func (a *application) stopEnvironment(ctx context.Context) error {
	env := a.env.Load()
	if env == nil {
		return nil
	}
	return env.Close()
}

// 5. topology bootstrap: starts this node's Raft-backed topology store
// (genesis, join, or restart, by cfg.Cluster) and gossip discovery, then
// — for a fresh genesis node — blocks until the admin endpoint's
// /configure call lands.
func (a *application) startTopology(ctx context.Context) error {
	mode, joinAddr := bootstrapMode(a.cfg)

	bootCfg := clusterstate.BootstrapConfig{
		Raft: clusterstate.RaftConfig{
			NodeID:   a.cfg.Cluster.NodeID,
			BindAddr: a.cfg.Cluster.RaftBindAddr,
			DataDir:  a.cfg.Cluster.RaftDataDir,
		},
		Mode:          mode,
		NumPartitions: a.cfg.Partitions.NumPartitions,
		JoinAddr:      joinAddr,
	}

	store, err := clusterstate.Bootstrap(bootCfg, a.slog)
	if err != nil {
		return fmt.Errorf("bootstrap topology store: %w", err)
	}
	a.store.Store(store)

	disc, err := discovery.New(discovery.Config{
		NodeID:    a.cfg.Cluster.NodeID,
		ClusterID: a.cfg.Cluster.ClusterID,
		BindAddr:  a.cfg.Cluster.GossipBindAddr,
		BindPort:  a.cfg.Cluster.GossipBindPort,
		RaftAddr:  a.cfg.Cluster.RaftBindAddr,
		Node:      a.self,
		SeedNodes: a.cfg.Cluster.SeedNodes,
		Logger:    a.slog,
	})
	if err != nil {
		return fmt.Errorf("start gossip discovery: %w", err)
	}
	disc.OnJoin(func(meta discovery.NodeMetadata) {
		if !store.IsLeader() {
			return
		}
		host, port := splitHostPort(meta.RaftAddr)
		if host == "" {
			return
		}
		_ = store.ProposeNodeEndpoint(meta.Node, kvdomain.Endpoint{Host: host, Port: port})
	})
	a.disc.Store(disc)

	if mode == clusterstate.ModeGenesis && len(store.Topology().Partitions) == 0 {
		a.log.Info("genesis node awaiting admin configure call", "admin_addr", a.cfg.Admin.Addr)
		clusterstate.AwaitConfigured(store, a.configuredCh)
	}

	return nil
}

func (a *application) stopTopology(ctx context.Context) error {
	if disc := a.disc.Load(); disc != nil {
		_ = disc.Shutdown()
	}
	store := a.store.Load()
	if store == nil {
		return nil
	}
	return store.Close()
}

// bootstrapMode derives a clusterstate.BootstrapMode from cfg.Cluster:
// an explicit bootstrap flag means genesis, a non-empty seed list means
// join via the first seed, and anything else means this is a restart
// reopening existing on-disk Raft state.
func bootstrapMode(cfg *config.ServerConfig) (clusterstate.BootstrapMode, string) {
	switch {
	case cfg.Cluster.Bootstrap:
		return clusterstate.ModeGenesis, ""
	case len(cfg.Cluster.SeedNodes) > 0:
		return clusterstate.ModeJoin, cfg.Cluster.SeedNodes[0]
	default:
		return clusterstate.ModeRestart, ""
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0
	}
	return host, port
}

// 6. security startup: this port has no concrete Authenticator yet, so
// nodeserver.NewHandler is wired with a nil one below, which it
// documents as accepting every request unauthenticated.
func (a *application) startSecurity(ctx context.Context) error {
	a.log.Warn("no authenticator configured; accepting unauthenticated requests")
	return nil
}

// 7. request handler startup: brings up the framed TCP server answering
// partition requests, topology pushes, migration control calls, and
// partition-pull transfers.
func (a *application) startRequestHandler(ctx context.Context) error {
	env := a.env.Load()
	store := a.store.Load()

	forwarder := nodeserver.NewRPCForwarder(a.logins, store)
	handler := nodeserver.NewHandler(env, store, a.self, nil, forwarder, a.slog)
	responder := migration.NewResponder(a.migCfg, env, store, a.logins, a.slog)
	server := nodeserver.NewServer(nodeserver.DefaultConfig(a.cfg.Partitions.Addr), handler, responder, store, responder, a.slog)

	a.mu.Lock()
	a.handler, a.responder, a.server = handler, responder, server
	a.mu.Unlock()

	return server.Start(ctx)
}

func (a *application) stopRequestHandler(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// 8. login service: assembles the migration coordinator's transport and
// broadcaster over the handle cache built at application construction,
// which is shared with the Responder wired in the previous step.
func (a *application) startLoginService(ctx context.Context) error {
	store := a.store.Load()

	transport := migration.NewRPCTransport(a.logins, a.cfg.Migration.CallTimeout)
	broadcaster := migration.NewRPCBroadcaster(a.logins, a.cfg.Migration.CallTimeout, a.slog)
	coordinator := migration.New(a.migCfg, transport, store, store, broadcaster, a.slog)

	a.mu.Lock()
	a.coordinator = coordinator
	a.mu.Unlock()

	return nil
}

func (a *application) stopLoginService(ctx context.Context) error {
	return a.logins.CloseAll()
}

// 9. background collectors: periodically samples gossip membership into
// the cluster-nodes gauge, which (unlike storage size and partitions
// owned) is pushed rather than pulled at scrape time since it has no
// natural synchronous read.
func (a *application) startBackgroundCollectors(ctx context.Context) error {
	go a.clusterSizeLoop(ctx)
	return nil
}

func (a *application) clusterSizeLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			disc := a.disc.Load()
			if disc == nil {
				continue
			}
			metric.Global().SetClusterNodes(float64(len(disc.Members())))
		}
	}
}
