// Package config defines kvgrid-server's configuration structure.
package config

import "time"

// ServerConfig is the root configuration for kvgrid-server.
type ServerConfig struct {
	Partitions PartitionsSection `koanf:"partitions"`
	Migration  MigrationSection  `koanf:"migration"`
	Cluster    ClusterSection    `koanf:"cluster"`
	Storage    StorageSection    `koanf:"storage"`
	Admin      AdminSection      `koanf:"admin"`
	Log        LogSection        `koanf:"log"`
}

// PartitionsSection configures the partition/request handler endpoint.
type PartitionsSection struct {
	NumPartitions int32  `koanf:"num_partitions"`
	Addr          string `koanf:"addr"`
}

// MigrationSection configures the partition migration coordinator.
type MigrationSection struct {
	RNFailoverDelay         time.Duration `koanf:"rn_failover_delay"`
	CheckMigrationPeriod    time.Duration `koanf:"check_migration_period"`
	ServiceUnreachableDelay time.Duration `koanf:"service_unreachable_delay"`
	AdminFailoverDelay      time.Duration `koanf:"admin_failover_delay"`
	CallTimeout             time.Duration `koanf:"call_timeout"`
}

// ClusterSection configures the topology Raft group and gossip discovery.
type ClusterSection struct {
	NodeID         string   `koanf:"node_id"`
	Group          int32    `koanf:"group"`
	Index          int      `koanf:"index"`
	RaftBindAddr   string   `koanf:"raft_bind_addr"`
	RaftDataDir    string   `koanf:"raft_data_dir"`
	GossipBindAddr string   `koanf:"gossip_bind_addr"`
	GossipBindPort int      `koanf:"gossip_bind_port"`
	ClusterID      string   `koanf:"cluster_id"`
	Bootstrap      bool     `koanf:"bootstrap"`
	SeedNodes      []string `koanf:"seed_nodes"`
}

// StorageSection configures the embedded Badger engine and the
// non-replicated version database.
type StorageSection struct {
	DataDir    string       `koanf:"data_dir"`
	VersionDir string       `koanf:"version_dir"`
	Badger     BadgerConfig `koanf:"badger"`
}

// BadgerConfig mirrors internal/storage.BadgerConfig's tunable fields.
type BadgerConfig struct {
	GCInterval              string  `koanf:"gc_interval"`
	GCThreshold             float64 `koanf:"gc_threshold"`
	CacheSize               int64   `koanf:"cache_size"`
	ValueLogFileSize        int64   `koanf:"value_log_file_size"`
	NumMemtables            int     `koanf:"num_memtables"`
	NumLevelZeroTables      int     `koanf:"num_level_zero_tables"`
	NumLevelZeroTablesStall int     `koanf:"num_level_zero_tables_stall"`
	SyncWrites              bool    `koanf:"sync_writes"`
	DetectConflicts         bool    `koanf:"detect_conflicts"`
}

// AdminSection configures the minimal-mode admin endpoint that accepts
// "ping" and "configure" before the data plane is up.
type AdminSection struct {
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
