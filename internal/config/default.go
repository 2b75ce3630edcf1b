package config

import "time"

// Default configuration values.
const (
	DefaultNumPartitions = 64
	DefaultPartitionAddr = "127.0.0.1:6180"
	DefaultAdminAddr     = "127.0.0.1:6181"

	DefaultRaftBindAddr   = "127.0.0.1:6182"
	DefaultRaftDataDir    = "/var/lib/kvgrid-server/raft"
	DefaultGossipBindAddr = "127.0.0.1:6183"
	DefaultGossipBindPort = 6183

	DefaultDataDir    = "/var/lib/kvgrid-server/data"
	DefaultVersionDir = "/var/lib/kvgrid-server/version"

	DefaultRNFailoverDelay         = 2 * time.Second
	DefaultCheckMigrationPeriod    = 500 * time.Millisecond
	DefaultServiceUnreachableDelay = 3 * time.Second
	DefaultAdminFailoverDelay      = time.Second
	DefaultCallTimeout             = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Partitions: PartitionsSection{
			NumPartitions: DefaultNumPartitions,
			Addr:          DefaultPartitionAddr,
		},
		Migration: MigrationSection{
			RNFailoverDelay:         DefaultRNFailoverDelay,
			CheckMigrationPeriod:    DefaultCheckMigrationPeriod,
			ServiceUnreachableDelay: DefaultServiceUnreachableDelay,
			AdminFailoverDelay:      DefaultAdminFailoverDelay,
			CallTimeout:             DefaultCallTimeout,
		},
		Cluster: ClusterSection{
			RaftBindAddr:   DefaultRaftBindAddr,
			RaftDataDir:    DefaultRaftDataDir,
			GossipBindAddr: DefaultGossipBindAddr,
			GossipBindPort: DefaultGossipBindPort,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			VersionDir: DefaultVersionDir,
			Badger: BadgerConfig{
				GCInterval:              "10m",
				GCThreshold:             0.5,
				CacheSize:               64 << 20,
				ValueLogFileSize:        1 << 30,
				NumMemtables:            2,
				NumLevelZeroTables:      5,
				NumLevelZeroTablesStall: 10,
				SyncWrites:              false,
				DetectConflicts:         true,
			},
		},
		Admin: AdminSection{
			Addr: DefaultAdminAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
