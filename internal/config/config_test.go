package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Partitions.NumPartitions != DefaultNumPartitions {
		t.Errorf("NumPartitions = %d, want %d", cfg.Partitions.NumPartitions, DefaultNumPartitions)
	}
	if cfg.Partitions.Addr != DefaultPartitionAddr {
		t.Errorf("Partitions.Addr = %q, want %q", cfg.Partitions.Addr, DefaultPartitionAddr)
	}
	if cfg.Migration.CallTimeout != DefaultCallTimeout {
		t.Errorf("Migration.CallTimeout = %v, want %v", cfg.Migration.CallTimeout, DefaultCallTimeout)
	}
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
	if cfg.Storage.VersionDir == cfg.Storage.DataDir {
		t.Error("default version_dir must differ from data_dir")
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestVerify_ValidConfig(t *testing.T) {
	dir := t.TempDir()

	cfg := &ServerConfig{
		Partitions: PartitionsSection{NumPartitions: 4, Addr: "127.0.0.1:6180"},
		Cluster:    ClusterSection{NodeID: "node-1", RaftBindAddr: "127.0.0.1:6182", RaftDataDir: dir + "/raft"},
		Storage:    StorageSection{DataDir: dir + "/data", VersionDir: dir + "/version"},
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestVerify_MissingNodeID(t *testing.T) {
	dir := t.TempDir()

	cfg := &ServerConfig{
		Partitions: PartitionsSection{NumPartitions: 4, Addr: "127.0.0.1:6180"},
		Cluster:    ClusterSection{RaftBindAddr: "127.0.0.1:6182", RaftDataDir: dir + "/raft"},
		Storage:    StorageSection{DataDir: dir + "/data", VersionDir: dir + "/version"},
	}

	if err := Verify(cfg); err == nil {
		t.Error("expected an error for a missing node_id")
	}
}

func TestVerify_BootstrapWithSeedsIsRejected(t *testing.T) {
	dir := t.TempDir()

	cfg := &ServerConfig{
		Partitions: PartitionsSection{NumPartitions: 4, Addr: "127.0.0.1:6180"},
		Cluster: ClusterSection{
			NodeID: "node-1", RaftBindAddr: "127.0.0.1:6182", RaftDataDir: dir + "/raft",
			Bootstrap: true, SeedNodes: []string{"127.0.0.1:6183"},
		},
		Storage: StorageSection{DataDir: dir + "/data", VersionDir: dir + "/version"},
	}

	if err := Verify(cfg); err == nil {
		t.Error("expected an error for bootstrap combined with seed_nodes")
	}
}

func TestVerify_VersionDirMustDifferFromDataDir(t *testing.T) {
	dir := t.TempDir()

	cfg := &ServerConfig{
		Partitions: PartitionsSection{NumPartitions: 4, Addr: "127.0.0.1:6180"},
		Cluster:    ClusterSection{NodeID: "node-1", RaftBindAddr: "127.0.0.1:6182", RaftDataDir: dir + "/raft"},
		Storage:    StorageSection{DataDir: dir + "/data", VersionDir: dir + "/data"},
	}

	if err := Verify(cfg); err == nil {
		t.Error("expected an error when version_dir equals data_dir")
	}
}
