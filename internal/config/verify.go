package config

import (
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyPartitions(&cfg.Partitions); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster); err != nil {
		return err
	}
	return verifyStorage(&cfg.Storage)
}

func verifyPartitions(cfg *PartitionsSection) error {
	if cfg.NumPartitions < 1 {
		return errors.New("partitions.num_partitions must be at least 1")
	}
	if cfg.Addr == "" {
		return errors.New("partitions.addr is required")
	}
	return nil
}

func verifyCluster(cfg *ClusterSection) error {
	if cfg.NodeID == "" {
		return errors.New("cluster.node_id is required")
	}
	if cfg.RaftBindAddr == "" {
		return errors.New("cluster.raft_bind_addr is required")
	}
	if cfg.RaftDataDir == "" {
		return errors.New("cluster.raft_data_dir is required")
	}
	if cfg.Bootstrap && len(cfg.SeedNodes) > 0 {
		return errors.New("cluster.bootstrap should not specify seed_nodes (mutually exclusive)")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.VersionDir == "" {
		return errors.New("storage.version_dir is required")
	}
	if cfg.VersionDir == cfg.DataDir {
		return errors.New("storage.version_dir must be distinct from storage.data_dir")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if err := os.MkdirAll(cfg.VersionDir, 0750); err != nil {
		return errors.New("cannot create version directory: " + err.Error())
	}
	return nil
}
