// Package storage provides the Replicated Environment Manager: a
// Badger-backed, per-partition key-value store plus the separate,
// non-replicated VersionDatabase used for the startup compatibility
// check.
package storage

import (
	"context"
	"io"
)

// Engine is the embedded key-value storage an Environment namespaces by
// partition. Kept as an interface (rather than a concrete *BadgerEngine
// dependency throughout the package) so Environment can be tested
// against a fake rather than a real Badger instance. VersionDatabase does
// not use it; it opens its own Badger database directly.
type Engine interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error
	DeletePrefix(ctx context.Context, prefix []byte) (int, error)

	SaveSnapshot(ctx context.Context) (io.ReadCloser, error)
	LoadSnapshot(ctx context.Context, r io.Reader) error

	GC(ctx context.Context) (uint64, error)
	Stats(ctx context.Context) (*KVStats, error)

	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	TotalSize        uint64
	LSMSize          uint64
	ValueLogSize     uint64
	LastGCTime       int64
	GCBytesReclaimed uint64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	Dir    string
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs. Default: 10m.
	GCInterval string
	// GCThreshold is the GC discard ratio threshold (0.0-1.0). Default: 0.5.
	GCThreshold float64
	// CacheSize is the block cache size in bytes. Default: 64MB.
	CacheSize int64
	// ValueLogFileSize is the max value log file size in bytes. Default: 1GB.
	ValueLogFileSize int64
	// NumMemtables is the number of memtables. Default: 2.
	NumMemtables int
	// NumLevelZeroTables is the L0 table count before compaction. Default: 5.
	NumLevelZeroTables int
	// NumLevelZeroTablesStall is the L0 table count that stalls writes. Default: 10.
	NumLevelZeroTablesStall int
	// SyncWrites enables fsync after every write. Default: false. The
	// partition environment does not sync per write either: a request's
	// Durability is not consulted when its write is stored.
	SyncWrites bool
	// DetectConflicts enables transaction conflict detection. Default: true
	// (partition data has concurrent writers across overlapping keys and
	// benefits from detection).
	DetectConflicts bool
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{Dir: dir, Badger: DefaultBadgerConfig()}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               64 << 20,
		ValueLogFileSize:        1 << 30,
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              false,
		DetectConflicts:         true,
	}
}
