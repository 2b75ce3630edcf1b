package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"

	"github.com/kvgrid/kvgrid/internal/kvdomain"
)

// environmentIDKey is the fixed key the environment's own 16-byte
// EnvironmentUUID identity is stored under, alongside the version stamp
// in the same non-replicated database.
const environmentIDKey = "kvgrid.environment-id"

// VersionDatabase is a small, non-replicated database holding a single
// record under kvdomain.VersionStampKey, written with SyncWrites so the
// fsync happens before the replicated environment is allowed to open.
type VersionDatabase struct {
	db  *badger.DB
	dir string
}

// OpenVersionDatabase opens (or creates) the version database at dir.
// SyncWrites is forced on regardless of the caller's general Badger
// tuning: the version stamp write is the one place a lost fsync can
// desynchronize on-disk state from the code that last touched it.
func OpenVersionDatabase(dir string) (*VersionDatabase, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open version database: %w", err)
	}

	return &VersionDatabase{db: db, dir: dir}, nil
}

// Read returns the stored version stamp. The second return value is
// false when no stamp has ever been written (first-time open).
func (v *VersionDatabase) Read() (kvdomain.VersionStamp, bool, error) {
	var stamp kvdomain.VersionStamp
	found := false

	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kvdomain.VersionStampKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stamp)
		})
	})
	if err != nil {
		return kvdomain.VersionStamp{}, false, fmt.Errorf("storage: read version stamp: %w", err)
	}

	return stamp, found, nil
}

// Stamp writes the current version stamp and flushes it to stable
// storage via fsync. A failed write here is always fatal to the caller:
// the process must not proceed with an in-memory upgrade that the
// version stamp does not reflect on disk.
func (v *VersionDatabase) Stamp(stamp kvdomain.VersionStamp) error {
	data, err := json.Marshal(stamp)
	if err != nil {
		return fmt.Errorf("storage: marshal version stamp: %w", err)
	}

	if err := v.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kvdomain.VersionStampKey), data)
	}); err != nil {
		return fmt.Errorf("storage: write version stamp: %w", err)
	}

	if err := v.db.Sync(); err != nil {
		return fmt.Errorf("storage: fsync version stamp: %w", err)
	}

	return nil
}

// EnvironmentID returns this node's environment identity, generating and
// persisting one with oklog/ulid on first call if none exists yet. The
// identity is stable across restarts: it is read back from disk, not
// regenerated, on every subsequent open.
func (v *VersionDatabase) EnvironmentID() (kvdomain.EnvironmentUUID, error) {
	var id kvdomain.EnvironmentUUID
	found := false

	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(environmentIDKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != len(id) {
				return fmt.Errorf("storage: stored environment id has wrong length %d", len(val))
			}
			copy(id[:], val)
			return nil
		})
	})
	if err != nil {
		return id, fmt.Errorf("storage: read environment id: %w", err)
	}
	if found {
		return id, nil
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	newID := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	copy(id[:], newID[:])

	if err := v.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(environmentIDKey), id[:])
	}); err != nil {
		return id, fmt.Errorf("storage: write environment id: %w", err)
	}
	if err := v.db.Sync(); err != nil {
		return id, fmt.Errorf("storage: fsync environment id: %w", err)
	}

	return id, nil
}

// Close closes the version database.
func (v *VersionDatabase) Close() error {
	return v.db.Close()
}

// CheckAndStamp reads the on-disk stamp, decides compatibility against
// kvdomain.CurrentVersion, and either treats a missing stamp as
// first-time open or runs the supplied upgrade hook before writing the
// new stamp. Returns kvdomain.ErrUpgradeRequired, a fatal error, when
// the on-disk stamp cannot be opened by this build.
func (v *VersionDatabase) CheckAndStamp(ctx context.Context, logger *slog.Logger, upgradeHook func(ctx context.Context, onDisk kvdomain.VersionStamp) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	onDisk, found, err := v.Read()
	if err != nil {
		return err
	}

	if !found {
		logger.Info("version database empty, treating as first-time open",
			"code_version", kvdomain.CurrentVersion.String())
		return v.Stamp(kvdomain.CurrentVersion)
	}

	if onDisk.Compare(kvdomain.CurrentVersion) == 0 {
		return nil
	}

	if !kvdomain.CompatibilityCheck(onDisk, kvdomain.CurrentVersion) {
		return kvdomain.Wrap(kvdomain.ErrUpgradeRequired, nil,
			fmt.Sprintf("on-disk version %s is not upgrade-compatible with code version %s",
				onDisk, kvdomain.CurrentVersion))
	}

	logger.Info("running version upgrade",
		"on_disk_version", onDisk.String(),
		"code_version", kvdomain.CurrentVersion.String())

	if upgradeHook != nil {
		if err := upgradeHook(ctx, onDisk); err != nil {
			return fmt.Errorf("storage: version upgrade hook: %w", err)
		}
	}

	return v.Stamp(kvdomain.CurrentVersion)
}
