package grid

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/hashicorp/raft"
	raftbadger "github.com/rfyiamcool/raft-badger"
	"go.uber.org/multierr"
)

const storageComponent = "adapters.grid.Storage"

// Storage holds the on-disk resources of one node: the consensus log and
// stable store under the WAL directory, snapshots under the WAL archive and
// the applied grid state under the storage directory.
type Storage struct {
	logStore      raft.LogStore
	stableStore   raft.StableStore
	snapshotStore raft.SnapshotStore
	stateDB       *badger.DB
}

type StorageConfig struct {
	LogDir      string
	SnapshotDir string
	StateDir    string
	// Quiet drops badger and snapshot chatter below warn.
	Quiet bool
}

func StorageConfigFor(cfg domain.StorageConfiguration, quiet bool) StorageConfig {
	return StorageConfig{
		LogDir:      cfg.WALPath,
		SnapshotDir: cfg.WALArchivePath,
		StateDir:    cfg.StoragePath,
		Quiet:       quiet,
	}
}

func newStorageError(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := append([]domain.ErrorOption{domain.WithComponent(storageComponent)}, opts...)
	return domain.NewStorageError(message, cause, merged...)
}

func NewStorage(cfg StorageConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for name, dir := range map[string]string{"log_dir": cfg.LogDir, "snapshot_dir": cfg.SnapshotDir, "state_dir": cfg.StateDir} {
		if dir == "" {
			return nil, newStorageError(name+" is required", nil)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newStorageError(
				"failed to create storage directory",
				err,
				domain.WithContextDetail(name, dir),
			)
		}
	}

	logOpts := tunedBadgerOptions(cfg.LogDir, logger.With("component", "grid.badger-wal"))
	store, err := raftbadger.New(raftbadger.Config{DataPath: cfg.LogDir}, &logOpts)
	if err != nil {
		return nil, newStorageError(
			"failed to open write-ahead log",
			err,
			domain.WithContextDetail("log_dir", cfg.LogDir),
		)
	}

	snapshotLogger := newHCLogger(logger.With("component", "grid.snapshots"), cfg.Quiet)
	snapshotStore, err := raft.NewFileSnapshotStoreWithLogger(cfg.SnapshotDir, 2, snapshotLogger)
	if err != nil {
		_ = store.Close()
		return nil, newStorageError(
			"failed to open snapshot store",
			err,
			domain.WithContextDetail("snapshot_dir", cfg.SnapshotDir),
		)
	}

	stateOpts := tunedBadgerOptions(cfg.StateDir, logger.With("component", "grid.badger-state"))
	stateDB, err := badger.Open(stateOpts)
	if err != nil {
		_ = store.Close()
		return nil, newStorageError(
			"failed to open state database",
			err,
			domain.WithContextDetail("state_dir", cfg.StateDir),
		)
	}

	return &Storage{
		logStore:      logCompat{LogStore: store},
		stableStore:   stableCompat{StableStore: store},
		snapshotStore: snapshotStore,
		stateDB:       stateDB,
	}, nil
}

func tunedBadgerOptions(dir string, logger *slog.Logger) badger.Options {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.MemTableSize = 16 << 20
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 2
	opts.NumLevelZeroTablesStall = 4
	opts.BlockCacheSize = 8 << 20
	opts.IndexCacheSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	return opts
}

// HasExistingState reports whether an earlier run left consensus entries or a
// snapshot behind. Such a node rejoins its cluster and never forms a new one.
func (s *Storage) HasExistingState() bool {
	if s == nil || s.logStore == nil || s.snapshotStore == nil {
		return false
	}
	lastIndex, err := s.logStore.LastIndex()
	if err == nil && lastIndex > 0 {
		return true
	}
	snapshots, err := s.snapshotStore.List()
	return err == nil && len(snapshots) > 0
}

func (s *Storage) LogStore() raft.LogStore           { return s.logStore }
func (s *Storage) StableStore() raft.StableStore     { return s.stableStore }
func (s *Storage) SnapshotStore() raft.SnapshotStore { return s.snapshotStore }
func (s *Storage) StateDB() *badger.DB               { return s.stateDB }

// Close releases every store. The log and stable store share one badger
// instance, so it is closed once.
func (s *Storage) Close() error {
	var errs error

	if s.stateDB != nil {
		errs = multierr.Append(errs, s.stateDB.Close())
		s.stateDB = nil
	}

	if closer, ok := s.logStore.(interface{ Close() error }); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	s.logStore = nil
	s.stableStore = nil
	s.snapshotStore = nil

	return errs
}

type stableCompat struct {
	raft.StableStore
}

func (s stableCompat) Get(key []byte) ([]byte, error) {
	value, err := s.StableStore.Get(key)
	if isNotFound(err) {
		return nil, nil
	}
	return value, err
}

func (s stableCompat) GetUint64(key []byte) (uint64, error) {
	value, err := s.StableStore.GetUint64(key)
	if isNotFound(err) {
		return 0, nil
	}
	return value, err
}

type logCompat struct {
	raft.LogStore
}

func (l logCompat) GetLog(index uint64, out *raft.Log) error {
	err := l.LogStore.GetLog(index, out)
	if isNotFound(err) {
		return raft.ErrLogNotFound
	}
	return err
}

func (l logCompat) Close() error {
	if closer, ok := l.LogStore.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (l logCompat) FirstIndex() (uint64, error) {
	idx, err := l.LogStore.FirstIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func (l logCompat) LastIndex() (uint64, error) {
	idx, err := l.LogStore.LastIndex()
	if isNotFound(err) {
		return 0, nil
	}
	return idx, err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, badger.ErrKeyNotFound) ||
		strings.Contains(err.Error(), "not found") ||
		strings.Contains(err.Error(), "no such key")
}

type badgerLogger struct {
	logger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(string, ...interface{}) {}

func (b *badgerLogger) Debugf(string, ...interface{}) {}
