package grid

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/xjson"
	"github.com/hashicorp/raft"
)

const (
	keyActive     = "cluster/active"
	keyBaseline   = "cluster/baseline"
	datasetPrefix = "dataset/"
)

// FSM applies committed grid commands to the state database. Every command is
// safe to replay: activation and dataset creation are idempotent and an
// unchanged baseline keeps its revision.
type FSM struct {
	db     *badger.DB
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewFSM(db *badger.DB, logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		db:     db,
		logger: logger.With("component", "grid-fsm"),
	}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	cmd, err := domain.UnmarshalCommand(log.Data)
	if err != nil {
		f.logger.Error("failed to unmarshal command", "error", err)
		return &domain.CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to unmarshal command: %v", err),
		}
	}
	return f.applyCommand(cmd)
}

func (f *FSM) applyCommand(cmd *domain.Command) *domain.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case domain.CommandActivate:
		return f.applyActivate(cmd)
	case domain.CommandSetBaseline:
		return f.applySetBaseline(cmd)
	case domain.CommandCreateDataset:
		return f.applyCreateDataset(cmd)
	default:
		f.logger.Error("unknown command type", "command_type", cmd.Type)
		return &domain.CommandResult{
			Success: false,
			Error:   fmt.Sprintf("unknown command type: %v", cmd.Type),
		}
	}
}

func (f *FSM) applyActivate(cmd *domain.Command) *domain.CommandResult {
	value := []byte("false")
	if cmd.Active {
		value = []byte("true")
	}

	if err := f.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyActive), value)
	}); err != nil {
		return failed(err)
	}

	return &domain.CommandResult{Success: true}
}

func (f *FSM) applySetBaseline(cmd *domain.Command) *domain.CommandResult {
	nodes := domain.NewNodeSet(cmd.Baseline...)
	if len(nodes) == 0 {
		return &domain.CommandResult{Success: false, Error: "baseline topology cannot be empty"}
	}

	var revision uint64
	err := f.db.Update(func(txn *badger.Txn) error {
		var current domain.BaselineTopology
		if err := getJSON(txn, keyBaseline, &current); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if slices.Equal(current.Nodes, nodes) {
			revision = current.Revision
			return nil
		}

		next := domain.BaselineTopology{Revision: current.Revision + 1, Nodes: nodes}
		revision = next.Revision
		return setJSON(txn, keyBaseline, next)
	})
	if err != nil {
		return failed(err)
	}

	return &domain.CommandResult{Success: true, Revision: revision}
}

func (f *FSM) applyCreateDataset(cmd *domain.Command) *domain.CommandResult {
	if cmd.Dataset == nil || cmd.Dataset.Name == "" {
		return &domain.CommandResult{Success: false, Error: "dataset name cannot be empty"}
	}

	key := datasetPrefix + cmd.Dataset.Name
	created := false
	err := f.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		created = true
		return setJSON(txn, key, cmd.Dataset)
	})
	if err != nil {
		return failed(err)
	}

	if created {
		f.logger.Info("dataset created", "dataset", cmd.Dataset.Name, "created_by", cmd.Dataset.CreatedBy)
	}
	return &domain.CommandResult{Success: true, Created: created}
}

func (f *FSM) Active() (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var active bool
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyActive))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			active = string(val) == "true"
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return active, err
}

func (f *FSM) Baseline() (domain.BaselineTopology, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var baseline domain.BaselineTopology
	err := f.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyBaseline, &baseline)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.BaselineTopology{}, nil
	}
	return baseline, err
}

func (f *FSM) DatasetNames() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var names []string
	err := f.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(datasetPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), datasetPrefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snapshot := &fsmSnapshot{Data: make(map[string][]byte)}
	err := f.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			snapshot.Data[string(item.Key())] = value
		}
		return nil
	})
	if err != nil {
		f.logger.Error("failed to create FSM snapshot", "error", err)
		return nil, err
	}

	f.logger.Debug("FSM snapshot created", "keys", len(snapshot.Data))
	return snapshot, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot fsmSnapshot
	if err := xjson.NewDecoder(rc).Decode(&snapshot); err != nil {
		f.logger.Error("failed to decode snapshot", "error", err)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.db.DropAll(); err != nil {
		f.logger.Error("failed to drop state during restore", "error", err)
		return err
	}

	err := f.db.Update(func(txn *badger.Txn) error {
		for key, value := range snapshot.Data {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		f.logger.Error("failed to restore FSM state", "error", err)
		return err
	}

	f.logger.Info("FSM restored from snapshot", "keys", len(snapshot.Data))
	return nil
}

type fsmSnapshot struct {
	Data map[string][]byte `json:"data"`
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		b, err := xjson.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := sink.Write(b); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		_ = sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}

func getJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return xjson.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key string, value interface{}) error {
	data, err := xjson.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func failed(err error) *domain.CommandResult {
	return &domain.CommandResult{Success: false, Error: err.Error()}
}
