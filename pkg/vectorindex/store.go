package vectorindex

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/veldtdb/veldt/pkg/graph"
)

// indexRecord is the durable form of one indexed vector: enough to
// rebuild the proximity graph and map hits back to their owner.
type indexRecord struct {
	VectorGUID string    `json:"v"`
	NodeGUID   string    `json:"n,omitempty"`
	EdgeGUID   string    `json:"e,omitempty"`
	Embedding  []float32 `json:"emb"`
}

// indexStore persists index records for one graph. The RAM variant keeps
// them in process memory only; the Badger variant survives restarts and
// is reloaded without a rebuild.
type indexStore interface {
	put(rec indexRecord) error
	remove(vectorGUID string) error
	load(fn func(indexRecord) error) error
	putMeta(cfg graph.VectorIndexConfig) error
	meta() (*graph.VectorIndexConfig, error)
	diskSize() int64
	clear() error
	close() error
}

// ramStore is the volatile variant.
type ramStore struct {
	mu      sync.RWMutex
	records map[string]indexRecord
	cfg     *graph.VectorIndexConfig
}

func newRAMStore() *ramStore {
	return &ramStore{records: make(map[string]indexRecord)}
}

func (s *ramStore) put(rec indexRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.VectorGUID] = rec
	return nil
}

func (s *ramStore) remove(vectorGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, vectorGUID)
	return nil
}

func (s *ramStore) load(fn func(indexRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *ramStore) putMeta(cfg graph.VectorIndexConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	return nil
}

func (s *ramStore) meta() (*graph.VectorIndexConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, nil
}

func (s *ramStore) diskSize() int64 { return 0 }

func (s *ramStore) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]indexRecord)
	s.cfg = nil
	return nil
}

func (s *ramStore) close() error { return nil }

// Key prefixes for the Badger layout. Single bytes keep keys compact.
const (
	prefixRecord = byte(0x01) // 0x01 + vectorGUID -> JSON(indexRecord)
	prefixMeta   = byte(0x02) // 0x02 -> JSON(VectorIndexConfig)
)

// badgerStore is the durable variant: one Badger directory per graph,
// opened with memory-constrained settings since index payloads are
// small and many graphs may hold an index at once.
type badgerStore struct {
	db  *badger.DB
	dir string
}

func newBadgerStore(dir string) (*badgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open index store %s: %v", graph.ErrStorage, dir, err)
	}
	return &badgerStore{db: db, dir: dir}, nil
}

func recordKey(vectorGUID string) []byte {
	key := make([]byte, 0, len(vectorGUID)+1)
	key = append(key, prefixRecord)
	return append(key, vectorGUID...)
}

func (s *badgerStore) put(rec indexRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal index record: %v", graph.ErrStorage, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.VectorGUID), payload)
	})
	if err != nil {
		return fmt.Errorf("%w: put index record %s: %v", graph.ErrStorage, rec.VectorGUID, err)
	}
	return nil
}

func (s *badgerStore) remove(vectorGUID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(vectorGUID))
	})
	if err != nil {
		return fmt.Errorf("%w: remove index record %s: %v", graph.ErrStorage, vectorGUID, err)
	}
	return nil
}

func (s *badgerStore) load(fn func(indexRecord) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixRecord}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec indexRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: load index records: %v", graph.ErrStorage, err)
	}
	return nil
}

func (s *badgerStore) putMeta(cfg graph.VectorIndexConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: marshal index meta: %v", graph.ErrStorage, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte{prefixMeta}, payload)
	})
	if err != nil {
		return fmt.Errorf("%w: put index meta: %v", graph.ErrStorage, err)
	}
	return nil
}

func (s *badgerStore) meta() (*graph.VectorIndexConfig, error) {
	var cfg *graph.VectorIndexConfig
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{prefixMeta})
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var c graph.VectorIndexConfig
			if err := json.Unmarshal(val, &c); err != nil {
				return err
			}
			cfg = &c
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read index meta: %v", graph.ErrStorage, err)
	}
	return cfg, nil
}

func (s *badgerStore) diskSize() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

func (s *badgerStore) clear() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("%w: clear index store: %v", graph.ErrStorage, err)
	}
	return nil
}

func (s *badgerStore) close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close index store: %v", graph.ErrStorage, err)
	}
	return nil
}
