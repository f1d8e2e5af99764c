package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

type Storage interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	GetByPrefix(prefix string) (map[string][]byte, error)
	IteratePrefix(prefix string, fn func(key string, value []byte) error) error
	DeleteByPrefix(prefix string) error
	PutObject(key string, obj interface{}) error
	GetObject(key string, obj interface{}) error
	PutBatch(entries map[string][]byte) error

	Close() error
	RunGC() error
}

type DBMetrics struct {
	PutCount         int64
	GetCount         int64
	DeleteCount      int64
	GetByPrefixCount int64
	Errors           int64
}

// DBStorage represents a persistent storage using BadgerDB
type DBStorage struct {
	db      *badger.DB
	mu      sync.Mutex
	config  BadgerDBConfig
	metrics DBMetrics
	logger  *zap.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	closed sync.Once
}

var _ Storage = (*DBStorage)(nil)

// Open opens the database under <DataDir>/badgerdb, or in memory.
func Open(config BadgerDBConfig, logger *zap.Logger) (*DBStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath := ""
	if !config.InMemory {
		dbPath = filepath.Join(config.DataDir, "badgerdb")
	}
	opts := badger.DefaultOptions(dbPath)
	if config.DisableLogging {
		opts.Logger = nil
	}
	opts.InMemory = config.InMemory
	opts.SyncWrites = config.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	s := &DBStorage{
		db:     db,
		config: config,
		logger: logger.Named("badger"),
	}

	// value log GC is not supported for in-memory databases
	if config.GCInterval > 0 && !config.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.startGCRoutine(config.GCInterval)
	}
	return s, nil
}

func (s *DBStorage) startGCRoutine(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				s.logger.Warn("BadgerDB GC failed", zap.Error(err))
			}
		}
	}
}

func (s *DBStorage) recordMetric(name string) {
	switch name {
	case "put":
		atomic.AddInt64(&s.metrics.PutCount, 1)
	case "get":
		atomic.AddInt64(&s.metrics.GetCount, 1)
	case "delete":
		atomic.AddInt64(&s.metrics.DeleteCount, 1)
	case "prefix":
		atomic.AddInt64(&s.metrics.GetByPrefixCount, 1)
	}
}

func (s *DBStorage) logOperation(op string, key string, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("BadgerDB operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
		atomic.AddInt64(&s.metrics.Errors, 1)
	}
}

// Metrics returns a copy of the operation counters.
func (s *DBStorage) Metrics() DBMetrics {
	return DBMetrics{
		PutCount:         atomic.LoadInt64(&s.metrics.PutCount),
		GetCount:         atomic.LoadInt64(&s.metrics.GetCount),
		DeleteCount:      atomic.LoadInt64(&s.metrics.DeleteCount),
		GetByPrefixCount: atomic.LoadInt64(&s.metrics.GetByPrefixCount),
		Errors:           atomic.LoadInt64(&s.metrics.Errors),
	}
}

// Close stops the GC routine and closes the database. It is safe to call twice.
func (s *DBStorage) Close() error {
	var err error
	s.closed.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

// Put stores a key-value pair in the database
func (s *DBStorage) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordMetric("put")

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	s.logOperation("put", key, err)
	return err
}

// PutBatch stores several pairs in one write batch.
func (s *DBStorage) PutBatch(entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range entries {
		s.recordMetric("put")
		if err := wb.Set([]byte(k), v); err != nil {
			s.logOperation("batch", k, err)
			return fmt.Errorf("failed to queue %s: %w", k, err)
		}
	}
	if err := wb.Flush(); err != nil {
		s.logOperation("batch", "", err)
		return fmt.Errorf("failed to flush batch: %w", err)
	}
	return nil
}

// Get retrieves a value from the database by key. A missing key yields ErrNotFound.
func (s *DBStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordMetric("get")

	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	s.logOperation("get", key, err)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return valCopy, nil
}

// Delete removes a key-value pair from the database
func (s *DBStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordMetric("delete")

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	s.logOperation("delete", key, err)
	return err
}

// GetByPrefix retrieves all key-value pairs with a given prefix
func (s *DBStorage) GetByPrefix(prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.IteratePrefix(prefix, func(key string, value []byte) error {
		result[key] = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IteratePrefix calls fn for every key with the prefix, in key order. The value
// slice is a copy and may be retained.
func (s *DBStorage) IteratePrefix(prefix string, fn func(key string, value []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordMetric("prefix")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), val); err != nil {
				return err
			}
		}
		return nil
	})
	s.logOperation("prefix", prefix, err)
	if err != nil {
		return fmt.Errorf("failed to iterate prefix %s: %w", prefix, err)
	}
	return nil
}

// DeleteByPrefix deletes all key-value pairs with a given prefix
func (s *DBStorage) DeleteByPrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordMetric("delete")

	err := s.db.DropPrefix([]byte(prefix))
	s.logOperation("drop", prefix, err)
	return err
}

// PutObject serializes and stores an object in the database
func (s *DBStorage) PutObject(key string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}
	return s.Put(key, data)
}

// GetObject retrieves and deserializes an object from the database
func (s *DBStorage) GetObject(key string, obj interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, obj); err != nil {
		return fmt.Errorf("failed to unmarshal object: %w", err)
	}
	return nil
}

// RunGC runs garbage collection on the database. Nothing to collect is not an error.
func (s *DBStorage) RunGC() error {
	if s.config.InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5) // Clean up if at least 50% can be discarded
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
