package backend

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Physical key layout of the LevelDB-backed store:
//   - map entries: one byte holding the map-name length, the map name,
//     and the entry key; names are 1..255 bytes, so the empty-name prefix
//     0x00 never collides with a map entry
//   - store metadata: the reserved 0x00 prefix
var versionKey = []byte{0x00, 'v'}

const maxMapNameLength = 255

// writeSyncOptions makes every commit an fsync'ed write.
var writeSyncOptions = &opt.WriteOptions{Sync: true}

// LevelDbStore is a KVStore over a single LevelDB instance. Map writes are
// buffered in an in-memory overlay; Commit flushes the overlay and the
// incremented store version in one leveldb batch, which LevelDB applies
// atomically. The on-disk image therefore always reflects the last
// successful Commit, which is the crash-recovery contract of KVStore.
type LevelDbStore struct {
	db      *leveldb.DB
	mu      sync.Mutex
	maps    map[string]*ldbMap
	pending map[string]pendingWrite
	version uint64
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// OpenLevelDbStore opens the LevelDB instance at the given path and wraps it
// as a KVStore. If the store was committed to before, the pending transaction
// is rolled back as demanded by the KVStore recovery contract.
func OpenLevelDbStore(path string, options *opt.Options) (*LevelDbStore, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB %s; %w", path, err)
	}
	store := &LevelDbStore{
		db:      db,
		maps:    map[string]*ldbMap{},
		pending: map[string]pendingWrite{},
	}
	data, err := db.Get(versionKey, nil)
	if err != nil && err != leveldb.ErrNotFound {
		db.Close()
		return nil, fmt.Errorf("failed to read store version; %w", err)
	}
	if err == nil {
		store.version = binary.BigEndian.Uint64(data)
	}
	if store.version > 0 {
		if err := store.Rollback(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *LevelDbStore) OpenMap(name string) (Map, error) {
	if len(name) == 0 || len(name) > maxMapNameLength {
		return nil, fmt.Errorf("invalid map name length %d", len(name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, exists := s.maps[name]; exists {
		return m, nil
	}
	prefix := make([]byte, 0, 1+len(name))
	prefix = append(prefix, byte(len(name)))
	prefix = append(prefix, name...)
	m := &ldbMap{store: s, prefix: prefix}
	s.maps[name] = m
	return m, nil
}

func (s *LevelDbStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	for key, write := range s.pending {
		if write.deleted {
			batch.Delete([]byte(key))
		} else {
			batch.Put([]byte(key), write.value)
		}
	}
	version := make([]byte, 8)
	binary.BigEndian.PutUint64(version, s.version+1)
	batch.Put(versionKey, version)
	if err := s.db.Write(batch, writeSyncOptions); err != nil {
		return fmt.Errorf("failed to commit store version %d; %w", s.version+1, err)
	}
	s.version++
	s.pending = map[string]pendingWrite{}
	return nil
}

func (s *LevelDbStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = map[string]pendingWrite{}
	return nil
}

func (s *LevelDbStore) Version() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *LevelDbStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.maps = nil
	return s.db.Close()
}

func (s *LevelDbStore) get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	if write, exists := s.pending[string(key)]; exists {
		s.mu.Unlock()
		if write.deleted {
			return nil, false, nil
		}
		return write.value, true, nil
	}
	s.mu.Unlock()
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key; %w", err)
	}
	return data, true, nil
}

func (s *LevelDbStore) put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return fmt.Errorf("store is closed")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.pending[string(key)] = pendingWrite{value: stored}
	return nil
}

func (s *LevelDbStore) delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return fmt.Errorf("store is closed")
	}
	s.pending[string(key)] = pendingWrite{deleted: true}
	return nil
}

// keysWithPrefix merges the committed iterator view with the pending overlay.
func (s *LevelDbStore) keysWithPrefix(prefix []byte) ([][]byte, error) {
	present := map[string]bool{}
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for it.Next() {
		present[string(it.Key()[len(prefix):])] = true
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate keys; %w", err)
	}

	s.mu.Lock()
	for key, write := range s.pending {
		if len(key) < len(prefix) || key[:len(prefix)] != string(prefix) {
			continue
		}
		present[key[len(prefix):]] = !write.deleted
	}
	s.mu.Unlock()

	keys := make([][]byte, 0, len(present))
	for key, exists := range present {
		if exists {
			keys = append(keys, []byte(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i]) < string(keys[j])
	})
	return keys, nil
}

// ldbMap is a named map handle; all state lives in the owning store.
type ldbMap struct {
	store  *LevelDbStore
	prefix []byte
}

func (m *ldbMap) key(key []byte) []byte {
	full := make([]byte, 0, len(m.prefix)+len(key))
	full = append(full, m.prefix...)
	full = append(full, key...)
	return full
}

func (m *ldbMap) Get(key []byte) ([]byte, bool, error) {
	return m.store.get(m.key(key))
}

func (m *ldbMap) Put(key, value []byte) error {
	return m.store.put(m.key(key), value)
}

func (m *ldbMap) Delete(key []byte) error {
	return m.store.delete(m.key(key))
}

func (m *ldbMap) Keys() ([][]byte, error) {
	return m.store.keysWithPrefix(m.prefix)
}
