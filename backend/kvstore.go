// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package backend

//go:generate mockgen -source kvstore.go -destination kvstore_mocks.go -package backend

// KVStore is a transactional store of named persistent maps. All writes
// performed through its maps since the last Commit form a single transaction:
// Commit makes them durable together, Rollback discards them together.
//
// Implementations must recover from a crash on open: if Version() reports a
// non-zero version, Rollback() is invoked to discard any half-written
// transaction of a previous process. Callers can therefore assume the store
// always presents the content of the last successful Commit.
type KVStore interface {
	// OpenMap provides a handle for the named map, creating it on first use.
	// Handles are cached; opening the same name twice yields the same map.
	OpenMap(name string) (Map, error)

	// Commit makes all writes since the last Commit durable as one atomic
	// transaction and advances the store version.
	Commit() error

	// Rollback discards all writes since the last Commit.
	Rollback() error

	// Version provides the number of successful commits of this store.
	Version() (uint64, error)

	// Close releases the store. Uncommitted writes are discarded.
	Close() error
}

// Map is a persistent byte-keyed map within a KVStore. Writes are buffered
// in the owning store's open transaction until committed.
type Map interface {
	// Get provides the value stored for the key and whether it is present.
	Get(key []byte) ([]byte, bool, error)

	// Put stores the value for the key, overwriting any previous value.
	Put(key, value []byte) error

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(key []byte) error

	// Keys lists all keys of the map in byte-lexicographic order, including
	// uncommitted writes of the open transaction.
	Keys() ([][]byte, error)
}
