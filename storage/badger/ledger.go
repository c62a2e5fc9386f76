// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/storage"
)

// LedgerRepository implements storage.LedgerRepository for BadgerDB.
// One key per delivered chunk; marking is an idempotent upsert, so
// concurrent workers recording the same batch outcome cannot conflict.
type LedgerRepository struct {
	backend *Backend
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(backend *Backend) *LedgerRepository {
	return &LedgerRepository{
		backend: backend,
	}
}

// Close releases resources. The ledger holds none beyond the shared
// backend, which the owner closes.
func (r *LedgerRepository) Close() error {
	return nil
}

// MarkDelivered records the given entries. Entries without a delivery
// time are stamped with the current time.
func (r *LedgerRepository) MarkDelivered(ctx context.Context, entries ...core.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for i := range entries {
			entry := entries[i]
			if entry.DeliveredAt.IsZero() {
				entry.DeliveredAt = now
			}
			if err := tx.Set(makeLedgerKey(entry.ChunkID), storage.MarshalLedgerEntry(&entry)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: marking %d entries: %w", storage.ErrTransactionFailed, len(entries), err)
	}
	return nil
}

// IsDelivered reports whether a chunk ID is in the delivered set.
func (r *LedgerRepository) IsDelivered(ctx context.Context, chunkID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	delivered := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeLedgerKey(chunkID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		delivered = true
		return nil
	}, false)

	return delivered, err
}

// DeliveredIDs returns the full delivered set.
func (r *LedgerRepository) DeliveredIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = ledgerKeyPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids[chunkIDFromLedgerKey(iter.Item().Key())] = struct{}{}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Len reports the size of the delivered set.
func (r *LedgerRepository) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = ledgerKeyPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// GetEntry retrieves a single ledger entry by chunk ID.
// Returns storage.ErrNotFound if the chunk has not been delivered.
func (r *LedgerRepository) GetEntry(ctx context.Context, chunkID string) (*core.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *core.LedgerEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeLedgerKey(chunkID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: chunk %s", storage.ErrNotFound, chunkID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			entry, unmarshalErr = storage.UnmarshalLedgerEntry(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Clear empties the ledger.
func (r *LedgerRepository) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.backend.DropPrefix(ledgerKeyPrefix())
}
