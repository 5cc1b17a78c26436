package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// MaxAttempts bounds how often Atomically re-runs its function after
// losing a version race.
const MaxAttempts = 5

// Txn stages collection reads and writes across several keys. Reads record
// the version they saw; Commit writes every staged key with
// compare-and-swap against those versions in a single transaction.
//
// A Txn is not safe for concurrent use.
type Txn struct {
	ctx       context.Context
	kv        KV
	read      map[string]int64
	staged    map[string][]byte
	committed map[string]int64
}

func newTxn(ctx context.Context, kv KV) *Txn {
	return &Txn{
		ctx:    ctx,
		kv:     kv,
		read:   make(map[string]int64),
		staged: make(map[string][]byte),
	}
}

// Context returns the context the transaction runs under.
func (tx *Txn) Context() context.Context {
	return tx.ctx
}

// Version returns the version a key was committed at, or the version it
// was read at if the transaction has not committed or did not write it.
func (tx *Txn) Version(key string) int64 {
	if v, ok := tx.committed[key]; ok {
		return v
	}
	return tx.read[key]
}

// Load reads the collection under key within tx. Staged values shadow
// the store, so a function sees its own writes.
func Load[T any](tx *Txn, key string) ([]T, error) {
	if data, ok := tx.staged[key]; ok {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("load staged %s: %w", key, err)
		}
		return items, nil
	}

	items, version, err := LoadCollection[T](tx.ctx, tx.kv, key)
	if err != nil {
		return nil, err
	}
	if _, seen := tx.read[key]; !seen {
		tx.read[key] = version
	}
	return items, nil
}

// Stage records items as the new value of key. The key must have been
// read with Load first so its expected version is known.
func Stage[T any](tx *Txn, key string, items []T) error {
	if _, seen := tx.read[key]; !seen {
		return fmt.Errorf("stage %s: key was not loaded in this transaction", key)
	}
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("stage %s: marshal: %w", key, err)
	}
	tx.staged[key] = data
	return nil
}

func (tx *Txn) commit(origin string) error {
	if len(tx.staged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.staged))
	for k := range tx.staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]Write, 0, len(keys))
	for _, k := range keys {
		writes = append(writes, Write{Key: k, Value: tx.staged[k], Expected: tx.read[k]})
	}
	versions, err := tx.kv.CompareAndPutAll(tx.ctx, writes, origin)
	if err != nil {
		return err
	}
	tx.committed = versions
	return nil
}

// Atomically runs fn against a fresh Txn and commits what it staged. If
// another origin wrote one of the keys in the meantime, fn is run again on
// the newer data, up to MaxAttempts times. An error from fn aborts
// without writing anything.
func Atomically(ctx context.Context, kv KV, origin string, fn func(*Txn) error) (*Txn, error) {
	for attempt := 1; ; attempt++ {
		tx := newTxn(ctx, kv)
		if err := fn(tx); err != nil {
			return nil, err
		}

		err := tx.commit(origin)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= MaxAttempts {
			return nil, err
		}
		slog.Debug("collection changed underneath, retrying",
			"origin", origin,
			"attempt", attempt,
			"error", err,
		)
	}
}
