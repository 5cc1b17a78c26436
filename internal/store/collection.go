package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// LoadCollection reads the JSON array stored under key.
//
// An absent key yields an empty collection at version 0. A document that
// fails to decode is logged and also yields an empty collection, but with
// the stored version so the next save can overwrite it. Only database
// errors are returned.
func LoadCollection[T any](ctx context.Context, kv KV, key string) ([]T, int64, error) {
	entry, found, err := kv.Get(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return []T{}, 0, nil
	}

	var items []T
	if err := json.Unmarshal(entry.Value, &items); err != nil {
		slog.Error("discarding malformed collection",
			"key", key,
			"version", entry.Version,
			"error", err,
		)
		return []T{}, entry.Version, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, entry.Version, nil
}

// SaveCollection writes items under key if the stored version still equals
// expected. Empty collections are written as [] so that clearing a
// collection persists.
func SaveCollection[T any](ctx context.Context, kv KV, key string, items []T, expected int64, origin string) (int64, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("save %s: marshal: %w", key, err)
	}
	return kv.CompareAndPut(ctx, key, data, expected, origin)
}

// LoadDocument reads a single JSON object stored under key.
// Malformed documents are logged and reported as absent.
func LoadDocument[T any](ctx context.Context, kv KV, key string) (T, int64, bool, error) {
	var zero T
	entry, found, err := kv.Get(ctx, key)
	if err != nil {
		return zero, 0, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return zero, 0, false, nil
	}

	var doc T
	if err := json.Unmarshal(entry.Value, &doc); err != nil {
		slog.Error("discarding malformed document", "key", key, "error", err)
		return zero, entry.Version, false, nil
	}
	return doc, entry.Version, true, nil
}
