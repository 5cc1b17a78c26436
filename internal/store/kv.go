package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one stored document.
type Entry struct {
	Key       string
	Value     []byte
	Version   int64
	Origin    string
	UpdatedAt time.Time
}

// KV is the subset of Store that collection owners depend on.
type KV interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	CompareAndPut(ctx context.Context, key string, value []byte, expected int64, origin string) (int64, error)
	CompareAndPutAll(ctx context.Context, writes []Write, origin string) (map[string]int64, error)
	Delete(ctx context.Context, key, origin string) error
}

// Write is one versioned write within a batch.
type Write struct {
	Key      string
	Value    []byte
	Expected int64
}

// Get returns the entry for key. found is false if the key is absent.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	return getEntry(ctx, s.db, key)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntry(ctx context.Context, q querier, key string) (Entry, bool, error) {
	var (
		e         Entry
		value     string
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT key, value, version, origin, updated_at
		FROM kv
		WHERE key = ?
	`, key).Scan(&e.Key, &value, &e.Version, &e.Origin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %q: %w", key, err)
	}

	e.Value = []byte(value)
	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %q: parse updated_at: %w", key, err)
	}
	return e, true, nil
}

// Put writes value under key unconditionally and returns the new version.
func (s *Store) Put(ctx context.Context, key string, value []byte, origin string) (int64, error) {
	versions, err := s.writeAll(ctx, []Write{{Key: key, Value: value, Expected: -1}}, origin)
	if err != nil {
		return 0, err
	}
	return versions[key], nil
}

// CompareAndPut writes value only if the stored version equals expected.
// An expected version of 0 means the key must not exist yet.
// Returns the new version, or an error wrapping ErrVersionConflict.
func (s *Store) CompareAndPut(ctx context.Context, key string, value []byte, expected int64, origin string) (int64, error) {
	versions, err := s.writeAll(ctx, []Write{{Key: key, Value: value, Expected: expected}}, origin)
	if err != nil {
		return 0, err
	}
	return versions[key], nil
}

// CompareAndPutAll applies every write in one transaction. If any stored
// version differs from its Expected, nothing is written and the error
// wraps ErrVersionConflict. Returns the new version of each key.
func (s *Store) CompareAndPutAll(ctx context.Context, writes []Write, origin string) (map[string]int64, error) {
	return s.writeAll(ctx, writes, origin)
}

// writeAll performs the upserts and change-log appends in one transaction.
// Expected < 0 skips the version check for that write.
func (s *Store) writeAll(ctx context.Context, writes []Write, origin string) (map[string]int64, error) {
	for _, w := range writes {
		if !json.Valid(w.Value) {
			return nil, fmt.Errorf("put %q: value is not valid JSON", w.Key)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	updatedAt := s.now().UTC().Format(time.RFC3339Nano)
	versions := make(map[string]int64, len(writes))
	for _, w := range writes {
		current, _, err := getEntry(ctx, tx, w.Key)
		if err != nil {
			return nil, fmt.Errorf("put %q: %w", w.Key, err)
		}
		if w.Expected >= 0 && current.Version != w.Expected {
			return nil, fmt.Errorf("put %q: %w: expected version %d, found %d",
				w.Key, ErrVersionConflict, w.Expected, current.Version)
		}

		next := current.Version + 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, version, origin, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				version = excluded.version,
				origin = excluded.origin,
				updated_at = excluded.updated_at
		`, w.Key, string(w.Value), next, origin, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("put %q: upsert: %w", w.Key, err)
		}

		if err := appendChange(ctx, tx, w.Key, origin, opPut); err != nil {
			return nil, fmt.Errorf("put %q: %w", w.Key, err)
		}
		versions[w.Key] = next
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put: commit: %w", err)
	}
	return versions, nil
}

// Delete removes key. Deleting an absent key is not an error but is still
// recorded so watchers converge.
func (s *Store) Delete(ctx context.Context, key, origin string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %q: begin tx: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if err := appendChange(ctx, tx, key, origin, opDelete); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %q: commit: %w", key, err)
	}
	return nil
}

// Keys returns every stored key in sorted order.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Dump returns every stored document keyed by name. Values that are not
// valid JSON (only possible via direct DB edits) are exported as strings.
func (s *Store) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query dump: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan dump: %w", err)
		}
		if json.Valid([]byte(v)) {
			out[k] = json.RawMessage(v)
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("quote %q: %w", k, err)
		}
		out[k] = quoted
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dump: %w", err)
	}
	return out, nil
}
