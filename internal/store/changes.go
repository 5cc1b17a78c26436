package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	opPut    = "put"
	opDelete = "delete"
)

// Change is one entry of the change log.
type Change struct {
	Seq    int64  `json:"seq"`
	Key    string `json:"key"`
	Origin string `json:"origin"`
	Op     string `json:"op"`
}

// Deleted reports whether the change removed the key.
func (c Change) Deleted() bool {
	return c.Op == opDelete
}

func appendChange(ctx context.Context, tx *sql.Tx, key, origin, op string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changes (key, origin, op) VALUES (?, ?, ?)
	`, key, origin, op)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// ChangesSince returns changes with seq > after, oldest first.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ChangesSince(ctx context.Context, after int64) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, key, origin, op
		FROM changes
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.Key, &c.Origin, &c.Op); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// LastSeq returns the newest change sequence number, or 0 if none.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Watcher polls the change log and delivers changes written by other origins.
type Watcher struct {
	store    *Store
	origin   string
	interval time.Duration
	keys     map[string]bool
	after    int64
}

// NewWatcher creates a watcher for origin. Changes already in the log are
// skipped; only writes after this call are delivered. If keys is empty,
// every key is watched.
func (s *Store) NewWatcher(ctx context.Context, origin string, interval time.Duration, keys ...string) (*Watcher, error) {
	if interval <= 0 {
		interval = time.Second
	}
	after, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		store:    s,
		origin:   origin,
		interval: interval,
		after:    after,
	}
	if len(keys) > 0 {
		w.keys = make(map[string]bool, len(keys))
		for _, k := range keys {
			w.keys[k] = true
		}
	}
	return w, nil
}

// Poll fetches pending foreign changes once and advances the cursor.
func (w *Watcher) Poll(ctx context.Context) ([]Change, error) {
	changes, err := w.store.ChangesSince(ctx, w.after)
	if err != nil {
		return nil, err
	}

	out := []Change{}
	for _, c := range changes {
		w.after = c.Seq
		if c.Origin == w.origin {
			continue
		}
		if w.keys != nil && !w.keys[c.Key] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Run polls until ctx is cancelled, sending each foreign change on the
// returned channel. The channel is closed when Run stops. Poll errors are
// logged and polling continues.
func (w *Watcher) Run(ctx context.Context) <-chan Change {
	ch := make(chan Change)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changes, err := w.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("change poll failed", "origin", w.origin, "error", err)
				continue
			}

			for _, c := range changes {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch
}
