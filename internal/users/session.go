package users

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/store"
)

// Session is the document stored under SessionKey.
type Session struct {
	UserID     string    `json:"user_id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// Login points the session at the user. The user must exist.
func (d *Directory) Login(ctx context.Context, id string) (domain.User, error) {
	user, err := d.Get(id)
	if err != nil {
		return domain.User{}, err
	}

	data, err := json.Marshal(Session{UserID: id, LoggedInAt: d.clock.Now()})
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal session: %w", err)
	}
	_, version, _, err := store.LoadDocument[Session](ctx, d.kv, SessionKey)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := d.kv.CompareAndPut(ctx, SessionKey, data, version, d.origin); err != nil {
		return domain.User{}, fmt.Errorf("save session: %w", err)
	}
	return user, nil
}

// Logout clears the session.
func (d *Directory) Logout(ctx context.Context) error {
	return d.kv.Delete(ctx, SessionKey, d.origin)
}

// Current returns the logged-in user. A session pointing at a user that no
// longer exists is treated as logged out.
func (d *Directory) Current(ctx context.Context) (domain.User, error) {
	session, _, found, err := store.LoadDocument[Session](ctx, d.kv, SessionKey)
	if err != nil {
		return domain.User{}, err
	}
	if !found || session.UserID == "" {
		return domain.User{}, ErrNotLoggedIn
	}
	user, err := d.Get(session.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: session user %s is gone", ErrNotLoggedIn, session.UserID)
	}
	return user, nil
}
