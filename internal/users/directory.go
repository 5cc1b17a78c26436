// Package users keeps the user directory and the session pointer.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/ident"
	"github.com/roach88/taskmarket/internal/store"
)

const (
	// Key is the store key holding the user collection.
	Key = "users"
	// SessionKey is the store key pointing at the logged-in user.
	SessionKey = "user"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUser        = errors.New("invalid user")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotLoggedIn        = errors.New("not logged in")
)

// Options configures a Directory. Zero values pick production defaults.
type Options struct {
	Origin     string
	IDs        ident.Generator
	Clock      ident.Clock
	BcryptCost int
}

// Directory is the user collection of one origin.
type Directory struct {
	kv     store.KV
	origin string
	ids    ident.Generator
	clock  ident.Clock
	cost   int

	mu      sync.Mutex
	users   []domain.User
	version int64
}

// New creates a directory and loads the current collection.
func New(ctx context.Context, kv store.KV, opts Options) (*Directory, error) {
	if opts.IDs == nil {
		opts.IDs = ident.UUIDv7{Prefix: "user_"}
	}
	if opts.Clock == nil {
		opts.Clock = ident.SystemClock{}
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	d := &Directory{
		kv:     kv,
		origin: opts.Origin,
		ids:    opts.IDs,
		clock:  opts.Clock,
		cost:   opts.BcryptCost,
	}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the in-memory collection with the stored one. A read
// older than what a concurrent commit installed is dropped.
func (d *Directory) Reload(ctx context.Context) error {
	items, version, err := store.LoadCollection[domain.User](ctx, d.kv, Key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.install(items, version)
	d.mu.Unlock()
	return nil
}

// install requires d.mu.
func (d *Directory) install(items []domain.User, version int64) {
	if version < d.version {
		return
	}
	d.users, d.version = items, version
}

func (d *Directory) commit(ctx context.Context, fn func(*store.Txn) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := store.Atomically(ctx, d.kv, d.origin, fn)
	if err != nil {
		return err
	}
	items, err := store.Load[domain.User](tx, Key)
	if err != nil {
		return err
	}
	d.install(items, tx.Version(Key))
	return nil
}

// SignupInput holds the fields of a new account.
type SignupInput struct {
	Name           string
	Email          string
	Password       string
	InitialBalance decimal.Decimal
}

// Signup registers a user. Emails are unique regardless of case.
func (d *Directory) Signup(ctx context.Context, in SignupInput) (domain.User, error) {
	name := domain.NormalizeText(in.Name)
	email := domain.NormalizeEmail(in.Email)
	switch {
	case name == "":
		return domain.User{}, fmt.Errorf("%w: name is required", ErrInvalidUser)
	case !strings.Contains(email, "@"):
		return domain.User{}, fmt.Errorf("%w: email %q is not valid", ErrInvalidUser, in.Email)
	case in.Password == "":
		return domain.User{}, fmt.Errorf("%w: password is required", ErrInvalidUser)
	case in.InitialBalance.IsNegative():
		return domain.User{}, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidUser)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), d.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:            d.ids.Generate(),
		Name:          name,
		Email:         email,
		PasswordHash:  string(hash),
		WalletBalance: in.InitialBalance,
		CreatedAt:     d.clock.Now(),
	}

	err = d.commit(ctx, func(tx *store.Txn) error {
		items, err := store.Load[domain.User](tx, Key)
		if err != nil {
			return err
		}
		if indexByEmail(items, email) >= 0 {
			return fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return store.Stage(tx, Key, append(items, user))
	})
	if err != nil {
		return domain.User{}, err
	}

	slog.Debug("user signed up", "user", user.ID, "email", user.Email)
	return user, nil
}

// Authenticate checks email and password against the stored hash.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (d *Directory) Authenticate(email, password string) (domain.User, error) {
	user, err := d.GetByEmail(email)
	if err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the user with the given id.
func (d *Directory) Get(id string) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := indexOf(d.users, id)
	if i < 0 {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return d.users[i], nil
}

// GetByEmail returns the user registered under email, ignoring case.
func (d *Directory) GetByEmail(email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	d.mu.Lock()
	defer d.mu.Unlock()
	i := indexByEmail(d.users, email)
	if i < 0 {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return d.users[i], nil
}

// List returns every user ordered by name.
func (d *Directory) List() []domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]domain.User{}, d.users...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProfilePatch lists the editable profile fields. Nil fields are left alone.
type ProfilePatch struct {
	Name          *string
	WalletAddress *string
}

// UpdateProfile merges the non-nil fields of p into the user.
func (d *Directory) UpdateProfile(ctx context.Context, id string, p ProfilePatch) (domain.User, error) {
	var out domain.User
	err := d.commit(ctx, func(tx *store.Txn) error {
		var err error
		out, err = MutateIn(tx, id, func(u *domain.User) error {
			if p.Name != nil {
				name := domain.NormalizeText(*p.Name)
				if name == "" {
					return fmt.Errorf("%w: name is required", ErrInvalidUser)
				}
				u.Name = name
			}
			if p.WalletAddress != nil {
				u.WalletAddress = strings.TrimSpace(*p.WalletAddress)
			}
			return nil
		})
		return err
	})
	return out, err
}

// Deposit adds funds to the user's wallet.
func (d *Directory) Deposit(ctx context.Context, id string, amount decimal.Decimal) (domain.User, error) {
	if !amount.IsPositive() {
		return domain.User{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return d.adjust(ctx, id, amount)
}

// Debit removes funds, refusing to take the balance below zero.
func (d *Directory) Debit(ctx context.Context, id string, amount decimal.Decimal) (domain.User, error) {
	if !amount.IsPositive() {
		return domain.User{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return d.adjust(ctx, id, amount.Neg())
}

// Credit adds funds received from another user.
func (d *Directory) Credit(ctx context.Context, id string, amount decimal.Decimal) (domain.User, error) {
	return d.Deposit(ctx, id, amount)
}

func (d *Directory) adjust(ctx context.Context, id string, delta decimal.Decimal) (domain.User, error) {
	var out domain.User
	err := d.commit(ctx, func(tx *store.Txn) error {
		var err error
		out, err = AdjustIn(tx, id, delta)
		return err
	})
	return out, err
}

// MutateIn applies fn to the user with the given id inside tx.
func MutateIn(tx *store.Txn, id string, fn func(*domain.User) error) (domain.User, error) {
	items, err := store.Load[domain.User](tx, Key)
	if err != nil {
		return domain.User{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u := items[i]
	if err := fn(&u); err != nil {
		return domain.User{}, err
	}
	items[i] = u
	if err := store.Stage(tx, Key, items); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// AdjustIn adds delta to the user's wallet inside tx. A result below zero
// is rejected with ErrInsufficientFunds.
func AdjustIn(tx *store.Txn, id string, delta decimal.Decimal) (domain.User, error) {
	return MutateIn(tx, id, func(u *domain.User) error {
		next := u.WalletBalance.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, u.WalletBalance, delta.Neg())
		}
		u.WalletBalance = next
		return nil
	})
}

// GetIn returns the user with the given id as seen by tx.
func GetIn(tx *store.Txn, id string) (domain.User, error) {
	items, err := store.Load[domain.User](tx, Key)
	if err != nil {
		return domain.User{}, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return items[i], nil
}

func indexOf(items []domain.User, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func indexByEmail(items []domain.User, email string) int {
	for i := range items {
		if items[i].Email == email {
			return i
		}
	}
	return -1
}
