package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a marketplace account.
type User struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"password_hash,omitempty"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Party returns the weak reference used by tasks and ledger records.
func (u User) Party() Party {
	return Party{ID: u.ID, Name: u.Name}
}

// Public returns a copy with the password hash stripped.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Party is an {id, name} reference to a user.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
