package model

import "time"

// AccountStatus is the sale eligibility of an account.
type AccountStatus string

const (
	AccountAvailable AccountStatus = "AVAILABLE"
	AccountReserved  AccountStatus = "RESERVED"
	AccountSold      AccountStatus = "SOLD"
	AccountHidden    AccountStatus = "HIDDEN"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountAvailable, AccountReserved, AccountSold, AccountHidden:
		return true
	}
	return false
}

// Account is a sellable game account.
// Credentials are sealed and never serialized.
type Account struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Price       int64         `json:"price"`
	Rank        string        `json:"rank"`
	HeroCount   int           `json:"hero_count"`
	SkinCount   int           `json:"skin_count"`
	Skins       []string      `json:"skins,omitempty"`
	Status      AccountStatus `json:"status"`
	Credentials []byte        `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Concealed returns a copy without the attributes that are revealed only
// once the account is sold.
func (a *Account) Concealed() *Account {
	c := *a
	c.Skins = nil
	c.Credentials = nil
	return &c
}

// Credentials is the decrypted login of an account.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
