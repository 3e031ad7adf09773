package model

import (
	"net"
	"strconv"
	"time"
)

// DefaultIMAPPort is the implicit-TLS IMAP port used when none is given.
const DefaultIMAPPort = 993

// Account holds the connection details for one mailbox server.
type Account struct {
	// ID is the unique identifier for this account.
	ID string `db:"id" json:"id"`

	// DisplayName is the user-defined label shown in the account list.
	DisplayName string `db:"display_name" json:"display_name"`

	Host     string `db:"host" json:"host"`
	Port     int    `db:"port" json:"port"`
	Username string `db:"username" json:"username"`

	// Secret is the login password. It is kept in the system keyring
	// and never written to the database.
	Secret string `db:"-" json:"-"`

	// UseEncryption selects implicit TLS over a plain connection.
	UseEncryption bool `db:"use_encryption" json:"use_encryption"`

	CreatedAt time.Time `db:"-" json:"created_at"`
	UpdatedAt time.Time `db:"-" json:"updated_at"`
}

// NewAccount returns an Account with the default port and encryption on.
func NewAccount(displayName, host, username, secret string) Account {
	return Account{
		DisplayName:   displayName,
		Host:          host,
		Port:          DefaultIMAPPort,
		Username:      username,
		Secret:        secret,
		UseEncryption: true,
	}
}

// Address returns the host:port dial address.
func (a Account) Address() string {
	port := a.Port
	if port == 0 {
		port = DefaultIMAPPort
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

// Label returns the "name (username)" string used in listings.
func (a Account) Label() string {
	return a.DisplayName + " (" + a.Username + ")"
}

// SecretKey returns the keyring key under which the account secret is stored.
func (a Account) SecretKey() string {
	return "account-" + a.ID
}
