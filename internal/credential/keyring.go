package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "carfeed"

// ErrNoToken is returned when no bearer token is stored for a user.
var ErrNoToken = errors.New("no stored token")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/carfeed/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("carfeed-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store keeps per-user bearer tokens in a keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// New wraps an existing keyring, e.g. keyring.NewArrayKeyring in tests.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// tokenKey is the keyring item key for a user's bearer token.
func tokenKey(userID string) string {
	return "token:" + userID
}

// Token retrieves the bearer token stored for userID.
func (s *Store) Token(userID string) (string, error) {
	item, err := s.ring.Get(tokenKey(userID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("token for %q: %w", userID, ErrNoToken)
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %q: %w", userID, err)
	}

	return string(item.Data), nil
}

// SetToken stores the bearer token for userID.
func (s *Store) SetToken(userID string, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   tokenKey(userID),
		Data:  []byte(token),
		Label: "carfeed token for " + userID,
	})
	if err != nil {
		return fmt.Errorf("setting token for %q: %w", userID, err)
	}

	return nil
}

// DeleteToken removes the bearer token for userID. Deleting a missing
// token is not an error.
func (s *Store) DeleteToken(userID string) error {
	err := s.ring.Remove(tokenKey(userID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %q: %w", userID, err)
	}

	return nil
}
