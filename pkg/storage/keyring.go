package storage

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the identifier used for all progrev credentials in the
	// system keyring.
	ServiceName = "progrev"

	// OperatorKey is the credential key holding the operator identity used
	// as the default author on revisions and state changes.
	OperatorKey = "operator"
)

// CredentialStore defines the interface for secure credential storage.
// The CLI uses it for the permission-service API token and the operator
// identity; neither belongs in plain config files on a shared shop-floor
// terminal.
type CredentialStore interface {
	// Set stores a credential securely
	Set(key string, value string) error
	// Get retrieves a credential
	Get(key string) (string, error)
	// Delete removes a credential
	Delete(key string) error
	// List returns all credential keys (not the values)
	List() ([]string, error)
}

// KeyringCredentialStore implements CredentialStore using the system keyring.
// - macOS: Uses Keychain
// - Windows: Uses Credential Manager
// - Linux: Uses Secret Service (GNOME Keyring, KWallet)
type KeyringCredentialStore struct {
	service string
}

// NewKeyringCredentialStore creates a new keyring-based credential store.
func NewKeyringCredentialStore() *KeyringCredentialStore {
	return &KeyringCredentialStore{
		service: ServiceName,
	}
}

// Set stores a credential securely in the system keyring.
func (s *KeyringCredentialStore) Set(key string, value string) error {
	if key == "" {
		return fmt.Errorf("credential key cannot be empty")
	}

	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	// Index update failures leave the credential stored but unlisted.
	_ = s.addToIndex(key)

	return nil
}

// Get retrieves a credential from the system keyring.
func (s *KeyringCredentialStore) Get(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("credential key cannot be empty")
	}

	value, err := keyring.Get(s.service, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", fmt.Errorf("credential not found: %s", key)
		}
		return "", fmt.Errorf("failed to retrieve credential: %w", err)
	}

	return value, nil
}

// Delete removes a credential from the system keyring.
func (s *KeyringCredentialStore) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("credential key cannot be empty")
	}

	err := keyring.Delete(s.service, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("credential not found: %s", key)
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	_ = s.removeFromIndex(key)

	return nil
}

// List returns all credential keys stored by progrev. The index is stored
// as a special entry named "__progrev_index__".
func (s *KeyringCredentialStore) List() ([]string, error) {
	indexJSON, err := keyring.Get(s.service, "__progrev_index__")
	if err != nil {
		if err == keyring.ErrNotFound {
			// No credentials stored yet
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to retrieve credential index: %w", err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(indexJSON), &keys); err != nil {
		return nil, fmt.Errorf("failed to parse credential index: %w", err)
	}

	return keys, nil
}

// addToIndex adds a key to the credential index.
func (s *KeyringCredentialStore) addToIndex(key string) error {
	keys, err := s.List()
	if err != nil {
		return err
	}

	for _, k := range keys {
		if k == key {
			return nil // Already in index
		}
	}

	return s.saveIndex(append(keys, key))
}

// removeFromIndex removes a key from the credential index.
func (s *KeyringCredentialStore) removeFromIndex(key string) error {
	keys, err := s.List()
	if err != nil {
		return err
	}

	newKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			newKeys = append(newKeys, k)
		}
	}

	return s.saveIndex(newKeys)
}

// saveIndex saves the credential index to the keyring.
func (s *KeyringCredentialStore) saveIndex(keys []string) error {
	indexJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal credential index: %w", err)
	}

	if err := keyring.Set(s.service, "__progrev_index__", string(indexJSON)); err != nil {
		return fmt.Errorf("failed to save credential index: %w", err)
	}

	return nil
}
