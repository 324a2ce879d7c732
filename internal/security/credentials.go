// Package security keeps warehouse secrets in the operating system keyring.
package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	apperrors "hcahps/pkg/errors"
)

// keyringService is the service name entries are filed under
const keyringService = "hcahps"

// Credential represents a stored credential
type Credential struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CredentialStore reads and writes credentials in the system keyring
type CredentialStore struct {
	service string
}

// NewCredentialStore creates a store using the default service name
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{service: keyringService}
}

// WarehouseKey names the keyring entry of a warehouse login
func WarehouseKey(dialect, username string) string {
	return fmt.Sprintf("warehouse/%s/%s", strings.ToLower(dialect), username)
}

// Store saves a credential, replacing any previous value
func (cs *CredentialStore) Store(name, credType, value string, metadata map[string]string) error {
	data, err := json.Marshal(Credential{
		Name:     name,
		Type:     credType,
		Value:    value,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(cs.service, name, string(data)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCredentials, "failed to store credential in keyring").
			WithContext("name", name)
	}
	return nil
}

// Get retrieves a credential
func (cs *CredentialStore) Get(name string) (*Credential, error) {
	data, err := keyring.Get(cs.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrCodeCredentials, "no credential stored in keyring").
			WithContext("name", name).
			WithSuggestions("Run 'hcahps warehouse login' to store the warehouse password")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCredentials, "failed to read keyring").
			WithContext("name", name)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Delete removes a credential. Deleting a missing entry is not an error.
func (cs *CredentialStore) Delete(name string) error {
	err := keyring.Delete(cs.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return apperrors.Wrap(err, apperrors.ErrCodeCredentials, "failed to delete credential").
			WithContext("name", name)
	}
	return nil
}

// Password returns the stored warehouse password for dialect and user
func (cs *CredentialStore) Password(dialect, username string) (string, error) {
	cred, err := cs.Get(WarehouseKey(dialect, username))
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

// SetPassword stores the warehouse password for dialect and user
func (cs *CredentialStore) SetPassword(dialect, username, password string) error {
	return cs.Store(WarehouseKey(dialect, username), "password", password, map[string]string{
		"dialect":  dialect,
		"username": username,
	})
}
