// Package credential resolves and stores the PackyCode API token.
//
// Lookup order is the PBURN_TOKEN environment variable, then the OS keyring,
// then the token saved in config.toml.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/99designs/keyring"

	"github.com/theirongolddev/pburn/internal/model"
)

const (
	// EnvToken overrides every stored token.
	EnvToken = "PBURN_TOKEN"

	serviceName = "pburn"
	itemKey     = "api-token"
)

var (
	// ErrNoToken means no source produced a token.
	ErrNoToken = fmt.Errorf("credential: no API token found (set %s or run `pburn config set-token`): %w", EnvToken, model.ErrAuth)
	// ErrNoKeyring means no OS keyring backend is available.
	ErrNoKeyring = errors.New("credential: no OS keyring available")
)

// Source names where a token came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceConfig  Source = "config"
)

// Manager reads and writes the token. The zero value is not usable; build one
// with Open or New.
type Manager struct {
	ring      keyring.Keyring // nil when no backend is available
	getenv    func(string) string
	fileToken string
}

// secureBackends excludes the plaintext file backend, so a missing keyring
// degrades to the config-file token rather than a password prompt.
var secureBackends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.WinCredBackend,
	keyring.SecretServiceBackend,
	keyring.KWalletBackend,
	keyring.KeyCtlBackend,
	keyring.PassBackend,
}

// Open connects to the OS keyring. fileToken is the [api] token from
// config.toml, used as the last resort. An unavailable keyring is not an error.
func Open(fileToken string) *Manager {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          secureBackends,
		KeychainTrustApplication: true,
		KeyCtlScope:              "user",
		LibSecretCollectionName:  "login",
	})
	if err != nil {
		ring = nil
	}
	return New(ring, fileToken)
}

// New builds a manager around an explicit keyring, which may be nil.
func New(ring keyring.Keyring, fileToken string) *Manager {
	return &Manager{ring: ring, getenv: os.Getenv, fileToken: strings.TrimSpace(fileToken)}
}

// HasKeyring reports whether an OS keyring backend is in use.
func (m *Manager) HasKeyring() bool { return m.ring != nil }

// Resolve returns the first token found, in lookup order.
func (m *Manager) Resolve() (Token, error) {
	if v := strings.TrimSpace(m.getenv(EnvToken)); v != "" {
		return newToken(v, SourceEnv), nil
	}
	if m.ring != nil {
		item, err := m.ring.Get(itemKey)
		switch {
		case err == nil && len(strings.TrimSpace(string(item.Data))) > 0:
			return newToken(strings.TrimSpace(string(item.Data)), SourceKeyring), nil
		case err != nil && !errors.Is(err, keyring.ErrKeyNotFound):
			return Token{}, fmt.Errorf("credential: reading keyring: %w", err)
		}
	}
	if m.fileToken != "" {
		return newToken(m.fileToken, SourceConfig), nil
	}
	return Token{}, ErrNoToken
}

// TokenSource adapts Resolve for the API client.
func (m *Manager) TokenSource(context.Context) (string, error) {
	t, err := m.Resolve()
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// Set stores value in the keyring.
func (m *Manager) Set(value string) error {
	value = strings.TrimSpace(value)
	if err := Validate(value, time.Now()); err != nil {
		return err
	}
	if m.ring == nil {
		return ErrNoKeyring
	}
	if err := m.ring.Set(keyring.Item{
		Key:         itemKey,
		Data:        []byte(value),
		Label:       "pburn API token",
		Description: "PackyCode API token used by pburn",
	}); err != nil {
		return fmt.Errorf("credential: writing keyring: %w", err)
	}
	return nil
}

// Clear removes the keyring token. Removing a missing token is not an error.
func (m *Manager) Clear() error {
	if m.ring == nil {
		return nil
	}
	if err := m.ring.Remove(itemKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("credential: removing keyring entry: %w", err)
	}
	return nil
}
