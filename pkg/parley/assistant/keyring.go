// Package assistant – keyring.go provides secret storage using the operating
// system's native keyring (Linux: Secret Service, macOS: Keychain, Windows:
// Credential Manager).
//
// Priority for resolving secrets:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (DISCORD_BOT_TOKEN, PARLEY_API_KEY, ...)
//  3. .env file (loaded by godotenv before resolution runs)
package assistant

import (
	"os"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name used in the OS keyring.
const keyringService = "parley"

// StoreSecret saves a secret to the OS keyring.
func StoreSecret(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetSecret retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetSecret(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteSecret removes a secret from the OS keyring.
func DeleteSecret(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__parley_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecret looks a secret up in the keyring first, then the environment.
func ResolveSecret(keyringKey, envVar string) string {
	if val := GetSecret(keyringKey); val != "" {
		return val
	}
	return os.Getenv(envVar)
}
