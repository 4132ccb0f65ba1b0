// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"errors"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService names this SDK's entries in the OS keyring
	// (macOS Keychain, Secret Service, Windows Credential Manager).
	keyringService = "pulselab"

	// keyringUser is the account entry holding the API key.
	keyringUser = "api_key"
)

// resolveAPIKey picks the API key: explicit config wins, then the
// environment, then the OS keyring. An unavailable or locked keyring is
// treated as key-not-found, never as an error; credentials are optional
// until a component that needs them is wired.
func resolveAPIKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if key := os.Getenv("PULSELAB_API_KEY"); key != "" {
		return key
	}

	key, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			// Locked keychain, missing D-Bus service, headless CI.
			return ""
		}
		return ""
	}
	return key
}

// StoreAPIKey saves the API key in the OS keyring for later sessions.
func StoreAPIKey(key string) error {
	return keyring.Set(keyringService, keyringUser, key)
}

// DeleteAPIKey removes the stored API key from the OS keyring.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
