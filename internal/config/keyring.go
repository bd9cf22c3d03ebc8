/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// Keychain service and key for the history database password.
const (
	keyringService    = "diearea"
	keyringPGPassword = "history_pg_password"
)

// TokenStore abstracts the OS keychain so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// PostgresPassword returns the stored history database password.
// A missing entry is not an error; the empty string is returned.
func PostgresPassword() (string, error) {
	v, err := tokenStore.Get(keyringService, keyringPGPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// SetPostgresPassword stores the history database password in the keychain.
func SetPostgresPassword(pw string) error {
	pw = strings.TrimSpace(pw)
	if pw == "" {
		return errors.New("empty password")
	}
	return tokenStore.Set(keyringService, keyringPGPassword, pw)
}

// ForgetPostgresPassword removes the stored password, if any.
func ForgetPostgresPassword() error {
	err := tokenStore.Delete(keyringService, keyringPGPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
