// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the RLIMIT_MEMLOCK below which sealing still works
// but locked pages may fail to allocate.
const MinMlockLimitKB = 64

// ErrSecretMissing is returned by Open on an unset secret.
var ErrSecretMissing = errors.New("secret not configured")

var (
	memguardInitOnce sync.Once
	mlockSufficient  bool
	mlockLimitKB     int64
)

// Secret is an API key sealed in an encrypted memguard enclave.
//
// A nil *Secret is valid and reports Present() == false.
//
// Thread Safety: Safe for concurrent use.
type Secret struct {
	enclave *memguard.Enclave
}

// SealSecret moves value into an enclave. An empty value yields nil.
func SealSecret(value string) *Secret {
	if value == "" {
		return nil
	}
	initMemguard()
	// NewEnclave wipes the slice it is given.
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// Present reports whether the secret was configured.
func (s *Secret) Present() bool {
	return s != nil && s.enclave != nil
}

// Open decrypts the secret. The returned string is a copy; the locked
// buffer is destroyed before returning.
func (s *Secret) Open() (string, error) {
	if !s.Present() {
		return "", ErrSecretMissing
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Reveal is Open without the error; failures yield "".
func (s *Secret) Reveal() string {
	v, err := s.Open()
	if err != nil && !errors.Is(err, ErrSecretMissing) {
		slog.Warn("Failed to open sealed secret", "error", err)
	}
	return v
}

// String never prints the value.
func (s *Secret) String() string {
	if s.Present() {
		return "[sealed]"
	}
	return "[unset]"
}

// MlockStatus reports the memlock limit observed at first seal.
func MlockStatus() (sufficient bool, limitKB int64) {
	initMemguard()
	return mlockSufficient, mlockLimitKB
}

// PurgeSecrets wipes every sealed secret and the memguard session key.
// Call it once the server has shut down; secrets cannot be opened
// afterwards.
//
// Signals are left to the caller so that shutdown stays graceful.
func PurgeSecrets() {
	memguard.Purge()
	slog.Info("Purged secure memory")
}

func initMemguard() {
	memguardInitOnce.Do(func() {
		mlockSufficient, mlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized", "mlock_limit_kb", mlockLimitKB)
		} else {
			slog.Warn("mlock limit is low; sealed secrets may fail to open",
				"mlock_limit_kb", mlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		}
	})
}

// checkMlockLimit returns whether RLIMIT_MEMLOCK is at least
// MinMlockLimitKB, and the limit (-1 when unlimited or unknown).
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}
