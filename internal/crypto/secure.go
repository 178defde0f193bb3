// Package crypto holds key material in memory for the lifetime of one scan.
// Buffers are mlocked where the platform allows and zeroed on Wipe.
//
//nolint:revive // Internal package name is intentional
package crypto

import (
	"errors"
	"runtime"
	"sync"
)

// ErrWiped is returned when a wiped secret is used.
var ErrWiped = errors.New("secret has been wiped")

// Secret is a buffer for seed bytes and other key material. The zero value
// is not usable; create one with NewSecret or SecretFromSlice.
type Secret struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewSecret allocates a zeroed secret of the given size and tries to mlock it.
func NewSecret(size int) *Secret {
	s := &Secret{data: make([]byte, size)}
	s.locked = mlock(s.data)

	runtime.SetFinalizer(s, func(s *Secret) {
		s.Wipe()
	})

	return s
}

// SecretFromSlice copies data into a new secret and zeroes the source.
func SecretFromSlice(data []byte) *Secret {
	s := NewSecret(len(data))
	copy(s.data, data)
	Zero(data)
	return s
}

// Use calls fn with the secret bytes while holding the lock. fn must not
// retain the slice.
func (s *Secret) Use(fn func([]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return ErrWiped
	}
	return fn(s.data)
}

// Locked reports whether the buffer is mlocked.
func (s *Secret) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Len returns the buffer size, or 0 once wiped.
func (s *Secret) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Wipe zeroes and unlocks the buffer. Safe to call more than once.
func (s *Secret) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	Zero(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil

	runtime.SetFinalizer(s, nil)
}

// String never prints the contents.
func (s *Secret) String() string {
	return "[REDACTED]"
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
