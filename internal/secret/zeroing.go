// Package secret provides memory-zeroing helpers for sensitive material
// (passphrases, derived key bytes) that must never outlive the request
// that carries them, per the ownership rules in the data model: Identity
// values are cloned into the passphrase broker only transiently and must
// be zeroised before the owning function returns.
package secret

import "crypto/subtle"

// Zero overwrites b with zeros in a way the compiler will not optimize
// away, using a constant-time copy from a zero buffer.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// ZeroAll zeros every slice passed to it. Useful for cleaning up several
// related buffers (passphrase bytes, confirmation bytes) in one call.
func ZeroAll(slices ...[]byte) {
	for _, s := range slices {
		Zero(s)
	}
}

// String wraps a sensitive string so it can be explicitly zeroed. Go
// strings are immutable, so String keeps the original bytes in a private
// buffer and hands out copies only through Value(); Close zeros the
// backing buffer once the caller is done with it.
type String struct {
	data   []byte
	closed bool
}

// NewString copies s into a String that owns a zeroable backing buffer.
func NewString(s string) *String {
	return &String{data: []byte(s)}
}

// Value returns the wrapped string. Returns "" once Close has been called.
func (s *String) Value() string {
	if s == nil || s.closed {
		return ""
	}
	return string(s.data)
}

// Len reports the byte length of the wrapped string.
func (s *String) Len() int {
	if s == nil || s.closed {
		return 0
	}
	return len(s.data)
}

// Close zeros the backing buffer. Idempotent.
func (s *String) Close() {
	if s == nil || s.closed {
		return
	}
	Zero(s.data)
	s.data = nil
	s.closed = true
}
