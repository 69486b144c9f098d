// Package codec obscures message text with a key derived from the room code.
//
// Legacy is the wire-compatible scheme: base64 of the text with the key
// appended. Anyone who knows the room code can derive the key, so it only
// hides text from casual inspection of the store. Sealed replaces it with
// XChaCha20-Poly1305 keyed by HKDF over the room code and a server secret
// that never enters the store.
//
// Both implementations fail open: Obscure returns the plaintext when it cannot
// encode, and Reveal returns its input when it cannot decode.
package codec

import (
	"errors"
	"fmt"

	"github.com/dkeye/roomchat/internal/domain"
)

// Key is the per-room secret held only in a joined session's memory.
type Key string

type Codec interface {
	DeriveKey(code domain.RoomCode) Key
	Obscure(plaintext string, key Key) string
	Reveal(ciphertext string, key Key) string
}

const (
	SchemeLegacy = "legacy"
	SchemeSealed = "sealed"
)

var ErrUndecodable = errors.New("codec: undecodable payload")

// New returns the codec for a configured scheme. The secret is required by
// the sealed scheme and ignored by the legacy one.
func New(scheme, secret string) (Codec, error) {
	switch scheme {
	case "", SchemeLegacy:
		return Legacy{}, nil
	case SchemeSealed:
		return NewSealed([]byte(secret))
	default:
		return nil, fmt.Errorf("codec: unknown scheme %q", scheme)
	}
}
