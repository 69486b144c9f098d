package codec

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/roomchat/internal/domain"
)

// Legacy is base64(plaintext + key). It is reversible by anyone holding the
// room code.
type Legacy struct{}

func (Legacy) DeriveKey(code domain.RoomCode) Key {
	return Key(base64.StdEncoding.EncodeToString([]byte(code)))
}

func (Legacy) Obscure(plaintext string, key Key) string {
	if key == "" || !utf8.ValidString(plaintext) {
		return plaintext
	}
	return base64.StdEncoding.EncodeToString([]byte(plaintext + string(key)))
}

// Reveal decodes and strips the trailing key. A payload that is not base64
// comes back unchanged; a payload obscured under another key keeps that key's
// suffix, so it does not read as the original text.
func (Legacy) Reveal(ciphertext string, key Key) string {
	if key == "" {
		return ciphertext
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ciphertext
	}
	return strings.TrimSuffix(string(raw), string(key))
}
