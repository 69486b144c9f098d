package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/dkeye/roomchat/internal/domain"
)

const (
	sealedInfo   = "roomchat-sealed-v1"
	sealedPrefix = "s1:"
	minSecretLen = 16
)

var ErrSecretTooShort = errors.New("codec: sealed secret must be at least 16 bytes")

// Sealed authenticates and encrypts text with XChaCha20-Poly1305. The room key
// mixes the room code with a deployment secret, so reading the store alone
// does not reveal messages.
type Sealed struct {
	secret []byte
}

func NewSealed(secret []byte) (*Sealed, error) {
	if len(secret) < minSecretLen {
		return nil, ErrSecretTooShort
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Sealed{secret: s}, nil
}

func (s *Sealed) DeriveKey(code domain.RoomCode) Key {
	r := hkdf.New(sha256.New, s.secret, []byte(code), []byte(sealedInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return ""
	}
	return Key(key)
}

func (s *Sealed) Obscure(plaintext string, key Key) string {
	if len(key) != chacha20poly1305.KeySize {
		return plaintext
	}
	aead, err := chacha20poly1305.NewX([]byte(key))
	if err != nil {
		return plaintext
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return plaintext
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed)
}

// Open is the strict form of Reveal: it reports ErrUndecodable instead of
// passing the input through.
func (s *Sealed) Open(ciphertext string, key Key) (string, error) {
	if len(key) != chacha20poly1305.KeySize {
		return "", fmt.Errorf("%w: bad key length", ErrUndecodable)
	}
	payload, ok := strings.CutPrefix(ciphertext, sealedPrefix)
	if !ok {
		return "", fmt.Errorf("%w: missing prefix", ErrUndecodable)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	aead, err := chacha20poly1305.NewX([]byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: payload too short", ErrUndecodable)
	}
	nonce, box := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", fmt.Errorf("%w: wrong key or tampered payload", ErrUndecodable)
	}
	return string(plain), nil
}

func (s *Sealed) Reveal(ciphertext string, key Key) string {
	plain, err := s.Open(ciphertext, key)
	if err != nil {
		return ciphertext
	}
	return plain
}
