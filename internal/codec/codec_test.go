package codec

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLegacyDeriveKeyIsDeterministic(t *testing.T) {
	var c Legacy
	k1 := c.DeriveKey(domain.NormalizeRoomCode("room123"))
	k2 := c.DeriveKey(domain.NormalizeRoomCode("ROOM123"))
	assert.Equal(t, k1, k2)
	assert.Equal(t, Key("Uk9PTTEyMw=="), k1)
	assert.NotEqual(t, k1, c.DeriveKey("ROOM124"))
}

func TestLegacyWireFormat(t *testing.T) {
	var c Legacy
	key := c.DeriveKey("ABC")
	// base64("hi" + base64("ABC"))
	assert.Equal(t, "aGlRVUpE", c.Obscure("hi", key))
	assert.Equal(t, "hi", c.Reveal("aGlRVUpE", key))
}

func TestLegacyRoundTrip(t *testing.T) {
	var c Legacy
	prop := func(s, room string) bool {
		code := domain.NormalizeRoomCode(room)
		if s == "" || code.IsZero() {
			return true
		}
		key := c.DeriveKey(code)
		return c.Reveal(c.Obscure(s, key), key) == s
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestLegacyRoundTripWhenTextContainsKey(t *testing.T) {
	var c Legacy
	key := c.DeriveKey("ABC")
	s := string(key) + " is the key"
	assert.Equal(t, s, c.Reveal(c.Obscure(s, key), key))
}

func TestLegacyCrossRoomRevealDoesNotRecover(t *testing.T) {
	var c Legacy
	k1 := c.DeriveKey("ALPHA")
	k2 := c.DeriveKey("BRAVO")
	require.NotEqual(t, k1, k2)
	assert.NotEqual(t, "secret plans", c.Reveal(c.Obscure("secret plans", k1), k2))
}

func TestLegacyFailsOpen(t *testing.T) {
	var c Legacy
	key := c.DeriveKey("ABC")

	assert.Equal(t, "not base64 !!", c.Reveal("not base64 !!", key))
	assert.Equal(t, "plain", c.Obscure("plain", ""))
	assert.Equal(t, "plain", c.Reveal("plain", ""))

	invalid := string([]byte{0xff, 0xfe})
	assert.Equal(t, invalid, c.Obscure(invalid, key))
}

func TestSealedRoundTrip(t *testing.T) {
	c, err := NewSealed([]byte(testSecret))
	require.NoError(t, err)
	key := c.DeriveKey("ABC")
	assert.Equal(t, key, c.DeriveKey(domain.NormalizeRoomCode("abc")))

	ct := c.Obscure("hello", key)
	assert.True(t, strings.HasPrefix(ct, sealedPrefix))
	assert.NotEqual(t, ct, c.Obscure("hello", key), "nonce must differ per message")
	assert.Equal(t, "hello", c.Reveal(ct, key))

	plain, err := c.Open(ct, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestSealedWrongKey(t *testing.T) {
	c, err := NewSealed([]byte(testSecret))
	require.NoError(t, err)
	ct := c.Obscure("hello", c.DeriveKey("ABC"))

	other := c.DeriveKey("XYZ")
	assert.Equal(t, ct, c.Reveal(ct, other))
	_, err = c.Open(ct, other)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = c.Open("garbage", other)
	assert.ErrorIs(t, err, ErrUndecodable)
	_, err = c.Open(sealedPrefix+"AAAA", other)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestSealedKeysDependOnSecret(t *testing.T) {
	a, err := NewSealed([]byte(testSecret))
	require.NoError(t, err)
	b, err := NewSealed([]byte(strings.ToUpper(testSecret)))
	require.NoError(t, err)
	assert.NotEqual(t, a.DeriveKey("ABC"), b.DeriveKey("ABC"))
}

func TestNew(t *testing.T) {
	c, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, Legacy{}, c)

	c, err = New(SchemeSealed, testSecret)
	require.NoError(t, err)
	assert.IsType(t, &Sealed{}, c)

	_, err = New(SchemeSealed, "short")
	assert.ErrorIs(t, err, ErrSecretTooShort)

	_, err = New("rot13", "")
	assert.Error(t, err)
}
