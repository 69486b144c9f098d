package blob

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/domain"
)

func fixedClock() time.Time { return time.UnixMilli(1700000000123) }

func TestObjectName(t *testing.T) {
	at := fixedClock()
	assert.Equal(t, "rooms/ABC/1700000000123_cat.png", ObjectName("ABC", "cat.png", at))
	assert.Equal(t, "rooms/ABC/1700000000123_passwd", ObjectName("ABC", "../../etc/passwd", at))
	assert.Equal(t, "rooms/ABC/1700000000123_evil.txt", ObjectName("ABC", `C:\tmp\evil.txt`, at))
	assert.Equal(t, "rooms/ABC/1700000000123_file", ObjectName("ABC", "..", at))
}

func TestFSStoreUploadAndFetch(t *testing.T) {
	s := NewFSStoreOn(afero.NewMemMapFs(), "")
	s.now = fixedClock
	ctx := context.Background()

	ref, err := s.Upload(ctx, "ABC", []byte("png bytes"), "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "/files/rooms/ABC/1700000000123_cat.png", ref)

	data, err := s.Fetch(ctx, strings.TrimPrefix(ref, "/files/"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestFSStoreRejects(t *testing.T) {
	s := NewFSStoreOn(afero.NewMemMapFs(), "/media/")
	ctx := context.Background()

	_, err := s.Upload(ctx, "ABC", []byte("x"), "  ")
	assert.ErrorIs(t, err, domain.ErrFileNameEmpty)

	for _, name := range []string{"", "rooms/../secret", "etc/passwd", "/rooms/ABC/missing.png"} {
		_, err := s.Fetch(ctx, name)
		assert.ErrorIs(t, err, domain.ErrNotFound, "name %q", name)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Upload(cancelled, "ABC", []byte("x"), "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObjectStore(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("Skipping test: TEST_NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewObjectStore(ctx, url, "roomchat-test-"+uuid.NewString()[:8], "")
	if err != nil {
		t.Skipf("Skipping test: NATS not available: %v", err)
	}
	defer s.Close()
	defer func() { _ = s.js.DeleteObjectStore(context.Background(), s.bucket) }()

	ref, err := s.Upload(ctx, "ABC", []byte("%PDF-1.7"), "doc.pdf")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "/files/rooms/ABC/"))

	data, err := s.Fetch(ctx, strings.TrimPrefix(ref, "/files/"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = s.Fetch(ctx, "rooms/ABC/nope.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
