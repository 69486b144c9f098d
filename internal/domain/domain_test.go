package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomCode(t *testing.T) {
	tests := []struct {
		raw  string
		want RoomCode
	}{
		{"abc", "ABC"},
		{"ABC", "ABC"},
		{"  room123 ", "ROOM123"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRoomCode(tt.raw), "raw %q", tt.raw)
	}
	assert.Equal(t, NormalizeRoomCode("abc"), NormalizeRoomCode("ABC"))
}

func TestRoomCodeValidate(t *testing.T) {
	assert.ErrorIs(t, RoomCode("").Validate(), ErrInvalidInput)
	assert.ErrorIs(t, NormalizeRoomCode(strings.Repeat("x", MaxRoomCodeLen+1)).Validate(), ErrRoomCodeTooLong)
	assert.NoError(t, NormalizeRoomCode("lobby").Validate())
}

func TestNewMember(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	m, err := NewMember("  alice ", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.DisplayName)
	assert.Equal(t, now, m.JoinedAt)
	assert.NotEmpty(t, m.ID)

	other, err := NewMember("alice", now)
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, other.ID)

	_, err = NewMember(" \t", now)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = NewMember(strings.Repeat("n", MaxDisplayNameLen+1), now)
	assert.ErrorIs(t, err, ErrDisplayNameTooLong)
}

func TestSizeKB(t *testing.T) {
	assert.Equal(t, 0.0, SizeKB(0))
	assert.Equal(t, 1.0, SizeKB(1024))
	assert.Equal(t, 1.5, SizeKB(1536))
	assert.Equal(t, 0.01, SizeKB(10))
	assert.Equal(t, 2048.0, SizeKB(2*1024*1024))
}

func TestMessageConstructorsAndValidate(t *testing.T) {
	now := time.Now()
	bob := Member{ID: "m-1", DisplayName: "bob"}

	sys := NewSystemMessage(JoinedText("bob"), now)
	assert.Equal(t, KindSystem, sys.Kind)
	assert.Equal(t, "bob joined the room", sys.Text)
	assert.Equal(t, SystemSender, sys.Sender)
	assert.False(t, sys.Encoded)
	assert.NoError(t, sys.Validate())

	txt := NewTextMessage(bob, "b2s=", true, now)
	assert.Equal(t, MemberID("m-1"), txt.SenderID)
	assert.True(t, txt.Encoded)
	assert.NoError(t, txt.Validate())

	file := NewFileMessage(bob, "cat.png", 2048, "/files/rooms/ABC/1_cat.png", now)
	assert.Equal(t, 2.0, file.FileSizeKB)
	assert.NoError(t, file.Validate())

	assert.ErrorIs(t, Message{Kind: "poll"}.Validate(), ErrUnknownKind)
	assert.ErrorIs(t, NewTextMessage(bob, "  ", false, now).Validate(), ErrInvalidInput)
	assert.ErrorIs(t, NewFileMessage(bob, "", 1, "ref", now).Validate(), ErrFileNameEmpty)
	assert.Equal(t, "bob left the room", LeftText("bob"))
}
