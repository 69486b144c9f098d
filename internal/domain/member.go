// Package domain contains the chat entities without transport or storage logic.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64

type MemberID string

// Member is one session's presence in a room. The ID is random per session and
// is not checked for collisions; a v4 UUID makes a clash negligible.
type Member struct {
	ID          MemberID  `json:"id"`
	DisplayName string    `json:"username"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// NewMember validates the display name and assigns a fresh identity.
func NewMember(displayName string, joinedAt time.Time) (*Member, error) {
	name, err := CleanDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	return &Member{
		ID:          NewMemberID(),
		DisplayName: name,
		JoinedAt:    joinedAt,
	}, nil
}

func NewMemberID() MemberID {
	return MemberID(uuid.NewString())
}

// CleanDisplayName trims surrounding whitespace and enforces length limits.
func CleanDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
