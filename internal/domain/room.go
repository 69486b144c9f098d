package domain

import "strings"

const MaxRoomCodeLen = 36

// RoomCode is the shared, case-insensitive code participants use to meet.
// Always construct it with NormalizeRoomCode.
type RoomCode string

// NormalizeRoomCode trims and uppercases a raw code, so "abc" and " ABC "
// address the same room.
func NormalizeRoomCode(raw string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}

func (c RoomCode) String() string { return string(c) }

func (c RoomCode) IsZero() bool { return c == "" }

// Validate reports ErrInvalidInput for blank or oversized codes.
func (c RoomCode) Validate() error {
	if c.IsZero() {
		return ErrRoomCodeEmpty
	}
	if len(c) > MaxRoomCodeLen {
		return ErrRoomCodeTooLong
	}
	return nil
}
