package app

import "github.com/dkeye/roomchat/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop_frame"
	case KickMember:
		return "kick_member"
	default:
		return "no_action"
	}
}

// Policy decides what happens to a connection whose send buffer is full.
// drops counts consecutive frames that could not be queued, this one included.
type Policy interface {
	OnBackPressure(sid core.SessionID, drops int) BackpressureAction
}

// SimplePolicy drops frames and kicks the connection after MaxDrops in a row.
// Snapshots are complete, so a dropped frame is healed by the next one.
type SimplePolicy struct {
	MaxDrops int
}

func (p SimplePolicy) OnBackPressure(_ core.SessionID, drops int) BackpressureAction {
	if p.MaxDrops > 0 && drops >= p.MaxDrops {
		return KickMember
	}
	return DropFrame
}
