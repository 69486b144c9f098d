package signal

import (
	"errors"

	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/domain"
)

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type messagesFrame struct {
	Type     string          `json:"type"`
	Room     domain.RoomCode `json:"room"`
	Messages []session.Entry `json:"messages"`
}

type joinedFrame struct {
	Type   string          `json:"type"`
	Room   domain.RoomCode `json:"room"`
	Member domain.Member   `json:"member"`
}

// errorCode maps session errors onto the codes clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrJoinFailed):
		return "join_failed"
	case errors.Is(err, domain.ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
