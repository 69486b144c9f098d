// Package blob stores file attachments. Objects are named
// rooms/<CODE>/<unixmillis>_<filename> regardless of the backend.
package blob

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/roomchat/internal/domain"
)

// ObjectName builds the object name of an upload made at t.
func ObjectName(code domain.RoomCode, fileName string, t time.Time) string {
	return path.Join("rooms", code.String(), strconv.FormatInt(t.UnixMilli(), 10)+"_"+sanitize(fileName))
}

// sanitize keeps the base name and drops path separators and control runes.
func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}

// validName rejects names that could escape the rooms/ tree.
func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	clean := path.Clean(name)
	return clean == name && strings.HasPrefix(clean, "rooms/") && !strings.Contains(clean, "..")
}
