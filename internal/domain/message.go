package domain

import (
	"math"
	"strings"
	"time"
)

type MessageKind string

const (
	KindSystem MessageKind = "system"
	KindText   MessageKind = "text"
	KindFile   MessageKind = "file"
)

// SystemSender is the sender name carried by system messages.
const SystemSender = "System"

type MessageID string

// Message is a tagged union over the system, text and file variants. ID and
// Seq are assigned by the store on append; Seq is the room's total order.
// Timestamp is display data captured by the sender and never used for ordering.
type Message struct {
	ID        MessageID   `json:"id,omitempty"`
	Seq       uint64      `json:"seq,omitempty"`
	Kind      MessageKind `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	SenderID  MemberID    `json:"senderId,omitempty"`
	Text      string      `json:"text,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Encoded   bool        `json:"encrypted"`

	FileName   string  `json:"fileName,omitempty"`
	FileSizeKB float64 `json:"fileSize,omitempty"`
	FileRef    string  `json:"fileUrl,omitempty"`
}

func NewSystemMessage(text string, at time.Time) Message {
	return Message{
		Kind:      KindSystem,
		Sender:    SystemSender,
		Text:      text,
		Timestamp: at,
	}
}

// NewTextMessage builds a text message; text is expected to be already
// obscured when encoded is true.
func NewTextMessage(from Member, text string, encoded bool, at time.Time) Message {
	return Message{
		Kind:      KindText,
		Sender:    from.DisplayName,
		SenderID:  from.ID,
		Text:      text,
		Timestamp: at,
		Encoded:   encoded,
	}
}

func NewFileMessage(from Member, fileName string, sizeBytes int64, ref string, at time.Time) Message {
	return Message{
		Kind:       KindFile,
		Sender:     from.DisplayName,
		SenderID:   from.ID,
		FileName:   fileName,
		FileSizeKB: SizeKB(sizeBytes),
		FileRef:    ref,
		Timestamp:  at,
	}
}

func JoinedText(name string) string { return name + " joined the room" }

func LeftText(name string) string { return name + " left the room" }

// SizeKB converts bytes to kilobytes rounded to two decimal places.
func SizeKB(sizeBytes int64) float64 {
	return math.Round(float64(sizeBytes)/1024*100) / 100
}

// Validate checks the fields each variant requires.
func (m Message) Validate() error {
	switch m.Kind {
	case KindSystem:
		if strings.TrimSpace(m.Text) == "" {
			return ErrInvalidInput
		}
	case KindText:
		if m.SenderID == "" || strings.TrimSpace(m.Text) == "" {
			return ErrInvalidInput
		}
	case KindFile:
		if m.SenderID == "" || m.FileRef == "" {
			return ErrInvalidInput
		}
		if m.FileName == "" {
			return ErrFileNameEmpty
		}
	default:
		return ErrUnknownKind
	}
	return nil
}
