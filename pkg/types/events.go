package types

import "time"

// Event names shared by both directions of the channel. Inbound events are
// client requests; outbound events are server broadcasts or direct replies.
const (
	EventSetUsername    = "set-username"
	EventSendMessage    = "send-message"
	EventDeleteMessage  = "delete-message"
	EventEditMessage    = "edit-message"
	EventMessageRead    = "message-read"
	EventTyping         = "typing"
	EventMessage        = "message"
	EventMessageHistory = "message-history"
	EventRoomUsers      = "room-users"
	EventMessageError   = "message-error"
)

// Inbound payloads.

type SetUsernameRequest struct {
	Name string `json:"name"`
}

type SendMessageRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
	// Time is an optional RFC 3339 timestamp; the server substitutes its own
	// clock when it is absent or unparseable.
	Time string `json:"time,omitempty"`
}

type DeleteMessageRequest struct {
	ID string `json:"id"`
}

type EditMessageRequest struct {
	ID      string `json:"id"`
	NewText string `json:"newText"`
}

type MessageReadRequest struct {
	ID string `json:"id"`
}

type TypingRequest struct {
	User string `json:"user"`
}

// Outbound payloads.

type DeleteBroadcast struct {
	ID string `json:"id"`
}

type EditBroadcast struct {
	ID       string    `json:"id"`
	NewText  string    `json:"newText"`
	EditTime time.Time `json:"editTime"`
}

type ReadBroadcast struct {
	ID         string `json:"id"`
	ReaderName string `json:"readerName"`
}

type TypingBroadcast struct {
	User string    `json:"user"`
	At   time.Time `json:"at"`
}

type ErrorNotice struct {
	Reason string `json:"reason"`
}
