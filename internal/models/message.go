package models

import "time"

// Attachment kinds accepted on messages.
const (
	AttachmentImage    = "image"
	AttachmentVideo    = "video"
	AttachmentDocument = "document"
	AttachmentAudio    = "audio"
)

// Attachment is a file previously uploaded to object storage.
type Attachment struct {
	URL  string `json:"url" validate:"required"`
	Type string `json:"type" validate:"required,oneof=image video document audio"`
}

// Message represents a message posted in a group. Messages are immutable.
type Message struct {
	ID         string      `json:"id"`
	GroupID    string      `json:"groupId"`
	SenderID   string      `json:"sender"`
	SenderName string      `json:"senderName"`
	Text       string      `json:"text,omitempty"`
	File       *Attachment `json:"file,omitempty"`
	CreatedAt  time.Time   `json:"timestamp"`
}

// Event names used on the realtime channel.
const (
	EventJoinGroup    = "join-group"
	EventLeaveGroup   = "leave-group"
	EventGroupMessage = "group-message"
)

// GroupEvent is emitted over websocket connections subscribed to a group.
type GroupEvent struct {
	Event string   `json:"event"`
	Data  *Message `json:"data,omitempty"`
}

// ClientEvent is what a websocket client sends to manage its subscriptions.
type ClientEvent struct {
	Event   string `json:"event"`
	GroupID string `json:"groupId"`
}

// Kind is the attachment type, or "text" for text-only messages.
func (m Message) Kind() string {
	if m.File != nil {
		return m.File.Type
	}
	return "text"
}
