package notify

import (
	"time"
)

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

// ContentType distinguishes chat traffic from system notifications.
type ContentType string

const (
	TypeChatMessage        ContentType = "CHAT_MESSAGE"
	TypeSystemNotification ContentType = "SYSTEM_NOTIFICATION"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	return t == TypeChatMessage || t == TypeSystemNotification
}

// Content is the immutable body of a chat message or notification.
// It is written once at dispatch time and never mutated; read state
// lives on DeliveryRecord, one per recipient.
type Content struct {
	ID        int64       `json:"id"`
	AuthorID  int         `json:"author_id"`
	Body      string      `json:"body"`
	Type      ContentType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}

// DeliveryRecord is the per-recipient read-state row referencing one Content.
// The unread count for a user is always COUNT of their unread rows, never a
// separately maintained counter.
type DeliveryRecord struct {
	ID          int64      `json:"id"`
	RecipientID int        `json:"recipient_id"`
	ContentID   int64      `json:"content_id"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Item is a DeliveryRecord joined with its Content, the unit returned by
// list queries.
type Item struct {
	DeliveryRecord
	Content Content `json:"content"`
}

// Page is one page of a list query.
type Page struct {
	Items []Item `json:"items"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int    `json:"total"`
}

// ---------------------------------------------
// Wire frames (server <-> client)
// ---------------------------------------------

// Frame is the JSON envelope pushed over a websocket channel.
type Frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventNotificationNew = "notification:new"
	EventChatNewMessage  = "chat:new-message"
	EventRead            = "notification:read"
	EventCountUpdated    = "notification:count-updated"
	EventAuthenticate    = "authenticate"
	EventAuthenticated   = "authenticated"
	EventAuthError       = "auth-error"
)

// NewPayload is the payload of a notification:new / chat:new-message frame.
type NewPayload struct {
	Content
	DeliveryRecordID int64 `json:"deliveryRecordId"`
}

// ReadPayload is the payload of a notification:read frame.
type ReadPayload struct {
	NotificationID int64 `json:"notificationId"`
}

// CountPayload is the payload of a notification:count-updated frame.
type CountPayload struct {
	Count int `json:"count"`
}

// AuthPayload is the payload of the client's authenticate frame.
type AuthPayload struct {
	Token string `json:"token"`
}
