// Package protocol defines the socket message envelope and the event
// surface exchanged with clients.
package protocol

import (
	"encoding/json"
	"time"
)

// Inbound events.
const (
	EventJoinListRoom   = "join-list-room"
	EventLeaveListRoom  = "leave-list-room"
	EventGetRoomMembers = "get-room-members"
)

// Outbound events.
const (
	EventError                 = "error"
	EventListRoomJoined        = "list-room-joined"
	EventListRoomLeft          = "list-room-left"
	EventRoomMembers           = "room-members"
	EventPermissionChanged     = "permission-changed"
	EventYourPermissionChanged = "your-permission-changed"
	EventAudit                 = "audit-event"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an event with its payload into a wire frame.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Payload: raw})
}

type ErrorPayload struct {
	Message string `json:"message"`
	ListID  string `json:"listId,omitempty"`
}

type RoomJoinedPayload struct {
	ListID      string    `json:"listId"`
	RoomName    string    `json:"roomName"`
	MemberCount int       `json:"memberCount"`
	Timestamp   time.Time `json:"timestamp"`
}

type RoomLeftPayload struct {
	ListID    string    `json:"listId"`
	RoomName  string    `json:"roomName"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomMember struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	JoinedAt  time.Time `json:"joinedAt"`
}

type RoomMembersPayload struct {
	ListID      string       `json:"listId"`
	Members     []RoomMember `json:"members"`
	MemberCount int          `json:"memberCount"`
	Timestamp   time.Time    `json:"timestamp"`
}
