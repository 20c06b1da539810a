// Package signaling implements the websocket signaling layer for capture
// clients. Browsers join a room per attendance session, negotiate a WebRTC
// connection with the server, and stream camera frames over a data
// channel; recognition results travel back over the websocket.
package signaling

import "encoding/json"

// Client to server message types.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeData         = "data"
)

// Server to client message types.
const (
	TypeJoinedRoom        = "joined_room"
	TypeUserJoined        = "user_joined"
	TypeUserLeft          = "user_left"
	TypeRecognitionResult = "face_recognition_result"
	TypeError             = "error"
)

// Message is the envelope for all websocket traffic. Target addresses a
// specific peer in the room for browser-to-browser relay; without it,
// offers and candidates are handled by the server's own peer connection.
type Message struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Target    string          `json:"targetId,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// client sent the message; set by the read pump, never serialized.
	client *Client
}

// RoomStatePayload is sent with joined_room to tell a client its id and
// who else is in the room.
type RoomStatePayload struct {
	ClientID string   `json:"clientId"`
	Peers    []string `json:"peers"`
}

// PresencePayload is sent with user_joined and user_left.
type PresencePayload struct {
	ClientID string `json:"clientId"`
}

// ErrorPayload carries a human-readable error to the client.
type ErrorPayload struct {
	Error string `json:"error"`
}

// MatchedStudent is one recognized student within a result.
type MatchedStudent struct {
	StudentID string  `json:"studentId"`
	Name      string  `json:"name,omitempty"`
	Score     float64 `json:"score"`
	Status    string  `json:"status,omitempty"` // present or late, empty for repeats
	New       bool    `json:"new"`              // first check-in this session
}

// RecognitionResultPayload is pushed after a frame has been processed.
type RecognitionResultPayload struct {
	SessionID string           `json:"sessionId"`
	Faces     int              `json:"faces"`
	Matches   []MatchedStudent `json:"matches"`
	ElapsedMS int64            `json:"elapsedMs"`
}

// ErrorMessage builds an error message for a client.
func ErrorMessage(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: TypeError, Payload: payload}
}

func presenceMessage(messageType, clientID string) *Message {
	payload, _ := json.Marshal(PresencePayload{ClientID: clientID})
	return &Message{Type: messageType, Payload: payload}
}
