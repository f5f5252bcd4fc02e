package models

import "encoding/json"

// MessageKind identifies a signaling protocol message
type MessageKind string

const (
	// Client → hub
	KindJoin          MessageKind = "join"
	KindRequestStream MessageKind = "request-stream"

	// Hub → client
	KindJoined            MessageKind = "joined"
	KindParticipantJoined MessageKind = "participant-joined"
	KindParticipantLeft   MessageKind = "participant-left"
	KindStreamAvailable   MessageKind = "stream-available"
	KindStreamEnded       MessageKind = "stream-ended"
	KindStreamConnected   MessageKind = "stream-connected"
	KindStreamNotReady    MessageKind = "stream-not-ready"
	KindWaitingForStream  MessageKind = "waiting-for-stream"
	KindConnectionFailed  MessageKind = "connection-failed"
	KindError             MessageKind = "error"

	// Bidirectional
	KindOffer        MessageKind = "offer"
	KindAnswer       MessageKind = "answer"
	KindICECandidate MessageKind = "ice-candidate"
	KindChat         MessageKind = "chat"
	KindHandRaised   MessageKind = "hand-raised"
)

// Message is the wire format for every signaling message. Payload carries
// the SDP or ICE candidate body verbatim; the hub relays it without
// interpreting it.
type Message struct {
	Kind    MessageKind     `json:"kind"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ParticipantInfo describes one room member in joined/participant-joined/
// participant-left/hand-raised messages.
type ParticipantInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsPresenter bool   `json:"isPresenter"`
}

// JoinRequest is the payload of a client's first message on a signaling
// connection. RoomID is optional; the hub creates the room lazily.
type JoinRequest struct {
	DisplayName    string `json:"displayName"`
	WantsPresenter bool   `json:"wantsPresenter"`
	RoomID         string `json:"roomId,omitempty"`
}

// JoinedPayload acknowledges admission. Participants lists the roster as it
// was before the joiner was added, in join order.
type JoinedPayload struct {
	RoomID        string            `json:"roomId"`
	ParticipantID string            `json:"participantId"`
	Participants  []ParticipantInfo `json:"participants"`
	HasPresenter  bool              `json:"hasPresenter"`
	StreamReady   bool              `json:"streamReady"`
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatPayload is the fan-out chat payload. Timestamp is assigned by the
// server, in Unix milliseconds, non-decreasing per room.
type ChatPayload struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}
