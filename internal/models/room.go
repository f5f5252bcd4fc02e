package models

import "time"

// RoomMetadata stores information about a class session room
type RoomMetadata struct {
	ID        string `json:"id"`
	Code      string `json:"code"`      // Short, shareable room code (e.g., "ABC123")
	CreatorID string `json:"creatorId"` // User ID from JWT who created the room

	// ScheduledSessionID optionally links the room to a scheduled class
	// session managed elsewhere.
	ScheduledSessionID string `json:"scheduledSessionId,omitempty"`

	CreatedAt        time.Time `json:"createdAt"`
	ParticipantCount int       `json:"participantCount"`
	HasPresenter     bool      `json:"hasPresenter"`
	StreamReady      bool      `json:"streamReady"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	ScheduledSessionID string `json:"scheduledSessionId,omitempty"`
}

// CreateRoomResponse is the response for creating a room
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}
