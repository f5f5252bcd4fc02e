package handlers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/internal/hub"
	"github.com/classpeer/signaling/internal/models"
	"github.com/classpeer/signaling/internal/redis"
)

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars

// CreateRoom creates a new class-session room (requires authentication).
// The room itself is created lazily by the hub when the first participant
// joins; this stores the metadata that surrounds it: creator, shareable
// code, and the optional scheduled session it belongs to.
func CreateRoom(store *redis.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		var req models.CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		room := models.RoomMetadata{
			ID:                 uuid.New().String(),
			Code:               generateRoomCode(),
			CreatorID:          userID.(string),
			ScheduledSessionID: req.ScheduledSessionID,
			CreatedAt:          time.Now(),
		}

		if err := store.SaveRoom(c.Request.Context(), room); err != nil {
			log.Error("failed to store room metadata", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}

		log.Info("room metadata created",
			zap.String("room", room.ID),
			zap.String("code", room.Code),
			zap.String("creator", room.CreatorID))

		c.JSON(http.StatusCreated, models.CreateRoomResponse{
			RoomID: room.ID,
			Code:   room.Code,
		})
	}
}

// GetRoom returns room metadata plus the live state from the hub: current
// participant count, presenter presence, and stream readiness (public).
func GetRoom(store *redis.Store, registry *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := store.ResolveRoomID(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve room"})
			return
		}

		room, err := store.GetRoom(c.Request.Context(), roomID)
		if errors.Is(err, redis.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
			return
		}

		if live, ok := registry.Get(roomID); ok {
			room.ParticipantCount = live.ParticipantCount()
			room.HasPresenter = live.HasPresenter()
			room.StreamReady = live.StreamReady()
		}

		c.JSON(http.StatusOK, room)
	}
}

// DeleteRoom deletes a room (requires authentication and creator). Any
// participants still connected are detached from the registry; their
// sessions terminate on their own connection lifecycle.
func DeleteRoom(store *redis.Store, registry *hub.Hub, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		roomID := c.Param("roomId")

		room, err := store.GetRoom(c.Request.Context(), roomID)
		if errors.Is(err, redis.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
			return
		}

		if room.CreatorID != userID.(string) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
			return
		}

		if err := store.DeleteRoom(c.Request.Context(), room); err != nil {
			log.Error("failed to delete room metadata", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
			return
		}
		registry.Remove(roomID)

		log.Info("room deleted", zap.String("room", roomID), zap.String("user", userID.(string)))

		c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
	}
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, redis.RoomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
