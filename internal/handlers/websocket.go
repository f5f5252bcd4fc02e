package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/internal/hub"
	"github.com/classpeer/signaling/internal/metrics"
	"github.com/classpeer/signaling/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers stay well below this.
	maxMessageSize = 64 * 1024

	// Outbound queue per connection. A participant that falls this far
	// behind is treated as unreachable and removed from the room.
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// RoomResolver maps a shareable room code to the canonical room ID so a
// join by code and a join by ID land in the same room. Identifiers with no
// mapping resolve to themselves.
type RoomResolver interface {
	ResolveRoomID(ctx context.Context, identifier string) (string, error)
}

// session binds one websocket connection to at most one (room, participant)
// pair. The room pushes outbound messages through Deliver; the write pump
// drains them so room operations never block on socket I/O.
type session struct {
	conn     *websocket.Conn
	registry *hub.Hub
	resolver RoomResolver
	log      *zap.Logger

	send chan models.Message
	done chan struct{}

	room        *hub.Room
	participant *hub.Participant

	teardownOnce sync.Once
}

// HandleSignaling upgrades the connection and runs the signaling session.
// The first inbound message must be a join; everything after is dispatched
// to room operations attributed to the session's own participant identity.
func HandleSignaling(registry *hub.Hub, resolver RoomResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", zap.Error(err))
			return
		}

		s := &session{
			conn:     conn,
			registry: registry,
			resolver: resolver,
			log:      log,
			send:     make(chan models.Message, sendQueueSize),
			done:     make(chan struct{}),
		}

		go s.writePump()
		s.readPump()
	}
}

// Deliver enqueues a message for the connection without blocking. A full
// queue means the socket has stalled; the room reacts to false by removing
// the participant.
func (s *session) Deliver(msg models.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		// A stalled connection stays stalled; tear the whole session
		// down so the participant cannot keep sending into the room.
		// Asynchronous because Deliver runs under the room lock and
		// teardown takes it again.
		metrics.DroppedMessages.Inc()
		go s.teardown()
		return false
	}
}

func (s *session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError("malformed message")
			continue
		}

		if s.participant == nil {
			if msg.Kind != models.KindJoin {
				s.sendError("first message must be join")
				continue
			}
			if !s.handleJoin(msg) {
				return
			}
			continue
		}

		s.dispatch(msg)
	}
}

// handleJoin resolves or creates the room and admits the participant. The
// join acknowledgment is delivered by the room itself, before any other
// member hears about the joiner.
func (s *session) handleJoin(msg models.Message) bool {
	var req models.JoinRequest
	if msg.Payload != nil {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			s.sendError("malformed join payload")
			return true
		}
	}
	if req.RoomID == "" {
		req.RoomID = msg.RoomID
	}
	if req.RoomID == "" {
		req.RoomID = generateRoomCode()
	} else if s.resolver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		resolved, err := s.resolver.ResolveRoomID(ctx, req.RoomID)
		cancel()
		if err == nil && resolved != "" {
			req.RoomID = resolved
		}
	}

	// A room pointer can go stale if cleanup removes it between resolution
	// and admission; re-resolve until the join lands.
	for {
		room := s.registry.GetOrCreate(req.RoomID)
		p, _, err := room.Join(req.DisplayName, req.WantsPresenter, s)
		if errors.Is(err, hub.ErrRoomClosed) {
			continue
		}
		if err != nil {
			s.sendError("join failed")
			return false
		}
		s.room = room
		s.participant = p
		break
	}

	metrics.LiveParticipants.Inc()
	metrics.LiveRooms.Set(float64(s.registry.Count()))
	return true
}

// dispatch routes one inbound message to the matching room operation. The
// sender identity always comes from the session, never from the message.
func (s *session) dispatch(msg models.Message) {
	id := s.participant.ID

	switch msg.Kind {
	case models.KindOffer, models.KindICECandidate:
		if s.room.IsPresenter(id) {
			if msg.To != "" {
				if s.room.RelayToViewer(id, msg.To, msg.Kind, msg.Payload) {
					metrics.RelayedMessages.WithLabelValues(string(msg.Kind)).Inc()
				}
			} else {
				s.room.BroadcastFromPresenter(id, msg.Kind, msg.Payload)
				metrics.RelayedMessages.WithLabelValues(string(msg.Kind)).Inc()
			}
			return
		}
		if msg.Kind == models.KindOffer {
			s.sendError("only the presenter may send offers")
			return
		}
		if s.room.RelayToPresenter(id, msg.Kind, msg.Payload) {
			metrics.RelayedMessages.WithLabelValues(string(msg.Kind)).Inc()
		} else {
			s.Deliver(models.Message{Kind: models.KindWaitingForStream, Reason: "no presenter"})
		}

	case models.KindAnswer:
		if s.room.RelayToPresenter(id, msg.Kind, msg.Payload) {
			metrics.RelayedMessages.WithLabelValues(string(msg.Kind)).Inc()
		} else {
			s.Deliver(models.Message{Kind: models.KindWaitingForStream, Reason: "no presenter"})
		}

	case models.KindRequestStream:
		if s.room.RelayToPresenter(id, msg.Kind, nil) {
			metrics.RelayedMessages.WithLabelValues(string(msg.Kind)).Inc()
		} else {
			s.Deliver(models.Message{Kind: models.KindStreamNotReady, Reason: "no presenter"})
		}

	case models.KindStreamAvailable, models.KindStreamEnded:
		if !s.room.IsPresenter(id) {
			s.sendError("only the presenter may change stream state")
			return
		}
		s.room.SetStreamReady(msg.Kind == models.KindStreamAvailable)

	case models.KindChat:
		var req models.ChatRequest
		if msg.Payload == nil || json.Unmarshal(msg.Payload, &req) != nil || req.Message == "" {
			s.sendError("malformed chat payload")
			return
		}
		s.room.BroadcastChat(id, req.Message)

	case models.KindHandRaised:
		s.room.BroadcastHandRaise(id)

	case models.KindJoin:
		s.sendError("already joined")

	default:
		s.sendError("unknown message kind: " + string(msg.Kind))
	}
}

func (s *session) sendError(reason string) {
	s.Deliver(models.Message{Kind: models.KindError, Error: reason})
}

// teardown runs exactly once per connection, for clean closes, read
// errors, and forced removals alike.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		if s.room != nil && s.participant != nil {
			s.room.Leave(s.participant.ID)
			s.registry.CleanupIfEmpty(s.room.ID)
			metrics.LiveParticipants.Dec()
			metrics.LiveRooms.Set(float64(s.registry.Count()))
		}
	})
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
