package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/internal/models"
)

// ErrRoomClosed is returned by Join when the room has already been removed
// from the registry. The caller should re-resolve the room via GetOrCreate
// and retry.
var ErrRoomClosed = errors.New("room closed")

// Deliverer is the push delivery endpoint for one participant. Deliver
// enqueues the message without blocking and reports false when the
// participant can no longer accept messages (queue full or connection
// gone); the room then force-removes it.
type Deliverer interface {
	Deliver(msg models.Message) bool
}

// Participant is one member of a room. Owned by the room; the ID is
// assigned at join time and never taken from the client.
type Participant struct {
	ID          string
	Name        string
	IsPresenter bool

	session Deliverer
}

func (p *Participant) info() models.ParticipantInfo {
	return models.ParticipantInfo{ID: p.ID, Name: p.Name, IsPresenter: p.IsPresenter}
}

// Room holds the roster of one live class session: at most one presenter,
// any number of viewers, and the stream-availability flag. All operations
// serialize behind a single mutex, so any two events in the same room are
// observed in the same order by every member.
type Room struct {
	ID string

	mu           sync.Mutex
	participants []*Participant // join order
	byID         map[string]*Participant
	presenter    *Participant
	streamReady  bool
	closed       bool
	lastChatTS   int64

	log *zap.Logger
}

func newRoom(id string, log *zap.Logger) *Room {
	return &Room{
		ID:   id,
		byID: make(map[string]*Participant),
		log:  log.With(zap.String("room", id)),
	}
}

// Join admits a participant and returns the acknowledgment payload that was
// delivered to it. The presenter role is first-come: if a presenter already
// exists the joiner becomes a viewer regardless of wantsPresenter. The
// joiner observes the prior roster before anyone observes the joiner.
func (r *Room) Join(name string, wantsPresenter bool, session Deliverer) (*Participant, models.JoinedPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, models.JoinedPayload{}, ErrRoomClosed
	}

	p := &Participant{
		ID:      uuid.New().String(),
		Name:    name,
		session: session,
	}
	if wantsPresenter && r.presenter == nil {
		p.IsPresenter = true
		r.presenter = p
	}

	roster := make([]models.ParticipantInfo, 0, len(r.participants))
	for _, existing := range r.participants {
		roster = append(roster, existing.info())
	}

	r.participants = append(r.participants, p)
	r.byID[p.ID] = p

	ack := models.JoinedPayload{
		RoomID:        r.ID,
		ParticipantID: p.ID,
		Participants:  roster,
		HasPresenter:  r.presenter != nil,
		StreamReady:   r.streamReady,
	}

	var dead []*Participant
	if !p.session.Deliver(encode(models.KindJoined, ack)) {
		dead = append(dead, p)
	}
	dead = append(dead, r.broadcastLocked(encode(models.KindParticipantJoined, p.info()), p.ID)...)
	r.reapLocked(dead)

	r.log.Info("participant joined",
		zap.String("participant", p.ID),
		zap.String("name", p.Name),
		zap.Bool("presenter", p.IsPresenter))

	return p, ack, nil
}

// Leave removes a participant. Leaving an unknown participant is a no-op.
// A departing presenter clears the presenter slot and the stream flag, and
// the remaining members receive participant-left followed by stream-ended.
func (r *Room) Leave(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reapLocked(r.removeLocked(participantID))
}

// RelayToPresenter forwards a viewer's signaling message (answer, ICE
// candidate, stream request) to the current presenter. Returns false when
// no presenter is available or the sender is no longer a member; the
// message is dropped, never queued, and the caller must tell the sender to
// wait.
func (r *Room) RelayToPresenter(fromID string, kind models.MessageKind, payload json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[fromID]; !ok {
		return false
	}
	if r.presenter == nil || r.presenter.ID == fromID {
		return false
	}
	msg := models.Message{Kind: kind, From: fromID, RoomID: r.ID, Payload: payload}
	if !r.presenter.session.Deliver(msg) {
		r.reapLocked([]*Participant{r.presenter})
		return false
	}
	return true
}

// RelayToViewer forwards a presenter-originated message to one named
// viewer, used for offers targeted at a newly joined participant.
func (r *Room) RelayToViewer(fromID, targetID string, kind models.MessageKind, payload json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[fromID]; !ok {
		return false
	}
	target, ok := r.byID[targetID]
	if !ok {
		return false
	}
	msg := models.Message{Kind: kind, From: fromID, To: targetID, RoomID: r.ID, Payload: payload}
	if !target.session.Deliver(msg) {
		r.reapLocked([]*Participant{target})
		return false
	}
	return true
}

// BroadcastFromPresenter fans a presenter-originated message out to every
// viewer, used for renegotiation offers and ICE candidates.
func (r *Room) BroadcastFromPresenter(fromID string, kind models.MessageKind, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[fromID]; !ok {
		return
	}
	msg := models.Message{Kind: kind, From: fromID, RoomID: r.ID, Payload: payload}
	r.reapLocked(r.broadcastLocked(msg, fromID))
}

// SetStreamReady records whether the presenter's stream is live and tells
// every viewer. Returns false when the room has no presenter.
func (r *Room) SetStreamReady(ready bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.presenter == nil {
		return false
	}
	r.streamReady = ready

	kind := models.KindStreamEnded
	if ready {
		kind = models.KindStreamAvailable
	}
	r.reapLocked(r.broadcastLocked(models.Message{Kind: kind, RoomID: r.ID}, r.presenter.ID))
	return true
}

// BroadcastChat fans a chat message out to every participant including the
// sender. The timestamp is server-assigned and never decreases within a
// room, so clients can rely on it for ordering.
func (r *Room) BroadcastChat(fromID, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.byID[fromID]
	if !ok {
		return false
	}

	ts := time.Now().UnixMilli()
	if ts < r.lastChatTS {
		ts = r.lastChatTS
	}
	r.lastChatTS = ts

	msg := encode(models.KindChat, models.ChatPayload{
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Message:    text,
		Timestamp:  ts,
	})
	msg.From = sender.ID
	msg.RoomID = r.ID
	r.reapLocked(r.broadcastLocked(msg, ""))
	return true
}

// BroadcastHandRaise notifies the other participants that fromID raised a
// hand. No state is retained.
func (r *Room) BroadcastHandRaise(fromID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.byID[fromID]
	if !ok {
		return false
	}
	msg := encode(models.KindHandRaised, sender.info())
	msg.From = sender.ID
	msg.RoomID = r.ID
	r.reapLocked(r.broadcastLocked(msg, sender.ID))
	return true
}

// ParticipantCount returns the current roster size.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// HasPresenter reports whether a presenter is currently in the room.
func (r *Room) HasPresenter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenter != nil
}

// StreamReady reports whether the presenter has signaled a live stream.
func (r *Room) StreamReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamReady
}

// Participants returns a snapshot of the roster in join order.
func (r *Room) Participants() []models.ParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := make([]models.ParticipantInfo, 0, len(r.participants))
	for _, p := range r.participants {
		roster = append(roster, p.info())
	}
	return roster
}

// IsPresenter reports whether the given participant currently holds the
// presenter role.
func (r *Room) IsPresenter(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenter != nil && r.presenter.ID == participantID
}

// removeLocked detaches a participant and broadcasts the departure events.
// It returns any participants found unreachable during those broadcasts so
// the caller can reap them in turn.
func (r *Room) removeLocked(participantID string) []*Participant {
	p, ok := r.byID[participantID]
	if !ok {
		return nil
	}
	delete(r.byID, participantID)
	for i, existing := range r.participants {
		if existing.ID == participantID {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}

	wasPresenter := r.presenter == p
	if wasPresenter {
		r.presenter = nil
		r.streamReady = false
	}

	dead := r.broadcastLocked(encode(models.KindParticipantLeft, p.info()), "")
	if wasPresenter {
		dead = append(dead, r.broadcastLocked(models.Message{Kind: models.KindStreamEnded, RoomID: r.ID, Reason: "presenter left"}, "")...)
	}

	r.log.Info("participant left",
		zap.String("participant", p.ID),
		zap.Bool("presenter", wasPresenter))
	return dead
}

// broadcastLocked enqueues msg for every participant except exceptID and
// returns the ones whose delivery queue rejected it.
func (r *Room) broadcastLocked(msg models.Message, exceptID string) []*Participant {
	var dead []*Participant
	for _, p := range r.participants {
		if p.ID == exceptID {
			continue
		}
		if !p.session.Deliver(msg) {
			dead = append(dead, p)
		}
	}
	return dead
}

// reapLocked force-removes unreachable participants, following any further
// failures surfaced by the departure broadcasts themselves.
func (r *Room) reapLocked(dead []*Participant) {
	for len(dead) > 0 {
		p := dead[0]
		dead = dead[1:]
		if _, ok := r.byID[p.ID]; !ok {
			continue
		}
		r.log.Warn("participant unreachable, removing", zap.String("participant", p.ID))
		dead = append(dead, r.removeLocked(p.ID)...)
	}
}

// encode wraps a payload struct into a protocol message. Marshaling our own
// payload types cannot fail.
func encode(kind models.MessageKind, payload any) models.Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Message{Kind: models.KindError, Error: err.Error()}
	}
	return models.Message{Kind: kind, Payload: data}
}
