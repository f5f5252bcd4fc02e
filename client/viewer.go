package client

import (
	"encoding/json"
	"sync"

	"github.com/classpeer/signaling/internal/models"
)

// State is the viewer-side connection state.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Events are the application callbacks a viewer wires up at construction.
// Any nil callback is skipped.
type Events struct {
	OnJoined            func(models.JoinedPayload)
	OnParticipantJoined func(models.ParticipantInfo)
	OnParticipantLeft   func(models.ParticipantInfo)
	OnChat              func(models.ChatPayload)
	OnHandRaised        func(models.ParticipantInfo)
	OnStateChange       func(State)
	OnError             func(string)
}

// Viewer runs the connection-state machine for one class-session viewer:
// idle → waiting → connecting → connected, failed reachable from
// connecting, with stream-ended resetting to idle from any state.
//
// Offers and ICE candidates can arrive before the media handlers are
// attached. The viewer buffers at most one pending offer and a queue of
// pending candidates and replays them in arrival order on attach.
type Viewer struct {
	mu sync.Mutex

	send   func(models.Message)
	events Events

	state         State
	participantID string
	roomID        string

	onOffer     func(json.RawMessage)
	onCandidate func(json.RawMessage)

	pendingOffer      json.RawMessage
	pendingCandidates []json.RawMessage
}

// NewViewer builds the state machine around a send function, typically
// (*Client).Send.
func NewViewer(send func(models.Message), events Events) *Viewer {
	return &Viewer{
		send:   send,
		events: events,
		state:  StateIdle,
	}
}

// State returns the current connection state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// ParticipantID returns the hub-assigned identity, empty before joined.
func (v *Viewer) ParticipantID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.participantID
}

// AttachMediaHandlers registers the offer and ICE-candidate handlers and
// replays anything that arrived before they were ready: the pending offer
// first, then the candidates in arrival order.
func (v *Viewer) AttachMediaHandlers(onOffer, onCandidate func(json.RawMessage)) {
	v.mu.Lock()
	v.onOffer = onOffer
	v.onCandidate = onCandidate
	offer := v.pendingOffer
	candidates := v.pendingCandidates
	v.pendingOffer = nil
	v.pendingCandidates = nil
	v.mu.Unlock()

	if offer != nil && onOffer != nil {
		onOffer(offer)
	}
	if onCandidate != nil {
		for _, cand := range candidates {
			onCandidate(cand)
		}
	}
}

// Handle drives the state machine with one message from the hub.
func (v *Viewer) Handle(msg models.Message) {
	switch msg.Kind {
	case models.KindJoined:
		var ack models.JoinedPayload
		if json.Unmarshal(msg.Payload, &ack) != nil {
			return
		}
		v.mu.Lock()
		v.participantID = ack.ParticipantID
		v.roomID = ack.RoomID
		v.mu.Unlock()
		if v.events.OnJoined != nil {
			v.events.OnJoined(ack)
		}
		// A stream already live means we can ask for it straight away.
		if ack.StreamReady {
			v.RequestStream()
		}

	case models.KindOffer:
		v.handleOffer(msg.Payload)

	case models.KindICECandidate:
		v.handleCandidate(msg.Payload)

	case models.KindStreamAvailable:
		v.RequestStream()

	case models.KindStreamEnded:
		v.reset()

	case models.KindStreamConnected:
		// Same gate as MediaConnected: only a connecting viewer has a
		// session that can come up.
		v.MediaConnected()

	case models.KindConnectionFailed:
		v.mu.Lock()
		failed := v.state == StateConnecting
		v.mu.Unlock()
		if failed {
			v.transition(StateFailed)
		}

	case models.KindWaitingForStream, models.KindStreamNotReady:
		v.transition(StateWaiting)

	case models.KindParticipantJoined:
		var p models.ParticipantInfo
		if json.Unmarshal(msg.Payload, &p) == nil && v.events.OnParticipantJoined != nil {
			v.events.OnParticipantJoined(p)
		}

	case models.KindParticipantLeft:
		var p models.ParticipantInfo
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		if v.events.OnParticipantLeft != nil {
			v.events.OnParticipantLeft(p)
		}
		// The presenter leaving is always followed by stream-ended, which
		// resets the state machine; nothing more to do here.

	case models.KindChat:
		var chat models.ChatPayload
		if json.Unmarshal(msg.Payload, &chat) == nil && v.events.OnChat != nil {
			v.events.OnChat(chat)
		}

	case models.KindHandRaised:
		var p models.ParticipantInfo
		if json.Unmarshal(msg.Payload, &p) == nil && v.events.OnHandRaised != nil {
			v.events.OnHandRaised(p)
		}

	case models.KindError:
		if v.events.OnError != nil {
			v.events.OnError(msg.Error)
		}
	}
}

// RequestStream asks the presenter for an offer. Legal from idle and
// failed; a no-op in any other state.
func (v *Viewer) RequestStream() {
	v.mu.Lock()
	if v.state != StateIdle && v.state != StateFailed {
		v.mu.Unlock()
		return
	}
	v.state = StateWaiting
	v.mu.Unlock()

	v.notifyState(StateWaiting)
	v.send(models.Message{Kind: models.KindRequestStream})
}

// SendAnswer relays the local session description to the presenter.
func (v *Viewer) SendAnswer(payload json.RawMessage) {
	v.send(models.Message{Kind: models.KindAnswer, Payload: payload})
}

// SendCandidate relays a local ICE candidate to the presenter.
func (v *Viewer) SendCandidate(payload json.RawMessage) {
	v.send(models.Message{Kind: models.KindICECandidate, Payload: payload})
}

// SendChat sends a chat message to the room.
func (v *Viewer) SendChat(text string) {
	payload, err := json.Marshal(models.ChatRequest{Message: text})
	if err != nil {
		return
	}
	v.send(models.Message{Kind: models.KindChat, Payload: payload})
}

// RaiseHand notifies the room.
func (v *Viewer) RaiseHand() {
	v.send(models.Message{Kind: models.KindHandRaised})
}

// MediaConnected records that the underlying media session came up.
func (v *Viewer) MediaConnected() {
	v.mu.Lock()
	ok := v.state == StateConnecting
	if ok {
		v.state = StateConnected
	}
	v.mu.Unlock()
	if ok {
		v.notifyState(StateConnected)
	}
}

// MediaFailed records that establishing the media session failed.
func (v *Viewer) MediaFailed() {
	v.mu.Lock()
	ok := v.state == StateConnecting
	if ok {
		v.state = StateFailed
	}
	v.mu.Unlock()
	if ok {
		v.notifyState(StateFailed)
	}
}

func (v *Viewer) handleOffer(payload json.RawMessage) {
	v.mu.Lock()
	var entered bool
	switch v.state {
	case StateIdle, StateWaiting:
		v.state = StateConnecting
		entered = true
	case StateConnected:
		// Renegotiation: the presenter re-offers on a live session. The
		// offer must reach the media layer; the state stays connected.
	default:
		v.mu.Unlock()
		return
	}
	handler := v.onOffer
	if handler == nil {
		// Keep only the newest offer; an older one is obsolete.
		v.pendingOffer = payload
	}
	v.mu.Unlock()

	if entered {
		v.notifyState(StateConnecting)
	}
	if handler != nil {
		handler(payload)
	}
}

func (v *Viewer) handleCandidate(payload json.RawMessage) {
	v.mu.Lock()
	handler := v.onCandidate
	if handler == nil {
		v.pendingCandidates = append(v.pendingCandidates, payload)
	}
	v.mu.Unlock()

	if handler != nil {
		handler(payload)
	}
}

func (v *Viewer) reset() {
	v.mu.Lock()
	v.state = StateIdle
	v.pendingOffer = nil
	v.pendingCandidates = nil
	v.mu.Unlock()
	v.notifyState(StateIdle)
}

func (v *Viewer) transition(s State) {
	v.mu.Lock()
	changed := v.state != s
	v.state = s
	v.mu.Unlock()
	if changed {
		v.notifyState(s)
	}
}

func (v *Viewer) notifyState(s State) {
	if v.events.OnStateChange != nil {
		v.events.OnStateChange(s)
	}
}
