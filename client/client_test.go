package client_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/client"
	"github.com/classpeer/signaling/internal/handlers"
	"github.com/classpeer/signaling/internal/hub"
	"github.com/classpeer/signaling/internal/models"
)

func startServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := hub.New(zap.NewNop())
	router := gin.New()
	router.GET("/ws/signal", handlers.HandleSignaling(registry, nil, zap.NewNop()))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal"
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestViewerAgainstLiveServer(t *testing.T) {
	url := startServer(t)

	joined := make(chan struct{})
	states := make(chan client.State, 16)

	c, err := client.Dial(url)
	require.NoError(t, err)
	defer c.Close()

	v := client.NewViewer(c.Send, client.Events{
		OnJoined:      func(models.JoinedPayload) { close(joined) },
		OnStateChange: func(s client.State) { states <- s },
	})
	go func() {
		for msg := range c.Incoming() {
			v.Handle(msg)
		}
	}()

	require.NoError(t, c.Join("student", "live-class", false))
	waitFor(t, joined, "join acknowledgment")
	assert.NotEmpty(t, v.ParticipantID())
	assert.Equal(t, client.StateIdle, v.State())

	// A presenter joins and goes live; the viewer asks for the stream and
	// receives the targeted offer.
	p, err := client.Dial(url)
	require.NoError(t, err)
	defer p.Close()

	presenterJoined := make(chan struct{})
	streamRequests := make(chan models.Message, 1)
	go func() {
		for msg := range p.Incoming() {
			switch msg.Kind {
			case models.KindJoined:
				close(presenterJoined)
			case models.KindRequestStream:
				streamRequests <- msg
			}
		}
	}()
	require.NoError(t, p.Join("teacher", "live-class", true))
	waitFor(t, presenterJoined, "presenter join")

	gotOffer := make(chan json.RawMessage, 1)
	v.AttachMediaHandlers(
		func(payload json.RawMessage) { gotOffer <- payload },
		func(json.RawMessage) {},
	)

	p.Send(models.Message{Kind: models.KindStreamAvailable})

	var req models.Message
	select {
	case req = <-streamRequests:
	case <-time.After(3 * time.Second):
		t.Fatal("presenter never received request-stream")
	}
	assert.Equal(t, v.ParticipantID(), req.From)

	p.Send(models.Message{
		Kind:    models.KindOffer,
		To:      req.From,
		Payload: json.RawMessage(`{"sdp":"offer"}`),
	})

	select {
	case payload := <-gotOffer:
		assert.JSONEq(t, `{"sdp":"offer"}`, string(payload))
	case <-time.After(3 * time.Second):
		t.Fatal("viewer never received the offer")
	}
	assert.Equal(t, client.StateConnecting, v.State())
}
