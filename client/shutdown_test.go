package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/classpeer/signaling/internal/models"
)

func newUnconnectedClient() *Client {
	return &Client{
		incoming: make(chan models.Message, 1),
		outgoing: make(chan models.Message, 1),
		done:     make(chan struct{}),
	}
}

func TestCloseIsSafeFromManyGoroutines(t *testing.T) {
	c := newUnconnectedClient()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("done must be closed after Close")
	}
}

func TestSendDoesNotBlockAfterClose(t *testing.T) {
	c := newUnconnectedClient()

	// Fill the queue so only the done path can let Send return.
	c.outgoing <- models.Message{Kind: models.KindChat}
	c.Close()

	finished := make(chan struct{})
	go func() {
		c.Send(models.Message{Kind: models.KindChat})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Send must return once the client is closed")
	}
	assert.Len(t, c.outgoing, 1, "nothing is queued after close")
}
