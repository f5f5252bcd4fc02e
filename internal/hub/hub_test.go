package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/internal/models"
)

// fakeSession records delivered messages. Setting full simulates a stalled
// connection whose outbound queue rejects everything.
type fakeSession struct {
	mu   sync.Mutex
	msgs []models.Message
	full bool
}

func (f *fakeSession) Deliver(msg models.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeSession) kinds() []models.MessageKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]models.MessageKind, 0, len(f.msgs))
	for _, m := range f.msgs {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

func (f *fakeSession) messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.msgs...)
}

func (f *fakeSession) setFull(full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = full
}

func TestGetOrCreateNormalizesIdentifier(t *testing.T) {
	h := New(zap.NewNop())

	tests := []struct {
		name string
		id   string
	}{
		{"lowercase", "math-101"},
		{"uppercase", "MATH-101"},
		{"mixed case", "Math-101"},
		{"surrounding whitespace", "  math-101  "},
	}

	first := h.GetOrCreate("math-101")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, first, h.GetOrCreate(tt.id))
		})
	}
	assert.Equal(t, 1, h.Count())
}

func TestGetDoesNotCreate(t *testing.T) {
	h := New(zap.NewNop())

	_, ok := h.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, h.Count())

	created := h.GetOrCreate("abc")
	got, ok := h.Get("ABC")
	require.True(t, ok)
	assert.Same(t, created, got)
}

func TestConcurrentGetOrCreateReturnsOneInstance(t *testing.T) {
	h := New(zap.NewNop())

	const workers = 64
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			rooms[i] = h.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.Same(t, rooms[0], rooms[i])
	}
	assert.Equal(t, 1, h.Count())
}

func TestRemove(t *testing.T) {
	h := New(zap.NewNop())
	h.GetOrCreate("abc")
	h.Remove("abc")

	_, ok := h.Get("abc")
	assert.False(t, ok)

	// Removing an unknown room is a no-op.
	h.Remove("missing")
}

func TestJoinAfterRemoveFails(t *testing.T) {
	h := New(zap.NewNop())
	room := h.GetOrCreate("abc")
	h.Remove("abc")

	_, _, err := room.Join("late", false, &fakeSession{})
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestCleanupIfEmpty(t *testing.T) {
	h := New(zap.NewNop())

	room := h.GetOrCreate("occupied")
	_, _, err := room.Join("viewer", false, &fakeSession{})
	require.NoError(t, err)

	h.CleanupIfEmpty("occupied")
	_, ok := h.Get("occupied")
	assert.True(t, ok, "occupied room must survive cleanup")

	h.GetOrCreate("empty")
	h.CleanupIfEmpty("empty")
	_, ok = h.Get("empty")
	assert.False(t, ok)
}

func TestCleanupDoesNotLoseConcurrentJoin(t *testing.T) {
	for i := 0; i < 200; i++ {
		h := New(zap.NewNop())
		stale := h.GetOrCreate("race")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			room := stale
			for {
				_, _, err := room.Join("viewer", false, &fakeSession{})
				if errors.Is(err, ErrRoomClosed) {
					room = h.GetOrCreate("race")
					continue
				}
				return
			}
		}()
		go func() {
			defer wg.Done()
			h.CleanupIfEmpty("race")
		}()
		wg.Wait()

		got, ok := h.Get("race")
		require.True(t, ok, "iteration %d: room lost under join/cleanup race", i)
		require.Equal(t, 1, got.ParticipantCount())
	}
}

func TestCountTracksDistinctRooms(t *testing.T) {
	h := New(zap.NewNop())
	for i := 0; i < 5; i++ {
		h.GetOrCreate(fmt.Sprintf("room-%d", i))
	}
	assert.Equal(t, 5, h.Count())
}
