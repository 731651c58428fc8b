package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-ch:
		return frame
	default:
		t.Fatal("expected a buffered frame")
		return nil
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")
	b := h.Subscribe("b")

	h.Broadcast([]byte("hi"))

	assert.Equal(t, "hi", string(recv(t, a)))
	assert.Equal(t, "hi", string(recv(t, b)))
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")
	b := h.Subscribe("b")

	h.BroadcastExcept("a", []byte("typing"))

	assert.Equal(t, "typing", string(recv(t, b)))
	select {
	case <-a:
		t.Fatal("sender must not receive its own typing indicator")
	default:
	}
}

func TestSendTo(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")
	h.Subscribe("b")

	assert.True(t, h.SendTo("a", []byte("private")))
	assert.Equal(t, "private", string(recv(t, a)))
	assert.False(t, h.SendTo("missing", []byte("x")))
}

func TestUnsubscribeClosesChannelIdempotently(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")

	h.Unsubscribe("a")
	h.Unsubscribe("a") // second call is a no-op, not a double close

	_, open := <-a
	assert.False(t, open)
	assert.False(t, h.SendTo("a", []byte("x")))
}

// TestConcurrentBroadcastAndRemoval churns broadcasts against
// unsubscribes and evictions. Every subscriber's buffer is pre-filled
// so the broadcasts all take the eviction path while other goroutines
// are closing the same channels; any send on a closed channel would
// panic the run.
func TestConcurrentBroadcastAndRemoval(t *testing.T) {
	h := NewHub()

	const subs = 128
	ids := make([]string, subs)
	for i := range ids {
		ids[i] = fmt.Sprintf("conn-%d", i)
		h.Subscribe(ids[i])
	}

	// Stall every subscriber: nothing drains, so fan-out hits the
	// full-buffer branch for all of them.
	for i := 0; i < sendBuffer; i++ {
		h.Broadcast([]byte("fill"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Broadcast([]byte("overflow"))
			}
		}()
	}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.Unsubscribe(id)
		}(id)
	}
	wg.Wait()

	// Everyone is gone, one way or the other, and the hub still works.
	assert.False(t, h.SendTo(ids[0], []byte("x")))
	late := h.Subscribe("late")
	h.Broadcast([]byte("hello"))
	assert.Equal(t, "hello", string(recv(t, late)))
}

func TestFullSubscriberIsEvicted(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")

	for i := 0; i < sendBuffer; i++ {
		require.True(t, h.SendTo("a", []byte("flood")))
	}

	// Buffer full: the next send fails and evicts the subscriber.
	assert.False(t, h.SendTo("a", []byte("overflow")))

	for i := 0; i < sendBuffer; i++ {
		<-a
	}
	_, open := <-a
	assert.False(t, open)
}
