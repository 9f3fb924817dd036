package hub

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-maskwatch/internal/log"
)

func newTestClient(h *Hub, buffer int) *Client {
	return &Client{hub: h, send: make(chan Message, buffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return Message{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHubBroadcastAndRetain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("state", log.Discard())
	go h.Run(ctx)

	early := newTestClient(h, 8)
	if !h.add(early) {
		t.Fatal("register failed")
	}

	if err := h.PublishJSON(map[string]string{"state": "masked"}); err != nil {
		t.Fatal(err)
	}
	if got := string(receive(t, early).Data); got != `{"state":"masked"}` {
		t.Errorf("early client got %s", got)
	}

	// A late client gets the retained state first.
	late := newTestClient(h, 8)
	h.add(late)
	if got := string(receive(t, late).Data); got != `{"state":"masked"}` {
		t.Errorf("late client got %s", got)
	}

	// Transient messages are delivered but not retained.
	if err := h.BroadcastJSON(map[string]int{"iterations": 3}); err != nil {
		t.Fatal(err)
	}
	receive(t, early)
	receive(t, late)

	if data, ok := h.Retained(); !ok || string(data) != `{"state":"masked"}` {
		t.Errorf("Retained() = %s, %v", data, ok)
	}
	if h.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", h.ClientCount())
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("state", log.Discard())
	go h.Run(ctx)

	slow := newTestClient(h, 1)
	h.add(slow)

	h.Broadcast(NewJSONMessage([]byte(`1`)))
	h.Broadcast(NewJSONMessage([]byte(`2`)))

	waitFor(t, func() bool { return h.ClientCount() == 0 })

	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow client's channel should be closed")
	}
}

func TestHubUnregisterAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("state", nil)
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	h.add(a)
	h.add(b)

	h.remove(a)
	if _, ok := <-a.send; ok {
		t.Error("unregistered client's channel should be closed")
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", h.ClientCount())
	}

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-b.send; ok {
		t.Error("client channels should be closed on stop")
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}

	// Registration after stop must not block.
	if h.add(newTestClient(h, 1)) {
		t.Error("add should fail on a stopped hub")
	}
}

func TestHubQuietWhenNotRunning(t *testing.T) {
	var buf bytes.Buffer
	h := New("state", log.New(&buf, "debug"))

	// Nothing drains the queue; overflowing it must not log per message.
	for i := 0; i < 1000; i++ {
		if err := h.PublishJSON(map[string]int{"seq": i}); err != nil {
			t.Fatal(err)
		}
	}

	if n := strings.Count(buf.String(), "outbound queue full"); n != 0 {
		t.Errorf("logged %d queue-full warnings for a hub that never ran", n)
	}
}
