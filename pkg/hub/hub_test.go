package hub

import (
	"encoding/json"
	"testing"
	"time"
)

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), want)
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestBroadcastFanout(t *testing.T) {
	h := New("test")
	go h.Run()

	c1 := NewClient(h, nil)
	c2 := NewClient(h, nil)
	waitCount(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"state": "live"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		msg := recv(t, c)
		if msg.Type != JSONMessage {
			t.Errorf("Type = %v, want JSON", msg.Type)
		}
		var decoded map[string]string
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if decoded["state"] != "live" {
			t.Errorf("payload = %v", decoded)
		}
	}
}

func TestBroadcastBinary(t *testing.T) {
	h := New("preview")
	go h.Run()

	c := NewClient(h, nil)
	waitCount(t, h, 1)

	frame := []byte{0xFF, 0xD8, 0xFF}
	h.BroadcastBinary(frame)

	msg := recv(t, c)
	if msg.Type != BinaryMessage {
		t.Errorf("Type = %v, want binary", msg.Type)
	}
	if string(msg.Data) != string(frame) {
		t.Errorf("Data = %v", msg.Data)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := New("test")
	go h.Run()

	slow := NewClient(h, nil)
	waitCount(t, h, 1)

	// Fill the client's buffer so the next broadcast cannot queue.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- NewBinaryMessage(nil)
	}

	h.BroadcastBinary([]byte("one too many"))
	waitCount(t, h, 0)
}

func TestInboundHandler(t *testing.T) {
	h := New("editor")

	var got []byte
	h.OnInbound = func(data []byte) { got = data }

	h.inbound([]byte(`{"type":"code_snapshot"}`))
	if string(got) != `{"type":"code_snapshot"}` {
		t.Errorf("inbound = %q", got)
	}

	// No handler set: must not panic.
	h.OnInbound = nil
	h.inbound([]byte("ignored"))
}
