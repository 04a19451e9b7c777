package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingConn struct {
	mu   sync.Mutex
	got  []Envelope
	fail error
	wait time.Duration
}

func (c *recordingConn) Send(ctx context.Context, env Envelope) error {
	if c.wait > 0 {
		select {
		case <-time.After(c.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
	return nil
}

func (c *recordingConn) envelopes() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.got...)
}

func TestPushFansOutToJoinedConnections(t *testing.T) {
	hub := NewHub(time.Second)
	a, b, other := &recordingConn{}, &recordingConn{}, &recordingConn{}

	leaveA := hub.Join(a, "s1")
	defer leaveA()
	leaveB := hub.Join(b, "s1")
	defer leaveB()
	leaveOther := hub.Join(other, "s2")
	defer leaveOther()

	payload := map[string]string{"text": "hello"}
	if n := hub.Push(context.Background(), "s1", Envelope{Type: TypeTurnResult, Data: payload}); n != 2 {
		t.Fatalf("delivered to %d connections, want 2", n)
	}

	for _, c := range []*recordingConn{a, b} {
		got := c.envelopes()
		if len(got) != 1 {
			t.Fatalf("expected one envelope, got %d", len(got))
		}
		if got[0].SessionID != "s1" || got[0].Timestamp == 0 || got[0].Type != TypeTurnResult {
			t.Fatalf("unexpected envelope %+v", got[0])
		}
	}
	if len(other.envelopes()) != 0 {
		t.Fatal("push leaked to another session")
	}
}

func TestPushWithoutListenersIsNoop(t *testing.T) {
	hub := NewHub(time.Second)
	if n := hub.Push(context.Background(), "nobody", NewEnvelope(TypeInfo, "nobody", nil)); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	hub := NewHub(time.Second)
	leave := hub.Join(&recordingConn{}, "s1")
	hub.Join(&recordingConn{}, "s1")

	leave()
	leave()
	if n := hub.Count("s1"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestFailingConnectionIsDropped(t *testing.T) {
	hub := NewHub(50 * time.Millisecond)
	good := &recordingConn{}
	hub.Join(good, "s1")
	hub.Join(&recordingConn{fail: errors.New("broken pipe")}, "s1")
	hub.Join(&recordingConn{wait: time.Second}, "s1")

	if n := hub.Push(context.Background(), "s1", NewEnvelope(TypeInfo, "s1", "x")); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if n := hub.Count("s1"); n != 1 {
		t.Fatalf("count after push = %d, want 1", n)
	}
	if len(good.envelopes()) != 1 {
		t.Fatal("healthy connection should still receive the push")
	}
}

func TestSSEConnQueuesUntilClosed(t *testing.T) {
	c := NewSSEConn(1)
	if err := c.Send(context.Background(), NewEnvelope(TypeInfo, "s", 1)); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, NewEnvelope(TypeInfo, "s", 2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("full queue should time out, got %v", err)
	}

	if env := <-c.Events(); env.Data != 1 {
		t.Fatalf("unexpected event %+v", env)
	}

	c.Close()
	c.Close()
	if err := c.Send(context.Background(), NewEnvelope(TypeInfo, "s", 3)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWSConnWritesEnvelopes(t *testing.T) {
	hub := NewHub(time.Second)
	joined := make(chan struct{})
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		leave := hub.Join(NewWSConn(ws), "s1")
		defer leave()
		close(joined)
		// 保持连接直到客户端关闭
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	<-joined

	if n := hub.Push(context.Background(), "s1", NewEnvelope(TypeTurnResult, "s1", map[string]any{"text": "hi"})); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}

	var got struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	client.SetReadDeadline(time.Now().Add(time.Second))
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeTurnResult || got.Data["text"] != "hi" {
		t.Fatalf("unexpected message %+v", got)
	}
}
