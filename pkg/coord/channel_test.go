package coord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startEndpoint runs an upgrade server that hands each accepted channel to
// the test through accepted.
func startEndpoint(t *testing.T) (url string, accepted chan *WSChannel) {
	t.Helper()
	accepted = make(chan *WSChannel, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		accepted <- ch
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), accepted
}

func TestWSChannelRoundTrip(t *testing.T) {
	url, accepted := startEndpoint(t)

	client, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	msg, _ := NewMessage(TypeCaptureRequest, "cid-net", CaptureRequest{ExposureCount: 5, IntervalUS: 2000})
	if err := client.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-server.Receive():
		if got.Type != TypeCaptureRequest || got.CorrelationID != "cid-net" {
			t.Errorf("received %+v, want the capture request", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}

	// And the other direction.
	reply, _ := NewMessage(TypeCaptureReady, "cid-net", nil)
	if err := server.Send(reply); err != nil {
		t.Fatalf("server Send() error = %v", err)
	}
	select {
	case got := <-client.Receive():
		if got.Type != TypeCaptureReady {
			t.Errorf("received %v, want capture_ready", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reply never arrived")
	}
}

func TestWSChannelDropsMalformed(t *testing.T) {
	url, accepted := startEndpoint(t)

	// A raw client writes garbage straight onto the socket, then a valid
	// message.
	raw, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	server := <-accepted
	defer server.Close()

	if err := raw.WriteMessage(websocket.TextMessage, []byte("{{{ not json")); err != nil {
		t.Fatal(err)
	}
	msg, _ := NewMessage(TypeCaptureReady, "after-garbage", nil)
	data, _ := msg.Bytes()
	if err := raw.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-server.Receive():
		if got.CorrelationID != "after-garbage" {
			t.Errorf("received %+v, want the message after the garbage", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid message never arrived past the malformed one")
	}
}

func TestWSChannelSendAfterClose(t *testing.T) {
	url, accepted := startEndpoint(t)

	client, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	(<-accepted).Close()

	client.Close()
	msg, _ := NewMessage(TypeCaptureReady, "", nil)
	if err := client.Send(msg); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send() after close error = %v, want ErrChannelClosed", err)
	}
}

func TestWSChannelReceiveClosesOnDisconnect(t *testing.T) {
	url, accepted := startEndpoint(t)

	client, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server := <-accepted

	server.Close()

	select {
	case _, ok := <-client.Receive():
		if ok {
			t.Error("Receive() delivered a message, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() never closed after peer disconnect")
	}
}

func TestPipeClosePropagates(t *testing.T) {
	a, b := Pipe()

	msg, _ := NewMessage(TypeCaptureReady, "", nil)
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := <-b.Receive(); got.Type != TypeCaptureReady {
		t.Errorf("received %v, want capture_ready", got.Type)
	}

	a.Close()
	// Send-after-close must fail every time, even with buffer space left.
	for i := 0; i < 50; i++ {
		if err := b.Send(msg); !errors.Is(err, ErrChannelClosed) {
			t.Fatalf("Send() %d on other half after close error = %v, want ErrChannelClosed", i, err)
		}
	}
	// Closing the second half after the first must not panic.
	b.Close()
}

func TestPipeReceiveClosesOnClose(t *testing.T) {
	a, b := Pipe()
	a.Close()

	select {
	case _, ok := <-b.Receive():
		if ok {
			t.Error("Receive() delivered a message, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() never closed after peer close")
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/coord"); err == nil {
		t.Error("Dial() = nil error for unreachable peer, want error")
	}
}
