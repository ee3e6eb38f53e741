package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/logging"
)

func TestStatusBroadcaster_StreamsSnapshotToConnectedClient(t *testing.T) {
	b := NewStatusBroadcaster(logging.New(logging.Config{Output: io.Discard}))

	srv := httptest.NewServer(http.HandlerFunc(b.Handler))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give Handler's registration a moment to land before broadcasting, since
	// the upgrade and the client-map insert race against this goroutine.
	time.Sleep(10 * time.Millisecond)

	want := Snapshot{ExecutionCount: 3, Completed: 1}
	b.Broadcast(want)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Snapshot
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, want.ExecutionCount, got.ExecutionCount)
	require.Equal(t, want.Completed, got.Completed)
}

func TestStatusBroadcaster_SkipsFullClientBufferWithoutBlocking(t *testing.T) {
	b := NewStatusBroadcaster(logging.New(logging.Config{Output: io.Discard}))
	ch := make(chan Snapshot) // unbuffered and undrained - any send would block
	b.clients[nil] = ch

	done := make(chan struct{})
	go func() {
		b.Broadcast(Snapshot{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client channel")
	}
}
