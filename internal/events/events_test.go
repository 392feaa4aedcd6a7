package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(TypePlaybackStarted, map[string]any{"url": "http://x/y.mp4"})

	event := <-ch
	require.Equal(t, "event", event.Object)
	require.Equal(t, TypePlaybackStarted, event.Type)
	require.Equal(t, fixed, event.At)
	require.Equal(t, "http://x/y.mp4", event.Data["url"])
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.buffer = 1
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(TypePeerFound, nil)
		bus.Publish(TypePeerFound, nil)
		bus.Publish(TypePeerFound, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Equal(t, uint64(2), bus.Dropped())
}

func TestBus_CancelAndClose(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)

	ch, _ = bus.Subscribe()
	bus.Close()
	_, ok = <-ch
	require.False(t, ok)

	ch, _ = bus.Subscribe()
	_, ok = <-ch
	require.False(t, ok)
	bus.Publish(TypePeerLost, nil)
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, bus)

	// Run subscribes asynchronously; keep publishing until one arrives.
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, time.Second, 10*time.Millisecond)
	bus.Publish(TypeSessionOpened, map[string]any{"track_id": 42})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	require.Equal(t, TypeSessionOpened, event.Type)
	require.EqualValues(t, 42, event.Data["track_id"])
}

func TestHub_Pings(t *testing.T) {
	hub := NewHub(zerolog.Nop(), WithPingInterval(20*time.Millisecond))
	conn := dial(t, hub)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"object":"ping"`)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	// Register without a write loop so nothing drains the queue.
	upgraded := make(chan *wsClient, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- hub.register(conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := <-upgraded

	for i := 0; i < clientBuffer; i++ {
		hub.Broadcast(Event{Object: "event", Type: TypePeerFound})
	}
	require.Equal(t, 1, hub.ClientCount())
	require.Len(t, client.send, clientBuffer)

	hub.Broadcast(Event{Object: "event", Type: TypePeerFound})
	require.Equal(t, 0, hub.ClientCount())

	select {
	case <-client.done:
	default:
		t.Fatal("slow client was not closed")
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dial(t, hub)

	hub.Close()
	require.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

func TestNATSSink_Subject(t *testing.T) {
	require.Equal(t, "freebox.hub.playback.started", NewNATSSink(&fakePublisher{}, "", zerolog.Nop()).Subject(TypePlaybackStarted))
	require.Equal(t, "home.cast.nsd.peer_lost", NewNATSSink(&fakePublisher{}, "home.cast.", zerolog.Nop()).Subject(TypePeerLost))
}

func TestNATSSink_ForwardsBusEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "hub", zerolog.Nop())
	bus := NewBus(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, time.Second, 10*time.Millisecond)
	bus.Publish(TypeScheduleFired, map[string]any{"schedule_id": "sch_1"})

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "hub.schedule.fired", pub.subjects[0])

	var event Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &event))
	require.Equal(t, "sch_1", event.Data["schedule_id"])

	cancel()
	<-done
}

func TestNATSSink_PublishError(t *testing.T) {
	sink := NewNATSSink(&fakePublisher{err: errors.New("nats: connection closed")}, "hub", zerolog.Nop())
	err := sink.Publish(Event{Type: TypePeerFound})
	require.ErrorContains(t, err, "connection closed")
}
