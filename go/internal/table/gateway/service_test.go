package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/poolhall/go/internal/table"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	published chan *events.Event
}

func (m *recordingMirror) Publish(event *events.Event) {
	select {
	case m.published <- event:
	default:
	}
}

func (m *recordingMirror) Connected() bool { return true }

func startGateway(t *testing.T, mirror Mirror) (*Service, *httptest.Server) {
	t.Helper()

	svc := NewService(DefaultConfig(), mirror)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return svc, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/table"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ events.InboundType, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(events.Inbound{Type: typ, Data: raw}))
}

// readUntil reads events until one of eventType arrives
func readUntil(t *testing.T, conn *websocket.Conn, eventType events.EventType) *events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event events.Event
		require.NoError(t, conn.ReadJSON(&event), "waiting for %s", eventType)
		if event.Type == eventType {
			return &event
		}
	}
}

func TestGatewayJoinRoundTrip(t *testing.T) {
	_, srv := startGateway(t, nil)
	conn := dial(t, srv)

	send(t, conn, events.InboundJoin, events.IdentityPayload{ID: "alice"})

	ack, err := events.Decode[events.JoinAckPayload](readUntil(t, conn, events.EventTypeJoinAck))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "alice", ack.ID)

	roster, err := events.Decode[events.RosterPayload](readUntil(t, conn, events.EventTypeRoster))
	require.NoError(t, err)
	require.Len(t, roster.Participants, 1)
	assert.Equal(t, "alice", roster.Participants[0].ID)

	send(t, conn, events.InboundHeartbeat, events.IdentityPayload{ID: "alice"})
	readUntil(t, conn, events.EventTypeHeartbeatAck)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad, err := events.Decode[events.ErrorPayload](readUntil(t, conn, events.EventTypeError))
	require.NoError(t, err)
	assert.Equal(t, table.CodeBadRequest, bad.Code)
}

func TestGatewayLockHandoverOnClose(t *testing.T) {
	_, srv := startGateway(t, nil)
	p1 := dial(t, srv)
	p2 := dial(t, srv)

	send(t, p1, events.InboundJoin, events.IdentityPayload{ID: "p1"})
	readUntil(t, p1, events.EventTypeJoinAck)
	send(t, p1, events.InboundAcquireLock, events.IdentityPayload{ID: "p1"})
	readUntil(t, p1, events.EventTypeLockStateChanged)

	send(t, p2, events.InboundJoin, events.IdentityPayload{ID: "p2"})
	readUntil(t, p2, events.EventTypeJoinAck)
	send(t, p2, events.InboundAcquireLock, events.IdentityPayload{ID: "p2"})
	rejected, err := events.Decode[events.ErrorPayload](readUntil(t, p2, events.EventTypeError))
	require.NoError(t, err)
	assert.Equal(t, table.CodeAlreadyHeld, rejected.Code)

	require.NoError(t, p1.Close())

	released, err := events.Decode[events.LockStateChangedPayload](readUntil(t, p2, events.EventTypeLockStateChanged))
	require.NoError(t, err)
	assert.False(t, released.Held)

	send(t, p2, events.InboundAcquireLock, events.IdentityPayload{ID: "p2"})
	acquired, err := events.Decode[events.LockStateChangedPayload](readUntil(t, p2, events.EventTypeLockStateChanged))
	require.NoError(t, err)
	assert.Equal(t, events.LockStateChangedPayload{HolderID: "p2", Held: true}, acquired)
}

func TestGatewayHTTPEndpoints(t *testing.T) {
	mirror := &recordingMirror{published: make(chan *events.Event, 64)}
	_, srv := startGateway(t, mirror)
	conn := dial(t, srv)

	send(t, conn, events.InboundJoin, events.IdentityPayload{ID: "alice"})
	readUntil(t, conn, events.EventTypeJoinAck)
	send(t, conn, events.InboundAcquireLock, events.IdentityPayload{ID: "alice"})
	readUntil(t, conn, events.EventTypeLockStateChanged)

	resp, err := http.Get(srv.URL + "/api/table/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap table.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "alice", snap.HolderID)
	require.Len(t, snap.Participants, 1)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(health.Body).Decode(&status))
	assert.True(t, status.Healthy)
	assert.True(t, status.HubRunning)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, 1, status.Connections)
	assert.True(t, status.MirrorEnabled)

	stats, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	var cs ConnectionStats
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&cs))
	assert.Equal(t, 1, cs.TotalConnections)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	require.Equal(t, http.StatusOK, metrics.StatusCode)
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# TYPE table_sessions gauge")
	assert.Contains(t, string(body), "table_sessions 1")
	assert.Contains(t, string(body), "table_hub_running 1")
	assert.Contains(t, string(body), "table_nats_connected 1")
	assert.Contains(t, string(body), "# TYPE table_broadcasts_total counter")

	// only table-wide broadcasts are mirrored, never the sender-only JoinAck
	mirrored := map[events.EventType]bool{}
	timeout := time.After(time.Second)
	for !mirrored[events.EventTypeLockStateChanged] {
		select {
		case e := <-mirror.published:
			mirrored[e.Type] = true
		case <-timeout:
			t.Fatal("LockStateChanged was not mirrored")
		}
	}
	assert.False(t, mirrored[events.EventTypeJoinAck])
	assert.True(t, mirrored[events.EventTypeRoster])
}
