package observer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/telemetry"
)

func frameAt(tick int32) *telemetry.Snapshot {
	pos := components.Position{X: 1, Y: 2}
	return &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Tick:    tick,
		Time:    float64(tick) * 0.1,
		Agents:  []telemetry.AgentState{{ID: 1, Strain: 1, X: 1, Y: 2, Health: 50, Alive: true, Focus: "combat"}},
		Events: []telemetry.Event{
			telemetry.NewMoveEvent(tick, 0, 1, pos, 0.5),
			telemetry.NewAttackEvent(tick, 0, 1, 2, 9, false, false),
		},
	}
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_BroadcastsFrames(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, hub)
	require.NoError(t, hub.Consume(frameAt(3)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got telemetry.Snapshot
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, int32(3), got.Tick)
	require.Len(t, got.Agents, 1)
	assert.Equal(t, "combat", got.Agents[0].Focus)
	require.Len(t, got.Events, 1, "move events are filtered")
	assert.Equal(t, telemetry.EventAttack, got.Events[0].Type)
}

func TestHub_EveryNthTick(t *testing.T) {
	hub := NewHub(Options{Every: 2, IncludeMoves: true})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, hub)
	for tick := int32(1); tick <= 4; tick++ {
		require.NoError(t, hub.Consume(frameAt(tick)))
	}

	var ticks []int32
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var got telemetry.Snapshot
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Len(t, got.Events, 2)
		ticks = append(ticks, got.Tick)
	}
	assert.Equal(t, []int32{2, 4}, ticks)
}

func TestHub_ClientLeaves(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, hub)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Broadcasting with nobody listening is fine.
	assert.NoError(t, hub.Consume(frameAt(1)))
}

func TestHub_DropsForSlowClients(t *testing.T) {
	hub := NewHub(Options{})
	c := &client{id: 1, out: make(chan []byte, 1)}
	hub.clients[c.id] = c

	require.NoError(t, hub.Consume(frameAt(1)))
	require.NoError(t, hub.Consume(frameAt(2)))
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestHub_Snapshot(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, hub.Consume(frameAt(7)))
	resp, err = http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got telemetry.Snapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, int32(7), got.Tick)
}
