package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/assembly.monitor/internal/monitoring"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

var logf = monitoring.Prefixed("[api] ")

// Number of messages buffered per stream client before events are dropped
// for that client.
const streamSendBufferSize = 32

const streamWriteTimeout = 5 * time.Second

// StreamMessage is one frame of /api/stream. Exactly one of Snapshot and
// Event is set.
type StreamMessage struct {
	Type     string             `json:"type"` // "snapshot" or "event"
	Snapshot *pipeline.Snapshot `json:"snapshot,omitempty"`
	Event    *pipeline.Event    `json:"event,omitempty"`
}

// streamClient owns one websocket connection. Events arrive from the
// dispatcher goroutine, snapshots from a ticker; a single writer drains
// both so a slow client never blocks the dispatcher.
type streamClient struct {
	conn    *websocket.Conn
	send    chan StreamMessage
	dropped atomic.Uint64
}

func (c *streamClient) HandleEvent(ev pipeline.Event) {
	select {
	case c.send <- StreamMessage{Type: "event", Event: &ev}:
	default:
		if c.dropped.Add(1) == 1 {
			logf("stream client %s is slow; dropping events", c.conn.RemoteAddr())
		}
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &streamClient{conn: conn, send: make(chan StreamMessage, streamSendBufferSize)}
	if s.events != nil {
		unsubscribe := s.events.Subscribe("stream "+conn.RemoteAddr().String(), c)
		defer unsubscribe()
	}

	// Read from the websocket only to notice when the client goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.StreamInterval)
	defer ticker.Stop()

	if !c.write(s.snapshotMessage()) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !c.write(s.snapshotMessage()) {
				return
			}
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		}
	}
}

func (s *Server) snapshotMessage() StreamMessage {
	snap := s.ctl.Snapshot()
	return StreamMessage{Type: "snapshot", Snapshot: &snap}
}

func (c *streamClient) write(msg StreamMessage) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		logf("write to stream client %s: %v", c.conn.RemoteAddr(), err)
		return false
	}
	return true
}
