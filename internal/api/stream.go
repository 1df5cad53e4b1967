package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stylewatch/stylewatch/internal/analysis"
	"github.com/stylewatch/stylewatch/internal/stomp"
)

// logTopicPrefix is the broker destination carrying one session's log lines.
const logTopicPrefix = "/topic/logs/"

// OpenLogStream connects to the backend's websocket broker and subscribes to
// the session's log topic. The returned stream never reconnects: when the
// connection drops, the entry channel closes and Err reports the cause.
func (c *Client) OpenLogStream(ctx context.Context, sessionID string) (analysis.LogStream, error) {
	conn, err := stomp.Dial(ctx, c.logURL)
	if err != nil {
		return nil, fmt.Errorf("connecting log channel: %w", err)
	}
	sub, err := conn.Subscribe(logTopicPrefix + sessionID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to session logs: %w", err)
	}
	ls := &logStream{conn: conn, entries: make(chan analysis.LogEntry, 16)}
	go ls.pump(sub)
	return ls, nil
}

type logStream struct {
	conn    *stomp.Conn
	entries chan analysis.LogEntry
}

func (ls *logStream) Entries() <-chan analysis.LogEntry { return ls.entries }

// Err reports why the stream ended: nil after a deliberate Close, the
// transport or broker failure otherwise.
func (ls *logStream) Err() error { return ls.conn.Err() }

func (ls *logStream) Close() error { return ls.conn.Close() }

// pump decodes broker messages into log entries until the subscription
// channel closes, which happens exactly once however the connection ends.
func (ls *logStream) pump(sub *stomp.Subscription) {
	defer close(ls.entries)
	for msg := range sub.C {
		select {
		case ls.entries <- decodeLogEntry(msg.Body):
		case <-ls.conn.Done():
			return
		}
	}
}

// decodeLogEntry parses one broker payload. The backend normally sends
// {"level":..,"message":..} JSON, but plain-text lines surface as info
// entries instead of being dropped.
func decodeLogEntry(body []byte) analysis.LogEntry {
	var wire struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Message != "" {
		return analysis.LogEntry{Level: analysis.ParseLevel(wire.Level), Message: wire.Message}
	}
	return analysis.LogEntry{Level: analysis.LevelInfo, Message: strings.TrimSpace(string(body))}
}
