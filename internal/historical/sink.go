package historical

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cbtrade/mdstore/internal/models"
)

// Message types emitted while streaming historical data.
const (
	MessageTypeChunk    = "historical_data_chunk"
	MessageTypeComplete = "historical_data_complete"
	MessageTypeError    = "historical_data_error"
)

// Message is one streaming envelope pushed to a Sink.
type Message struct {
	Type     string               `json:"type"`
	Exchange string               `json:"exchange"`
	Coin     string               `json:"coin"`
	Interval string               `json:"interval"`
	Offset   int                  `json:"offset,omitempty"`
	Data     []models.OHLCVRecord `json:"data,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Sink receives streamed messages. Send failures end the stream.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// WebsocketSink pushes messages over a websocket connection as JSON.
type WebsocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebsocketSink wraps an established websocket connection. A
// non-positive timeout disables write deadlines.
func NewWebsocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebsocketSink {
	return &WebsocketSink{conn: conn, writeTimeout: writeTimeout}
}

// Send implements Sink.
func (s *WebsocketSink) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteJSON(msg)
}
