package historical

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cbtrade/mdstore/internal/models"
)

// StreamHandler is an http.Handler that upgrades to a websocket and streams
// a dataset's historical range in chunks.
//
// Query parameters: exchange, coin, interval, start, end (RFC3339),
// chunk_size (optional).
type StreamHandler struct {
	manager  *Manager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates the websocket streaming handler.
func NewStreamHandler(manager *Manager, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logger.With("component", "stream_handler"),
	}
}

// ServeHTTP implements http.Handler.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meta := models.Metadata{
		DataType: models.DataTypeOHLCV,
		Exchange: q.Get("exchange"),
		Coin:     q.Get("coin"),
		Interval: q.Get("interval"),
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	end := time.Now().UTC()
	if raw := q.Get("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid end: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	chunkSize := 0
	if raw := q.Get("chunk_size"); raw != "" {
		chunkSize, err = strconv.Atoi(raw)
		if err != nil || chunkSize < 0 {
			http.Error(w, "invalid chunk_size", http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := NewWebsocketSink(conn, 30*time.Second)
	if err := h.manager.StreamHistoricalData(r.Context(), meta, start, end, sink, chunkSize); err != nil {
		h.logger.Error("stream failed", "dataset", meta.String(), "error", err)
	}
}
