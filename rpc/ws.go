package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"tipchain/core/events"
	"tipchain/crypto"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsSubscriberBuffer = 256
)

// streamFilter narrows the tip stream to events involving an address.
type streamFilter struct {
	tipper  string
	creator string
}

func (f streamFilter) match(evt StreamEvent) bool {
	if f.tipper != "" && evt.Attributes["tipper"] != f.tipper {
		return false
	}
	if f.creator != "" && evt.Attributes["creator"] != f.creator {
		return false
	}
	return strings.HasPrefix(evt.Type, "tipping.")
}

func (s *Server) handleTipStream(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseStreamFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe the client closing the socket.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamTips(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("tip stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func parseStreamFilter(r *http.Request) (streamFilter, error) {
	var filter streamFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("tipper")); raw != "" {
		addr, err := decodeAddressParam("tipper", raw)
		if err != nil {
			return filter, err
		}
		filter.tipper = crypto.FormatAddress(addr)
	}
	if raw := strings.TrimSpace(query.Get("creator")); raw != "" {
		addr, err := decodeAddressParam("creator", raw)
		if err != nil {
			return filter, err
		}
		filter.creator = crypto.FormatAddress(addr)
	}
	return filter, nil
}

func (s *Server) streamTips(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.node.Events().Subscribe(wsSubscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			payload, ok := evt.(events.Payload)
			if !ok {
				continue
			}
			raw := payload.Event()
			if raw == nil {
				continue
			}
			frame := StreamEvent{Type: raw.Type, Attributes: raw.Attributes}
			if !filter.match(frame) {
				continue
			}
			if err := writeStreamEvent(ctx, conn, frame); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, frame StreamEvent) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
