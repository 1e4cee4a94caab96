package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/pdfqa/pkg/qa"
)

// Message is the envelope for every WebSocket frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type askOptions struct {
	SourceIDs []int64 `json:"source_ids,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msgType, content string, data any) error {
	msg := Message{Type: msgType, Content: content}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendWS(ws, "error", "invalid message", nil)
			continue
		}

		switch msg.Type {
		case "ask", "":
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleAskMessage(ctx, ws, msg)
			}()
		default:
			s.sendWS(ws, "error", "unsupported message type: "+msg.Type, nil)
		}
	}
}

func (s *Server) handleAskMessage(ctx context.Context, ws *wsConn, msg Message) {
	var opts askOptions
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &opts); err != nil {
			s.sendWS(ws, "error", "invalid ask options", nil)
			return
		}
	}

	s.sendWS(ws, "status", "Searching sources", nil)

	resp, err := s.deps.QA.Ask(ctx, qa.Request{
		Question:  msg.Content,
		SourceIDs: opts.SourceIDs,
		TopK:      opts.TopK,
	})
	if isClientError(err) {
		s.sendWS(ws, "error", err.Error(), nil)
		return
	}
	if err != nil {
		s.logger.Error("websocket ask failed", zap.Error(err))
		s.sendWS(ws, "error", "internal server error", nil)
		return
	}

	s.sendWS(ws, "response", resp.Answer, resp)
}

func (s *Server) sendWS(ws *wsConn, msgType, content string, data any) {
	if err := ws.send(msgType, content, data); err != nil {
		s.logger.Warn("failed to send websocket message", zap.String("type", msgType), zap.Error(err))
	}
}
