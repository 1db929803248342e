package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
)

// Socket message types
const (
	MessageStatus = "status"
	MessageResult = "result"
	MessageError  = "error"
)

// SocketMessage is pushed to analysis socket clients.
type SocketMessage struct {
	Type    string          `json:"type"`
	Status  string          `json:"status,omitempty"`
	Outcome *domain.Outcome `json:"outcome,omitempty"`
	Error   *errorResponse  `json:"error,omitempty"`
}

// handleAnalysisSocket serves one analysis per received request message until
// the client disconnects.
func (s *Server) handleAnalysisSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(analysisBodyLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// gorilla allows one concurrent writer; every write goes through this channel.
	out := make(chan SocketMessage, 4)
	writerDone := make(chan struct{})
	go s.socketWriter(ctx, conn, out, writerDone)

	send := func(msg SocketMessage) bool {
		select {
		case out <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	s.logger.Debug("WebSocket client connected", zap.String("remote", r.RemoteAddr))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		var req domain.AnalysisRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !send(SocketMessage{Type: MessageError, Error: &errorResponse{Error: "invalid request message"}}) {
				break
			}
			continue
		}

		if !send(SocketMessage{Type: MessageStatus, Status: "processing"}) {
			break
		}
		msg := SocketMessage{Type: MessageResult}
		outcome, err := s.analyzer.FetchAnalysis(ctx, req)
		if err != nil {
			_, body := statusFor(err)
			msg = SocketMessage{Type: MessageError, Error: &body}
		} else {
			msg.Outcome = outcome
		}
		if !send(msg) {
			break
		}
		// Pongs are not processed while the analysis runs.
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}

	cancel()
	<-writerDone
}

func (s *Server) socketWriter(ctx context.Context, conn *websocket.Conn, out <-chan SocketMessage, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			return
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("WebSocket write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
