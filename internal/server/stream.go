package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"vidpipe/internal/logging"
	"vidpipe/internal/progress"
)

// FinalFrame closes a progress stream: completion with the published URL,
// or the error that ended the job.
type FinalFrame struct {
	Completed bool            `json:"completed,omitempty"`
	URL       string          `json:"url,omitempty"`
	Error     string          `json:"error,omitempty"`
	Status    progress.Status `json:"status"`
}

func closingFrame(s progress.State) FinalFrame {
	if s.Status == progress.StatusCompleted {
		return FinalFrame{Completed: true, URL: s.URL, Status: s.Status}
	}
	msg := s.Error
	if msg == "" {
		msg = string(s.Status)
	}
	return FinalFrame{Error: msg, Status: s.Status}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(s.logger, w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	states, unsubscribe, err := s.jobs.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(s.pingPeriod())
	defer keepAlive.Stop()

	write := func(payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("encode progress frame", logging.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case state, open := <-states:
			if !open {
				return
			}
			if !write(state) {
				return
			}
			if state.Final() {
				write(closingFrame(state))
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	states, unsubscribe, err := s.jobs.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	period := s.pingPeriod()
	_ = conn.SetReadDeadline(time.Now().Add(2 * period))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * period))
	})

	// The client sends nothing; reading only surfaces close frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(period)
	defer ping.Stop()

	send := func(payload any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(payload) == nil
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case state, open := <-states:
			if !open {
				return
			}
			if !send(state) {
				return
			}
			if state.Final() {
				send(closingFrame(state))
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(state.Status)),
					time.Now().Add(wsWriteWait))
				return
			}
		}
	}
}

func (s *Server) pingPeriod() time.Duration {
	if s.cfg.WebSocketPingPeriod > 0 {
		return time.Duration(s.cfg.WebSocketPingPeriod) * time.Second
	}
	return 30 * time.Second
}
