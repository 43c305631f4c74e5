package http

import (
	"log"
	"net/http"

	"exam-grading-service/internal/app"
	"github.com/gorilla/websocket"
)

// WSHandler streams graded-submission events for one exam, so instructors
// can watch results arrive while a cohort submits.
type WSHandler struct {
	feed     *app.ResultsFeed
	upgrader websocket.Upgrader
}

func NewWSHandler(feed *app.ResultsFeed) *WSHandler {
	return &WSHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and forwards grading events until the client
// disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	examID := r.URL.Query().Get("examId")
	if examID == "" {
		http.Error(w, "missing examId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.feed.Subscribe(examID)
	defer cancel()

	if err := conn.WriteJSON(outboundMessage[string]{Type: "subscribed", Payload: examID}); err != nil {
		return
	}

	// Reader goroutine only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[app.GradedEvent]{Type: "graded", Payload: ev}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
