package live

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/rs/zerolog/log"
)

// Hub fans recorded violation events out to teacher dashboards subscribed
// per exam. Publishing never blocks: a subscriber that cannot keep up is
// dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{} // examId -> subscribers
}

type subscriber struct {
	conn *websocket.Conn
	send chan models.ViolationEvent
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish delivers an event to every subscriber of the exam. Slow
// subscribers lose the event rather than stalling the pipeline.
func (h *Hub) Publish(examID string, ev models.ViolationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[examID] {
		select {
		case sub.send <- ev:
		default:
			log.Debug().Str("examId", examID).Msg("Dropping event for slow live subscriber")
		}
	}
}

// Subscribe registers a connection for one exam's event feed and starts its
// writer. It returns when the connection dies.
func (h *Hub) Subscribe(examID string, conn *websocket.Conn) {
	sub := &subscriber{
		conn: conn,
		send: make(chan models.ViolationEvent, 32),
	}

	h.mu.Lock()
	if h.subs[examID] == nil {
		h.subs[examID] = make(map[*subscriber]struct{})
	}
	h.subs[examID][sub] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("examId", examID).Msg("Live subscriber connected")
	defer h.unsubscribe(examID, sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reader loop only watches for close; subscribers never send data.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-sub.send:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unsubscribe(examID string, sub *subscriber) {
	h.mu.Lock()
	if set := h.subs[examID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, examID)
		}
	}
	h.mu.Unlock()

	sub.conn.Close()
	log.Info().Str("examId", examID).Msg("Live subscriber disconnected")
}

// SubscriberCount reports active subscribers for an exam.
func (h *Hub) SubscriberCount(examID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[examID])
}
