package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/invigilo/invigilo/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialSubscriber connects one websocket client whose server side is
// registered on the hub for the given exam.
func dialSubscriber(t *testing.T, hub *Hub, examID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Subscribe(examID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the server side to finish registering.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(examID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ViolationEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.ViolationEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestHubDeliversToExamSubscribers(t *testing.T) {
	hub := NewHub()
	conn := dialSubscriber(t, hub, "exam-1")

	hub.Publish("exam-1", models.ViolationEvent{Type: models.ViolationCellPhone, Confidence: 0.9})

	ev := readEvent(t, conn)
	if ev.Type != models.ViolationCellPhone || ev.Confidence != 0.9 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHubScopesEventsPerExam(t *testing.T) {
	hub := NewHub()
	conn1 := dialSubscriber(t, hub, "exam-1")
	conn2 := dialSubscriber(t, hub, "exam-2")

	hub.Publish("exam-1", models.ViolationEvent{Type: models.ViolationTabSwitch})

	ev := readEvent(t, conn1)
	if ev.Type != models.ViolationTabSwitch {
		t.Fatalf("event = %+v", ev)
	}

	conn2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var other models.ViolationEvent
	if err := conn2.ReadJSON(&other); err == nil {
		t.Fatalf("exam-2 subscriber received exam-1 event: %+v", other)
	}
}

func TestHubPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub()
	// Must not block or panic.
	hub.Publish("exam-1", models.ViolationEvent{Type: models.ViolationNoFace})
	if n := hub.SubscriberCount("exam-1"); n != 0 {
		t.Fatalf("subscriber count = %d", n)
	}
}

func TestHubUnsubscribesOnClose(t *testing.T) {
	hub := NewHub()
	conn := dialSubscriber(t, hub, "exam-1")

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount("exam-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
