package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/invigilo/invigilo/internal/detect"
	"github.com/invigilo/invigilo/internal/models"
	"github.com/redis/go-redis/v9"
)

type dispatchCall struct {
	examID   string
	email    string
	username string
	sig      detect.Signal
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, examID, email, username string, sig detect.Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{examID, email, username, sig})
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

const (
	testStream = "proctor:signals"
	testGroup  = "proctor-engine"
)

func newTestConsumer(t *testing.T) (*Consumer, *redis.Client, *fakeDispatcher) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dispatcher := &fakeDispatcher{}
	c := NewConsumer(client, testStream, testGroup, "consumer-test", dispatcher, time.Hour)

	if err := c.createConsumerGroup(context.Background()); err != nil {
		t.Fatalf("create consumer group: %v", err)
	}
	return c, client, dispatcher
}

func addSignal(t *testing.T, client *redis.Client, values map[string]interface{}) {
	t.Helper()
	if err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		Values: values,
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), testStream, testGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return p.Count
}

func TestConsumerDispatchesAndAcks(t *testing.T) {
	c, client, dispatcher := newTestConsumer(t)

	addSignal(t, client, map[string]interface{}{
		"examId":   "exam-1",
		"email":    "a@test.io",
		"username": "Alice",
		"signal":   signalJSON(t, detect.Signal{Kind: detect.SignalBrowser, Event: models.ViolationTabSwitch}),
	})

	if err := c.consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if dispatcher.callCount() != 1 {
		t.Fatalf("want 1 dispatch, got %d", dispatcher.callCount())
	}
	call := dispatcher.calls[0]
	if call.examID != "exam-1" || call.email != "a@test.io" || call.username != "Alice" {
		t.Fatalf("identity mismatch: %+v", call)
	}
	if call.sig.Kind != detect.SignalBrowser || call.sig.Event != models.ViolationTabSwitch {
		t.Fatalf("signal mismatch: %+v", call.sig)
	}
	if n := pendingCount(t, client); n != 0 {
		t.Fatalf("message not acknowledged, pending=%d", n)
	}
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	c, client, dispatcher := newTestConsumer(t)

	addSignal(t, client, map[string]interface{}{
		"examId": "exam-1",
		// no email, no signal
	})
	addSignal(t, client, map[string]interface{}{
		"examId": "exam-1",
		"email":  "a@test.io",
		"signal": "{broken",
	})
	addSignal(t, client, map[string]interface{}{
		"examId": "exam-1",
		"email":  "a@test.io",
		"signal": signalJSON(t, detect.Signal{Kind: detect.SignalAudio, RMS: 0.05}),
	})

	if err := c.consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}

	// Only the well-formed entry reaches the dispatcher, but all three are
	// acknowledged so nothing is redelivered.
	if dispatcher.callCount() != 1 {
		t.Fatalf("want 1 dispatch, got %d", dispatcher.callCount())
	}
	if dispatcher.calls[0].sig.Kind != detect.SignalAudio {
		t.Fatalf("wrong message dispatched: %+v", dispatcher.calls[0])
	}
	if n := pendingCount(t, client); n != 0 {
		t.Fatalf("malformed messages left pending: %d", n)
	}
}

func TestConsumerGroupOnlySeesNewMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// An entry written before the group exists is behind the "$" cursor.
	if err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"examId": "exam-1", "email": "a@test.io", "signal": signalJSON(t, detect.Signal{Kind: detect.SignalAudio, RMS: 0.05})},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	dispatcher := &fakeDispatcher{}
	c := NewConsumer(client, testStream, testGroup, "consumer-test", dispatcher, time.Hour)
	if err := c.createConsumerGroup(context.Background()); err != nil {
		t.Fatalf("create consumer group: %v", err)
	}

	if err := c.consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if dispatcher.callCount() != 0 {
		t.Fatalf("pre-group backlog must not be consumed, got %d dispatches", dispatcher.callCount())
	}
}

func TestConsumerGroupCreateIsIdempotent(t *testing.T) {
	c, _, _ := newTestConsumer(t)

	// Second creation hits BUSYGROUP, which is not an error.
	if err := c.createConsumerGroup(context.Background()); err != nil {
		t.Fatalf("repeat group creation should be a no-op: %v", err)
	}
}

func TestConsumerCleanupTrimsOldEntries(t *testing.T) {
	c, client, _ := newTestConsumer(t)

	addSignal(t, client, map[string]interface{}{
		"examId": "exam-1", "email": "a@test.io",
		"signal": signalJSON(t, detect.Signal{Kind: detect.SignalAudio, RMS: 0.05}),
	})

	// Retention one hour: a just-written entry survives the trim.
	if err := c.cleanupOldMessages(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	n, err := client.XLen(context.Background(), testStream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("fresh entry trimmed, len=%d", n)
	}

	// With zero retention everything is older than the cutoff.
	c.retentionDuration = 0
	time.Sleep(5 * time.Millisecond)
	if err := c.cleanupOldMessages(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	n, err = client.XLen(context.Background(), testStream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired entries kept, len=%d", n)
	}
}
