package detect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/invigilo/invigilo/internal/models"
)

type recorderCall struct {
	examID   string
	email    string
	username string
	delta    map[models.ViolationType]int
	evidence []models.Evidence
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorderCall
	err   error
}

func (r *fakeRecorder) Record(ctx context.Context, examID, email, username string, delta map[models.ViolationType]int, evidence []models.Evidence) (*models.CheatingLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[models.ViolationType]int, len(delta))
	for t, n := range delta {
		cp[t] = n
	}
	r.calls = append(r.calls, recorderCall{examID, email, username, cp, append([]models.Evidence(nil), evidence...)})
	if r.err != nil {
		return nil, r.err
	}
	return &models.CheatingLog{ExamID: examID, Email: email, Username: username}, nil
}

func (r *fakeRecorder) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRecorder) lastCall() recorderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	url   string
	err   error
}

func (u *fakeUploader) Upload(ctx context.Context, frame []byte, name string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.ViolationEvent
}

func (p *fakePublisher) Publish(examID string, ev models.ViolationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// newTestPipeline wires a pipeline to fakes with a very long autosave
// interval so only explicit flushes move pending state. Delivery results are
// observed through the outcome channel.
func newTestPipeline(t *testing.T, rec *fakeRecorder, up Uploader, pub Publisher) (*Pipeline, chan Outcome) {
	t.Helper()

	pool := NewWorkerPool(context.Background(), 2)
	t.Cleanup(pool.Close)

	p := NewPipeline(context.Background(), "exam-1", "student@test.io", "Alice", rec, up, pub, pool, time.Hour)
	t.Cleanup(p.Stop)

	outcomes := make(chan Outcome, 16)
	p.onOutcome = func(o Outcome) { outcomes <- o }
	return p, outcomes
}

func waitOutcome(t *testing.T, ch chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery outcome")
		return Outcome{}
	}
}

func browserSignal(t models.ViolationType, at time.Time) Signal {
	return Signal{Kind: SignalBrowser, Event: t, At: at}
}

func TestPipelineRecordsBrowserViolation(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	p, outcomes := newTestPipeline(t, rec, nil, pub)

	p.Handle(context.Background(), browserSignal(models.ViolationTabSwitch, time.Now()))

	o := waitOutcome(t, outcomes)
	if !o.Delivered {
		t.Fatalf("expected delivery, got error: %v", o.Err)
	}

	call := rec.lastCall()
	if call.examID != "exam-1" || call.email != "student@test.io" || call.username != "Alice" {
		t.Fatalf("identity mismatch: %+v", call)
	}
	if call.delta[models.ViolationTabSwitch] != 1 || len(call.delta) != 1 {
		t.Fatalf("unexpected delta: %v", call.delta)
	}
	if pub.count() != 1 {
		t.Fatalf("live feed should see exactly one event, saw %d", pub.count())
	}
}

func TestPipelineDebouncesRepeatedSignals(t *testing.T) {
	rec := &fakeRecorder{}
	p, outcomes := newTestPipeline(t, rec, nil, nil)

	now := time.Now()
	p.Handle(context.Background(), browserSignal(models.ViolationTabSwitch, now))
	p.Handle(context.Background(), browserSignal(models.ViolationTabSwitch, now.Add(time.Second)))
	p.Handle(context.Background(), browserSignal(models.ViolationTabSwitch, now.Add(2*time.Second)))

	waitOutcome(t, outcomes)
	// Give suppressed signals a moment to (incorrectly) schedule work.
	time.Sleep(50 * time.Millisecond)
	if n := rec.callCount(); n != 1 {
		t.Fatalf("burst within cooldown should record once, recorded %d times", n)
	}
}

func TestPipelineObjectDetectionUploadsEvidence(t *testing.T) {
	rec := &fakeRecorder{}
	up := &fakeUploader{url: "https://evidence.test/abc.jpg"}
	p, outcomes := newTestPipeline(t, rec, up, nil)

	p.Handle(context.Background(), Signal{
		Kind:    SignalObjects,
		Objects: []Detection{{Class: "cell phone", Score: 0.9}},
		Frame:   []byte{0xff, 0xd8, 0xff},
		At:      time.Now(),
	})

	o := waitOutcome(t, outcomes)
	if !o.Delivered {
		t.Fatalf("expected delivery, got error: %v", o.Err)
	}

	call := rec.lastCall()
	if call.delta[models.ViolationCellPhone] != 1 {
		t.Fatalf("unexpected delta: %v", call.delta)
	}
	if len(call.evidence) != 1 || call.evidence[0].URL != "https://evidence.test/abc.jpg" {
		t.Fatalf("unexpected evidence: %+v", call.evidence)
	}
	if call.evidence[0].Type != string(models.ViolationCellPhone) {
		t.Fatalf("evidence type mismatch: %q", call.evidence[0].Type)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.names) != 1 || !strings.HasPrefix(up.names[0], "cheating_cellPhone_") {
		t.Fatalf("unexpected upload names: %v", up.names)
	}
}

func TestPipelineLowScoreObjectsIgnored(t *testing.T) {
	rec := &fakeRecorder{}
	p, _ := newTestPipeline(t, rec, nil, nil)

	p.Handle(context.Background(), Signal{
		Kind: SignalObjects,
		Objects: []Detection{
			{Class: "cell phone", Score: 0.5}, // at threshold, not above
			{Class: "book", Score: 0.55},
			{Class: "person", Score: 0.99}, // benign
		},
		At: time.Now(),
	})

	time.Sleep(50 * time.Millisecond)
	if n := rec.callCount(); n != 0 {
		t.Fatalf("benign or low-confidence detections must not record, got %d calls", n)
	}
}

func TestPipelineInlinesEvidenceWhenUploadFails(t *testing.T) {
	rec := &fakeRecorder{}
	up := &fakeUploader{err: errors.New("store unreachable")}
	p, outcomes := newTestPipeline(t, rec, up, nil)

	p.Handle(context.Background(), Signal{
		Kind:    SignalObjects,
		Objects: []Detection{{Class: "book", Score: 0.9}},
		Frame:   []byte("jpegbytes"),
		At:      time.Now(),
	})

	o := waitOutcome(t, outcomes)
	if !o.Delivered {
		t.Fatalf("upload failure must not block the record: %v", o.Err)
	}

	call := rec.lastCall()
	if len(call.evidence) != 1 || !strings.HasPrefix(call.evidence[0].URL, "data:image/jpeg;base64,") {
		t.Fatalf("expected inline data URI fallback, got %+v", call.evidence)
	}
}

func TestPipelineDefersCountsWhenRecordFails(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("mongo down")}
	p, outcomes := newTestPipeline(t, rec, nil, nil)

	p.Handle(context.Background(), browserSignal(models.ViolationCopyPaste, time.Now()))

	o := waitOutcome(t, outcomes)
	if o.Delivered || o.Err == nil {
		t.Fatalf("expected a suppressed failure, got %+v", o)
	}

	rec.setErr(nil)
	p.flush(context.Background())

	o = waitOutcome(t, outcomes)
	if !o.Delivered {
		t.Fatalf("flush should deliver the deferred delta: %v", o.Err)
	}
	call := rec.lastCall()
	if call.delta[models.ViolationCopyPaste] != 1 {
		t.Fatalf("deferred count lost: %v", call.delta)
	}
}

func TestPipelineStopRunsFinalFlush(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("transient")}
	p, outcomes := newTestPipeline(t, rec, nil, nil)

	p.Handle(context.Background(), browserSignal(models.ViolationRightClick, time.Now()))
	waitOutcome(t, outcomes) // failure, count deferred

	rec.setErr(nil)
	p.Stop()

	o := waitOutcome(t, outcomes)
	if !o.Delivered {
		t.Fatalf("final flush on stop should deliver: %v", o.Err)
	}
	if rec.lastCall().delta[models.ViolationRightClick] != 1 {
		t.Fatalf("final flush lost the deferred count: %v", rec.lastCall().delta)
	}
}

func TestPipelineNoFaceAndMultipleFace(t *testing.T) {
	rec := &fakeRecorder{}
	p, outcomes := newTestPipeline(t, rec, nil, nil)

	now := time.Now()
	p.Handle(context.Background(), Signal{
		Kind: SignalFace, Source: FaceSourcePrecise,
		FrameW: frameW, FrameH: frameH, At: now,
	})
	o := waitOutcome(t, outcomes)
	if !o.Delivered || rec.lastCall().delta[models.ViolationNoFace] != 1 {
		t.Fatalf("empty face list should record noFace, got %+v", rec.lastCall())
	}

	p.Handle(context.Background(), Signal{
		Kind: SignalFace, Source: FaceSourceCoarse,
		Faces:  []Box{centeredBox(), centeredBox()},
		FrameW: frameW, FrameH: frameH, At: now.Add(time.Second),
	})
	o = waitOutcome(t, outcomes)
	if !o.Delivered || rec.lastCall().delta[models.ViolationMultipleFace] != 1 {
		t.Fatalf("two faces should record multipleFace, got %+v", rec.lastCall())
	}
}

func TestPipelineUnavailableFaceSourceIsNeutral(t *testing.T) {
	rec := &fakeRecorder{}
	p, _ := newTestPipeline(t, rec, nil, nil)

	start := time.Now()
	// Begin a drift dwell, then lose the locator. The blind tick must reset
	// the dwell instead of counting toward it.
	p.Handle(context.Background(), Signal{
		Kind: SignalFace, Source: FaceSourcePrecise,
		Faces: []Box{edgeBox()}, FrameW: frameW, FrameH: frameH, At: start,
	})
	p.Handle(context.Background(), Signal{
		Kind: SignalFace, Source: FaceSourceUnavailable, At: start.Add(200 * time.Millisecond),
	})
	p.Handle(context.Background(), Signal{
		Kind: SignalFace, Source: FaceSourcePrecise,
		Faces: []Box{edgeBox()}, FrameW: frameW, FrameH: frameH, At: start.Add(450 * time.Millisecond),
	})

	time.Sleep(50 * time.Millisecond)
	if n := rec.callCount(); n != 0 {
		t.Fatalf("locator gap must not produce violations, got %d calls", n)
	}
}

func TestPipelineSustainedDriftRecordsAttentionDrift(t *testing.T) {
	rec := &fakeRecorder{}
	p, outcomes := newTestPipeline(t, rec, nil, nil)

	start := time.Now()
	for _, offset := range []time.Duration{0, 200 * time.Millisecond, 450 * time.Millisecond} {
		p.Handle(context.Background(), Signal{
			Kind: SignalFace, Source: FaceSourcePrecise,
			Faces: []Box{edgeBox()}, FrameW: frameW, FrameH: frameH, At: start.Add(offset),
		})
	}

	o := waitOutcome(t, outcomes)
	if !o.Delivered || rec.lastCall().delta[models.ViolationAttentionDrift] != 1 {
		t.Fatalf("sustained edge dwell should record attentionDrift, got %+v", rec.lastCall())
	}
}

func TestManagerCreatesAndEndsSessions(t *testing.T) {
	rec := &fakeRecorder{}
	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	m := NewManager(context.Background(), rec, nil, nil, pool, time.Hour, time.Hour)
	defer m.Close()

	m.Dispatch(context.Background(), "exam-1", "a@test.io", "A", browserSignal(models.ViolationTabSwitch, time.Now()))
	m.Dispatch(context.Background(), "exam-1", "b@test.io", "B", browserSignal(models.ViolationTabSwitch, time.Now()))
	m.Dispatch(context.Background(), "exam-2", "a@test.io", "A", browserSignal(models.ViolationTabSwitch, time.Now()))

	if n := m.ActiveSessions(); n != 3 {
		t.Fatalf("want 3 pipelines, got %d", n)
	}

	m.EndSession("exam-1", "a@test.io")
	if n := m.ActiveSessions(); n != 2 {
		t.Fatalf("want 2 pipelines after EndSession, got %d", n)
	}
	// Ending an unknown session is a no-op.
	m.EndSession("exam-9", "nobody@test.io")
	if n := m.ActiveSessions(); n != 2 {
		t.Fatalf("unknown session changed the registry: %d", n)
	}
}

func TestManagerEndSessionFlushesPendingCounts(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("transient")}
	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	m := NewManager(context.Background(), rec, nil, nil, pool, time.Hour, time.Hour)
	defer m.Close()

	m.Dispatch(context.Background(), "exam-1", "a@test.io", "A", browserSignal(models.ViolationTabSwitch, time.Now()))

	// Wait for the failing record attempt so the count is deferred.
	deadline := time.Now().Add(2 * time.Second)
	for rec.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("record attempt never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec.setErr(nil)
	m.EndSession("exam-1", "a@test.io")

	call := rec.lastCall()
	if call.delta[models.ViolationTabSwitch] != 1 {
		t.Fatalf("EndSession should flush the deferred count, got %v", call.delta)
	}
	if n := m.ActiveSessions(); n != 0 {
		t.Fatalf("pipeline not removed: %d", n)
	}
}
