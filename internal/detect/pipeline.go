package detect

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/invigilo/invigilo/internal/models"
	"github.com/rs/zerolog/log"
)

// Recorder merges a batch of count deltas and evidence into the durable
// per-(examId, email) aggregate.
type Recorder interface {
	Record(ctx context.Context, examID, email, username string, delta map[models.ViolationType]int, evidence []models.Evidence) (*models.CheatingLog, error)
}

// Uploader pushes a captured frame to the evidence store and returns its
// hosted URL.
type Uploader interface {
	Upload(ctx context.Context, frame []byte, name string) (string, error)
}

// Publisher fans a recorded violation out to live subscribers. Implementations
// must never block.
type Publisher interface {
	Publish(examID string, ev models.ViolationEvent)
}

// Outcome is the explicit result of a best-effort delivery: either the
// record landed or the failure was suppressed and the counts deferred.
type Outcome struct {
	Delivered bool
	Err       error
}

func delivered() Outcome              { return Outcome{Delivered: true} }
func failedIgnored(err error) Outcome { return Outcome{Err: err} }

// Pipeline is the per-(examId, email) detection engine: one shared debouncer
// across all signal sources, the drift and voice state machines, pending
// deltas for the periodic autosave, and fire-and-forget recording.
type Pipeline struct {
	examID   string
	email    string
	username string

	debouncer *Debouncer
	drift     *DriftEvaluator
	voice     *VoiceDetector

	recorder  Recorder
	uploader  Uploader
	publisher Publisher
	pool      *WorkerPool

	mu              sync.Mutex
	pending         map[models.ViolationType]int
	pendingEvidence []models.Evidence
	lastActivity    time.Time

	// onOutcome observes every delivery result; defaults to logging
	// suppressed failures at debug level.
	onOutcome func(Outcome)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPipeline builds a session pipeline and starts its autosave loop.
func NewPipeline(ctx context.Context, examID, email, username string, recorder Recorder, uploader Uploader, publisher Publisher, pool *WorkerPool, autosaveInterval time.Duration) *Pipeline {
	p := &Pipeline{
		examID:       examID,
		email:        email,
		username:     username,
		debouncer:    NewDebouncer(),
		drift:        NewDriftEvaluator(),
		voice:        NewVoiceDetector(),
		recorder:     recorder,
		uploader:     uploader,
		publisher:    publisher,
		pool:         pool,
		pending:      make(map[models.ViolationType]int),
		lastActivity: time.Now(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	p.onOutcome = func(o Outcome) {
		if o.Err != nil {
			log.Debug().Err(o.Err).
				Str("examId", p.examID).
				Str("email", p.email).
				Msg("Violation delivery failed, deferred to autosave")
		}
	}

	go p.autosaveLoop(ctx, autosaveInterval)
	return p
}

// Handle routes one raw signal to the matching state machine. Signal sources
// are independent producers; every rate decision funnels through the single
// shared debouncer.
func (p *Pipeline) Handle(ctx context.Context, sig Signal) {
	at := sig.At
	if at.IsZero() {
		at = time.Now()
	}

	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()

	switch sig.Kind {
	case SignalObjects:
		for _, det := range sig.Objects {
			if t, ok := classifyObject(det); ok {
				p.fire(ctx, t, det.Score, sig.Frame, at)
			}
		}

	case SignalFace:
		p.handleFace(ctx, sig, at)

	case SignalAudio:
		p.mu.Lock()
		fired := p.voice.Sample(sig.RMS, at)
		p.mu.Unlock()
		if fired {
			p.fire(ctx, models.ViolationVoiceDetected, 1, sig.Frame, at)
		}

	case SignalBrowser:
		if sig.Event.Valid() {
			p.fire(ctx, sig.Event, 0, sig.Frame, at)
		}

	default:
		log.Warn().Str("kind", string(sig.Kind)).Msg("Unknown signal kind dropped")
	}
}

func (p *Pipeline) handleFace(ctx context.Context, sig Signal, at time.Time) {
	if sig.Source == FaceSourceUnavailable {
		// Locator disabled: no presence information this tick. Drift state
		// resets rather than accruing against a blind interval.
		p.mu.Lock()
		p.drift.Reset()
		p.mu.Unlock()
		return
	}

	switch n := len(sig.Faces); {
	case n == 0:
		p.mu.Lock()
		p.drift.Reset()
		p.mu.Unlock()
		p.fire(ctx, models.ViolationNoFace, 1, sig.Frame, at)
		return
	case n > 1:
		p.fire(ctx, models.ViolationMultipleFace, 1, sig.Frame, at)
	}

	// Drift is evaluated on the primary box, whether it came from the
	// precise locator or the coarse person fallback.
	p.mu.Lock()
	drifted := p.drift.Observe(sig.Faces[0], sig.FrameW, sig.FrameH, at)
	p.mu.Unlock()
	if drifted {
		p.fire(ctx, models.ViolationAttentionDrift, 1, sig.Frame, at)
	}
}

// fire applies the cooldown and, when allowed, dispatches a best-effort
// record job. Failures never propagate into the detection loop.
func (p *Pipeline) fire(ctx context.Context, t models.ViolationType, confidence float64, frame []byte, at time.Time) {
	if !p.debouncer.ShouldFire(t, at) {
		return
	}

	ev := models.ViolationEvent{Type: t, Confidence: confidence, OccurredAt: at}
	if p.publisher != nil {
		p.publisher.Publish(p.examID, ev)
	}

	job := &recordJob{pipeline: p, event: ev, frame: frame}
	if p.pool != nil {
		if err := p.pool.Submit(job); err == nil {
			return
		}
	}
	// No pool (or pool shut down): keep the count for the next autosave.
	p.defer1(t, nil)
	p.onOutcome(failedIgnored(fmt.Errorf("record job not scheduled for %s", t)))
}

// defer1 folds one occurrence (and optional evidence) into the pending
// state that the autosave flushes.
func (p *Pipeline) defer1(t models.ViolationType, evidence *models.Evidence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[t]++
	if evidence != nil {
		p.pendingEvidence = append(p.pendingEvidence, *evidence)
	}
}

// recordJob uploads evidence (falling back to an inline data URI so the
// violation record is never dropped merely because upload failed) and then
// records a single-count delta.
type recordJob struct {
	pipeline *Pipeline
	event    models.ViolationEvent
	frame    []byte
}

func (j *recordJob) Execute(ctx context.Context) error {
	p := j.pipeline

	var evidence []models.Evidence
	var captured *models.Evidence
	if len(j.frame) > 0 {
		e := p.captureEvidence(ctx, j.event, j.frame)
		captured = &e
		evidence = append(evidence, e)
	}

	delta := map[models.ViolationType]int{j.event.Type: 1}
	if _, err := p.recorder.Record(ctx, p.examID, p.email, p.username, delta, evidence); err != nil {
		p.defer1(j.event.Type, captured)
		p.onOutcome(failedIgnored(err))
		return nil // swallowed: the loop must not see delivery errors
	}
	p.onOutcome(delivered())
	return nil
}

func (p *Pipeline) captureEvidence(ctx context.Context, ev models.ViolationEvent, frame []byte) models.Evidence {
	evidence := models.Evidence{
		Type:       string(ev.Type),
		DetectedAt: ev.OccurredAt,
		Confidence: ev.Confidence,
	}

	if p.uploader != nil {
		name := fmt.Sprintf("cheating_%s_%d.jpg", ev.Type, ev.OccurredAt.UnixMilli())
		if url, err := p.uploader.Upload(ctx, frame, name); err == nil {
			evidence.URL = url
			return evidence
		} else {
			log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Evidence upload failed, embedding inline")
		}
	}

	evidence.URL = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
	return evidence
}

func (p *Pipeline) autosaveLoop(ctx context.Context, interval time.Duration) {
	defer close(p.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return
		case <-p.stopCh:
			p.flush(context.Background())
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// flush pushes pending deltas and evidence through the aggregator. On
// failure everything is merged back for the next cycle.
func (p *Pipeline) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 && len(p.pendingEvidence) == 0 {
		p.mu.Unlock()
		return
	}
	delta := p.pending
	evidence := p.pendingEvidence
	p.pending = make(map[models.ViolationType]int)
	p.pendingEvidence = nil
	p.mu.Unlock()

	if _, err := p.recorder.Record(ctx, p.examID, p.email, p.username, delta, evidence); err != nil {
		p.mu.Lock()
		for t, n := range delta {
			p.pending[t] += n
		}
		p.pendingEvidence = append(evidence, p.pendingEvidence...)
		p.mu.Unlock()
		p.onOutcome(failedIgnored(err))
		return
	}
	p.onOutcome(delivered())
}

// Stop ends the autosave loop after a final flush. Safe to call more than
// once; runs on every session exit path.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *Pipeline) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}
