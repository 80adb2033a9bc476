package detect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager owns one pipeline per active (examId, email) session, creating
// them on first signal and evicting them after an idle period. Stopping a
// pipeline always runs its final flush, so timers and pending state are
// released on every exit path.
type Manager struct {
	recorder  Recorder
	uploader  Uploader
	publisher Publisher
	pool      *WorkerPool

	autosaveInterval time.Duration
	idleTimeout      time.Duration

	mu        sync.Mutex
	pipelines map[string]*Pipeline

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	janitorWG sync.WaitGroup
}

func NewManager(ctx context.Context, recorder Recorder, uploader Uploader, publisher Publisher, pool *WorkerPool, autosaveInterval, idleTimeout time.Duration) *Manager {
	mgrCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		recorder:         recorder,
		uploader:         uploader,
		publisher:        publisher,
		pool:             pool,
		autosaveInterval: autosaveInterval,
		idleTimeout:      idleTimeout,
		pipelines:        make(map[string]*Pipeline),
		ctx:              mgrCtx,
		cancel:           cancel,
	}

	m.janitorWG.Add(1)
	go m.janitor()

	return m
}

func sessionKey(examID, email string) string {
	return examID + "|" + email
}

// Dispatch routes a signal to its session pipeline, creating one if needed.
func (m *Manager) Dispatch(ctx context.Context, examID, email, username string, sig Signal) {
	m.mu.Lock()
	key := sessionKey(examID, email)
	p, ok := m.pipelines[key]
	if !ok {
		p = NewPipeline(m.ctx, examID, email, username, m.recorder, m.uploader, m.publisher, m.pool, m.autosaveInterval)
		m.pipelines[key] = p
		log.Info().Str("examId", examID).Str("email", email).Msg("Session pipeline started")
	}
	m.mu.Unlock()

	p.Handle(ctx, sig)
}

// EndSession flushes and removes one session's pipeline, e.g. on exam
// submission.
func (m *Manager) EndSession(examID, email string) {
	m.mu.Lock()
	key := sessionKey(examID, email)
	p, ok := m.pipelines[key]
	if ok {
		delete(m.pipelines, key)
	}
	m.mu.Unlock()

	if ok {
		p.Stop()
		log.Info().Str("examId", examID).Str("email", email).Msg("Session pipeline stopped")
	}
}

func (m *Manager) janitor() {
	defer m.janitorWG.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*Pipeline
	for key, p := range m.pipelines {
		if p.idleSince().Before(cutoff) {
			idle = append(idle, p)
			delete(m.pipelines, key)
		}
	}
	m.mu.Unlock()

	for _, p := range idle {
		p.Stop()
	}
	if len(idle) > 0 {
		log.Debug().Int("evicted", len(idle)).Msg("Idle session pipelines evicted")
	}
}

// ActiveSessions reports the number of live pipelines.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pipelines)
}

// Close stops the janitor and every pipeline, flushing pending deltas.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		pipelines := make([]*Pipeline, 0, len(m.pipelines))
		for _, p := range m.pipelines {
			pipelines = append(pipelines, p)
		}
		m.pipelines = make(map[string]*Pipeline)
		m.mu.Unlock()

		for _, p := range pipelines {
			p.Stop()
		}

		m.cancel()
		m.janitorWG.Wait()
	})
}
