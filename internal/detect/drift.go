package detect

import "time"

// Box is an axis-aligned bounding box in frame pixels.
type Box struct {
	XMin, YMin, XMax, YMax float64
}

func (b Box) Width() float64 {
	if w := b.XMax - b.XMin; w > 1 {
		return w
	}
	return 1
}

func (b Box) Height() float64 {
	if h := b.YMax - b.YMin; h > 1 {
		return h
	}
	return 1
}

// Drift geometry thresholds. Tunable, but the ordering must hold:
// the nearEdge band sits outside the inCenter band on every axis.
const (
	centerXMin = 0.28
	centerXMax = 0.72
	centerYMin = 0.22
	centerYMax = 0.78

	edgeXMin = 0.25
	edgeXMax = 0.75
	edgeYMin = 0.20
	edgeYMax = 0.80

	minAreaFrac    = 0.035
	sidewaysAspect = 0.7 // width/height below this suggests yaw

	dwellFast = 400 * time.Millisecond // nearEdge / tooSmall / sideways
	dwellSlow = 800 * time.Millisecond // off-center but otherwise normal
)

type driftGeometry struct {
	inCenter bool
	nearEdge bool
	tooSmall bool
	sideways bool
}

func (g driftGeometry) drifting() bool {
	return !g.inCenter || g.nearEdge || g.tooSmall || g.sideways
}

// fast conditions shorten the required dwell; pure off-center gets the
// longer grace period.
func (g driftGeometry) dwell() time.Duration {
	if g.nearEdge || g.tooSmall || g.sideways {
		return dwellFast
	}
	return dwellSlow
}

func classifyDrift(box Box, frameW, frameH float64) driftGeometry {
	cx := (box.XMin + box.XMax) / 2
	cy := (box.YMin + box.YMax) / 2
	nx := cx / frameW
	ny := cy / frameH
	areaFrac := (box.Width() * box.Height()) / (frameW * frameH)

	return driftGeometry{
		inCenter: nx > centerXMin && nx < centerXMax && ny > centerYMin && ny < centerYMax,
		nearEdge: nx < edgeXMin || nx > edgeXMax || ny < edgeYMin || ny > edgeYMax,
		tooSmall: areaFrac < minAreaFrac,
		sideways: box.Width()/box.Height() < sidewaysAspect,
	}
}

// DriftEvaluator turns face/person box geometry into a single attentionDrift
// event once the drift condition has held for the required dwell. After
// emitting it resets, so a continuous drift re-fires only when the shared
// debouncer allows.
type DriftEvaluator struct {
	driftSince time.Time // zero while centered
}

func NewDriftEvaluator() *DriftEvaluator {
	return &DriftEvaluator{}
}

// Observe feeds one tick's bounding box. It returns true when an
// attentionDrift event should be emitted at now.
func (e *DriftEvaluator) Observe(box Box, frameW, frameH float64, now time.Time) bool {
	if frameW <= 0 || frameH <= 0 {
		return false
	}

	geo := classifyDrift(box, frameW, frameH)
	if !geo.drifting() {
		e.driftSince = time.Time{}
		return false
	}

	if e.driftSince.IsZero() {
		e.driftSince = now
		return false
	}

	if now.Sub(e.driftSince) >= geo.dwell() {
		e.driftSince = time.Time{}
		return true
	}
	return false
}

// Reset returns the evaluator to its centered state. Called when no face is
// present: absence is handled as noFace/multipleFace, never as drift.
func (e *DriftEvaluator) Reset() {
	e.driftSince = time.Time{}
}
