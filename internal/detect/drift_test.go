package detect

import (
	"testing"
	"time"
)

const (
	frameW = 640.0
	frameH = 480.0
)

// centeredBox is comfortably inside the center band, large enough and with
// a normal aspect ratio.
func centeredBox() Box {
	return Box{XMin: 230, YMin: 140, XMax: 410, YMax: 340}
}

// edgeBox hugs the left frame edge (nx < 0.25).
func edgeBox() Box {
	return Box{XMin: 0, YMin: 140, XMax: 160, YMax: 340}
}

// offCenterBox is outside the center band but not near an edge, not too
// small and not sideways: the pure off-center case with the longer dwell.
func offCenterBox() Box {
	// center at nx=0.26*640≈166 → outside inCenter (0.28) but above the
	// edge band (0.25).
	return Box{XMin: 76, YMin: 140, XMax: 256, YMax: 340}
}

func TestClassifyDriftGeometry(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		want driftGeometry
	}{
		{
			name: "centered",
			box:  centeredBox(),
			want: driftGeometry{inCenter: true},
		},
		{
			name: "near left edge",
			box:  edgeBox(),
			want: driftGeometry{nearEdge: true},
		},
		{
			name: "off-center only",
			box:  offCenterBox(),
			want: driftGeometry{},
		},
		{
			name: "too small",
			box:  Box{XMin: 300, YMin: 220, XMax: 360, YMax: 280}, // ~1.2% of frame
			want: driftGeometry{inCenter: true, tooSmall: true},
		},
		{
			name: "sideways",
			box:  Box{XMin: 280, YMin: 100, XMax: 380, YMax: 380}, // aspect ≈ 0.36
			want: driftGeometry{inCenter: true, sideways: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDrift(tt.box, frameW, frameH)
			if got != tt.want {
				t.Errorf("classifyDrift() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDriftEmitsAfterFastDwell(t *testing.T) {
	e := NewDriftEvaluator()
	start := time.Now()

	if e.Observe(edgeBox(), frameW, frameH, start) {
		t.Fatal("first drifting tick must only start the dwell timer")
	}
	if e.Observe(edgeBox(), frameW, frameH, start.Add(399*time.Millisecond)) {
		t.Fatal("must not emit before the 400ms dwell")
	}
	if !e.Observe(edgeBox(), frameW, frameH, start.Add(401*time.Millisecond)) {
		t.Fatal("nearEdge held for 401ms must emit")
	}
}

func TestDriftRecoveryBeforeDwellEmitsNothing(t *testing.T) {
	e := NewDriftEvaluator()
	start := time.Now()

	e.Observe(edgeBox(), frameW, frameH, start)
	if e.Observe(centeredBox(), frameW, frameH, start.Add(399*time.Millisecond)) {
		t.Fatal("recentering must never emit")
	}
	// Timer must have been reset: a fresh drift starts a fresh dwell.
	if e.Observe(edgeBox(), frameW, frameH, start.Add(500*time.Millisecond)) {
		t.Fatal("dwell must restart after recovery")
	}
	if !e.Observe(edgeBox(), frameW, frameH, start.Add(901*time.Millisecond)) {
		t.Fatal("second continuous drift should emit after its own dwell")
	}
}

func TestDriftPureOffCenterUsesLongDwell(t *testing.T) {
	e := NewDriftEvaluator()
	start := time.Now()

	e.Observe(offCenterBox(), frameW, frameH, start)
	if e.Observe(offCenterBox(), frameW, frameH, start.Add(500*time.Millisecond)) {
		t.Fatal("pure off-center gets the 800ms grace period, not 400ms")
	}
	if !e.Observe(offCenterBox(), frameW, frameH, start.Add(801*time.Millisecond)) {
		t.Fatal("pure off-center held past 800ms must emit")
	}
}

func TestDriftResetsAfterEmit(t *testing.T) {
	e := NewDriftEvaluator()
	start := time.Now()

	e.Observe(edgeBox(), frameW, frameH, start)
	if !e.Observe(edgeBox(), frameW, frameH, start.Add(450*time.Millisecond)) {
		t.Fatal("expected emit")
	}
	// After emitting the machine returns to centered; a continuous drift
	// needs a full dwell again before re-firing.
	if e.Observe(edgeBox(), frameW, frameH, start.Add(460*time.Millisecond)) {
		t.Fatal("must not re-emit immediately after an emit")
	}
	if !e.Observe(edgeBox(), frameW, frameH, start.Add(870*time.Millisecond)) {
		t.Fatal("continuous drift should re-fire after a fresh dwell")
	}
}

func TestDriftResetClearsDwellTimer(t *testing.T) {
	e := NewDriftEvaluator()
	start := time.Now()

	e.Observe(edgeBox(), frameW, frameH, start)
	e.Reset() // e.g. the face vanished; handled as noFace, not drift

	if e.Observe(edgeBox(), frameW, frameH, start.Add(500*time.Millisecond)) {
		t.Fatal("dwell must restart from scratch after a reset")
	}
}
