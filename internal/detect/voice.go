package detect

import "time"

// Voice activity constants. A fixed absolute threshold is unreliable across
// microphones and rooms; the adaptive baseline self-calibrates to ambient
// noise and the leaky integrator requires sustained energy before firing,
// which filters out coughs and clicks.
const (
	baselineDecay  = 0.98
	baselineGain   = 0.02
	thresholdRatio = 1.2
	noiseFloor     = 0.006 // minimum sensitivity floor for silent rooms

	voiceFireAfter = 800 * time.Millisecond
	inactiveDecay  = 0.6 // accumulator decays slower than real time
)

// VoiceDetector converts a stream of RMS energy samples into a single
// voiceDetected event per sustained-speech episode.
type VoiceDetector struct {
	baseline      float64
	seeded        bool
	activeAccumMs float64
	lastSample    time.Time
}

func NewVoiceDetector() *VoiceDetector {
	return &VoiceDetector{}
}

// Active reports whether the integrator currently holds unexpired speech
// energy.
func (v *VoiceDetector) Active() bool {
	return v.activeAccumMs > 0
}

// Sample feeds one RMS reading taken at ts. It returns true when sustained
// speech crossed the firing threshold; the accumulator resets so a second
// sustained episode fires a second event.
func (v *VoiceDetector) Sample(rms float64, ts time.Time) bool {
	if !v.seeded {
		v.baseline = rms
		v.seeded = true
		v.lastSample = ts
		return false
	}

	dt := float64(ts.Sub(v.lastSample)) / float64(time.Millisecond)
	v.lastSample = ts
	if dt < 0 {
		dt = 0
	}
	// Clamp pathological gaps so a stalled sampler cannot fire instantly.
	if dt > 100 {
		dt = 100
	}

	v.baseline = baselineDecay*v.baseline + baselineGain*rms

	threshold := v.baseline * thresholdRatio
	if threshold < noiseFloor {
		threshold = noiseFloor
	}

	if rms > threshold {
		v.activeAccumMs += dt
	} else {
		v.activeAccumMs -= inactiveDecay * dt
		if v.activeAccumMs < 0 {
			v.activeAccumMs = 0
		}
	}

	if v.activeAccumMs > float64(voiceFireAfter/time.Millisecond) {
		v.activeAccumMs = 0
		return true
	}
	return false
}
