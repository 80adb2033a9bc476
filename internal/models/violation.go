package models

import (
	"encoding/json"
	"time"
)

// ViolationType is the closed set of integrity violations the proctoring
// engine can classify, camera-sourced and browser-sourced alike.
type ViolationType string

const (
	ViolationNoFace            ViolationType = "noFace"
	ViolationMultipleFace      ViolationType = "multipleFace"
	ViolationCellPhone         ViolationType = "cellPhone"
	ViolationProhibitedObject  ViolationType = "prohibitedObject"
	ViolationVoiceDetected     ViolationType = "voiceDetected"
	ViolationAttentionDrift    ViolationType = "attentionDrift"
	ViolationTabSwitch         ViolationType = "tabSwitch"
	ViolationCopyPaste         ViolationType = "copyPaste"
	ViolationRightClick        ViolationType = "rightClick"
	ViolationPrintScreen       ViolationType = "printScreen"
	ViolationDevTools          ViolationType = "devTools"
	ViolationFullScreenExit    ViolationType = "fullScreenExit"
	ViolationWindowBlur        ViolationType = "windowBlur"
	ViolationApplicationSwitch ViolationType = "applicationSwitch"
)

// ViolationTypes lists every known type in a stable order.
var ViolationTypes = []ViolationType{
	ViolationNoFace,
	ViolationMultipleFace,
	ViolationCellPhone,
	ViolationProhibitedObject,
	ViolationVoiceDetected,
	ViolationAttentionDrift,
	ViolationTabSwitch,
	ViolationCopyPaste,
	ViolationRightClick,
	ViolationPrintScreen,
	ViolationDevTools,
	ViolationFullScreenExit,
	ViolationWindowBlur,
	ViolationApplicationSwitch,
}

// CountField returns the wire/bson field name carrying this type's counter,
// e.g. "tabSwitchCount".
func (t ViolationType) CountField() string {
	return string(t) + "Count"
}

// Valid reports whether t is one of the known violation types.
func (t ViolationType) Valid() bool {
	for _, known := range ViolationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseViolationType maps a wire string to a ViolationType.
func ParseViolationType(s string) (ViolationType, bool) {
	t := ViolationType(s)
	return t, t.Valid()
}

// ParseCountFields extracts the violation count subset of an arbitrary JSON
// body. Unknown fields and non-numeric values are ignored, not rejected.
// Numbers arrive as json.Number or float64 depending on the decoder; both
// are accepted and truncated to int.
func ParseCountFields(body map[string]interface{}) map[ViolationType]int {
	delta := make(map[ViolationType]int)
	for _, t := range ViolationTypes {
		raw, ok := body[t.CountField()]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			delta[t] = int(v)
		case int:
			delta[t] = v
		case json.Number:
			if n, err := v.Int64(); err == nil {
				delta[t] = int(n)
			}
		}
	}
	return delta
}

// ViolationEvent is the ephemeral output of a detection state machine. It is
// never persisted individually, only folded into the per-session aggregate.
type ViolationEvent struct {
	Type        ViolationType `json:"type"`
	Confidence  float64       `json:"confidence,omitempty"`
	OccurredAt  time.Time     `json:"occurredAt"`
	EvidenceRef string        `json:"evidenceRef,omitempty"`
}

// Evidence is an opaque captured artifact attached to a cheating log. The
// engine passes url through untouched; it may be a hosted CDN link or an
// inline data URI when upload failed.
type Evidence struct {
	URL        string    `bson:"url" json:"url"`
	Type       string    `bson:"type" json:"type"`
	DetectedAt time.Time `bson:"detectedAt" json:"detectedAt"`
	Confidence float64   `bson:"confidence,omitempty" json:"confidence,omitempty"`
}
