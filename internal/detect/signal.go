package detect

import (
	"time"

	"github.com/invigilo/invigilo/internal/models"
)

// SignalKind tags the raw observation variants flowing through the inbound
// signal channel.
type SignalKind string

const (
	SignalObjects SignalKind = "objects"
	SignalFace    SignalKind = "face"
	SignalAudio   SignalKind = "audio"
	SignalBrowser SignalKind = "browser"
)

// FaceSource identifies which capability produced a face observation.
// Callers depend only on the carried geometry, never on the variant.
type FaceSource string

const (
	// FaceSourcePrecise means a dedicated face locator produced the boxes.
	FaceSourcePrecise FaceSource = "precise"
	// FaceSourceCoarse means the object classifier's person detections are
	// standing in for the absent face locator.
	FaceSourceCoarse FaceSource = "coarse"
	// FaceSourceUnavailable means no locator ran this tick; the camera
	// signal is disabled rather than failing the session.
	FaceSourceUnavailable FaceSource = "unavailable"
)

// Detection is one object-classifier hit.
type Detection struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	Box   Box     `json:"box"`
}

// Signal is the tagged union of raw proctoring observations. One dispatcher
// consumes these and routes them to the debounce/drift/voice state machines.
type Signal struct {
	Kind SignalKind `json:"kind"`
	At   time.Time  `json:"at"`

	// SignalObjects
	Objects []Detection `json:"objects,omitempty"`

	// SignalFace
	Faces  []Box      `json:"faces,omitempty"`
	FrameW float64    `json:"frameW,omitempty"`
	FrameH float64    `json:"frameH,omitempty"`
	Source FaceSource `json:"source,omitempty"`

	// SignalAudio
	RMS float64 `json:"rms,omitempty"`

	// SignalBrowser: the browser event kind is a violation type directly
	// (tabSwitch, copyPaste, rightClick, ...).
	Event models.ViolationType `json:"event,omitempty"`

	// Frame optionally carries the captured JPEG evidence for this tick.
	Frame []byte `json:"frame,omitempty"`
}

// Object classification thresholds restored from the exam client.
const (
	cellPhoneClass     = "cell phone"
	cellPhoneMinScore  = 0.5
	prohibitedMinScore = 0.6
)

// prohibitedClasses are the object classes the classifier can actually
// detect that have no business in front of an exam camera.
var prohibitedClasses = map[string]struct{}{
	// electronic devices
	"cell phone": {}, "laptop": {}, "mouse": {}, "remote": {}, "keyboard": {},
	"tv": {}, "microwave": {}, "oven": {}, "toaster": {},
	// books and writing materials
	"book": {}, "scissors": {},
	// food and drink, common cheating aids
	"bottle": {}, "cup": {}, "apple": {}, "banana": {}, "orange": {},
	"sandwich": {}, "pizza": {}, "donut": {}, "cake": {},
	// personal items
	"backpack": {}, "handbag": {}, "suitcase": {}, "umbrella": {}, "tie": {},
	// misc
	"clock": {}, "vase": {}, "teddy bear": {}, "hair drier": {}, "toothbrush": {},
}

// classifyObject maps a detection to a violation type, or false when the
// detection is benign.
func classifyObject(d Detection) (models.ViolationType, bool) {
	if d.Class == cellPhoneClass {
		if d.Score > cellPhoneMinScore {
			return models.ViolationCellPhone, true
		}
		return "", false
	}
	if _, prohibited := prohibitedClasses[d.Class]; prohibited && d.Score > prohibitedMinScore {
		return models.ViolationProhibitedObject, true
	}
	return "", false
}
