package models

import "time"

// CheatingLog is the durable per-(examId, email) violation aggregate.
// Exactly one document exists per key; counts only ever grow and the
// screenshots list is append-only.
type CheatingLog struct {
	ExamID   string `bson:"examId" json:"examId"`
	Email    string `bson:"email" json:"email"`
	Username string `bson:"username" json:"username"`

	NoFaceCount            int `bson:"noFaceCount,omitempty" json:"noFaceCount,omitempty"`
	MultipleFaceCount      int `bson:"multipleFaceCount,omitempty" json:"multipleFaceCount,omitempty"`
	CellPhoneCount         int `bson:"cellPhoneCount,omitempty" json:"cellPhoneCount,omitempty"`
	ProhibitedObjectCount  int `bson:"prohibitedObjectCount,omitempty" json:"prohibitedObjectCount,omitempty"`
	VoiceDetectedCount     int `bson:"voiceDetectedCount,omitempty" json:"voiceDetectedCount,omitempty"`
	AttentionDriftCount    int `bson:"attentionDriftCount,omitempty" json:"attentionDriftCount,omitempty"`
	TabSwitchCount         int `bson:"tabSwitchCount,omitempty" json:"tabSwitchCount,omitempty"`
	CopyPasteCount         int `bson:"copyPasteCount,omitempty" json:"copyPasteCount,omitempty"`
	RightClickCount        int `bson:"rightClickCount,omitempty" json:"rightClickCount,omitempty"`
	PrintScreenCount       int `bson:"printScreenCount,omitempty" json:"printScreenCount,omitempty"`
	DevToolsCount          int `bson:"devToolsCount,omitempty" json:"devToolsCount,omitempty"`
	FullScreenExitCount    int `bson:"fullScreenExitCount,omitempty" json:"fullScreenExitCount,omitempty"`
	WindowBlurCount        int `bson:"windowBlurCount,omitempty" json:"windowBlurCount,omitempty"`
	ApplicationSwitchCount int `bson:"applicationSwitchCount,omitempty" json:"applicationSwitchCount,omitempty"`

	Screenshots []Evidence `bson:"screenshots,omitempty" json:"screenshots,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Count returns the stored counter for one violation type.
func (l *CheatingLog) Count(t ViolationType) int {
	switch t {
	case ViolationNoFace:
		return l.NoFaceCount
	case ViolationMultipleFace:
		return l.MultipleFaceCount
	case ViolationCellPhone:
		return l.CellPhoneCount
	case ViolationProhibitedObject:
		return l.ProhibitedObjectCount
	case ViolationVoiceDetected:
		return l.VoiceDetectedCount
	case ViolationAttentionDrift:
		return l.AttentionDriftCount
	case ViolationTabSwitch:
		return l.TabSwitchCount
	case ViolationCopyPaste:
		return l.CopyPasteCount
	case ViolationRightClick:
		return l.RightClickCount
	case ViolationPrintScreen:
		return l.PrintScreenCount
	case ViolationDevTools:
		return l.DevToolsCount
	case ViolationFullScreenExit:
		return l.FullScreenExitCount
	case ViolationWindowBlur:
		return l.WindowBlurCount
	case ViolationApplicationSwitch:
		return l.ApplicationSwitchCount
	}
	return 0
}

// TotalViolations sums every counter on the log.
func (l *CheatingLog) TotalViolations() int {
	total := 0
	for _, t := range ViolationTypes {
		total += l.Count(t)
	}
	return total
}

// LogAnalytics is the derived view returned by the detailed listing: a pure
// fold over the logs of one exam, no stored state.
type LogAnalytics struct {
	TotalLogs       int `json:"totalLogs"`
	TotalViolations int `json:"totalViolations"`
}
