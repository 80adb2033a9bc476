package stream

import (
	"encoding/json"
	"fmt"

	"github.com/invigilo/invigilo/internal/detect"
	"github.com/redis/go-redis/v9"
)

// SignalMessage is one raw proctoring observation read off the signal
// stream: the session identity plus the JSON-encoded signal payload.
type SignalMessage struct {
	ExamID   string
	Email    string
	Username string
	Signal   detect.Signal
}

// ParseSignalMessage decodes a stream entry. Entries are written by exam
// clients as {examId, email, username, signal} where signal is the JSON
// form of detect.Signal (frames base64-encoded).
func ParseSignalMessage(msg *redis.XMessage) (*SignalMessage, error) {
	field := func(key string) string {
		if v, ok := msg.Values[key].(string); ok {
			return v
		}
		return ""
	}

	parsed := &SignalMessage{
		ExamID:   field("examId"),
		Email:    field("email"),
		Username: field("username"),
	}
	if parsed.ExamID == "" || parsed.Email == "" {
		return nil, fmt.Errorf("message %s missing session identity", msg.ID)
	}

	payload := field("signal")
	if payload == "" {
		return nil, fmt.Errorf("message %s missing signal payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(payload), &parsed.Signal); err != nil {
		return nil, fmt.Errorf("message %s has malformed signal: %w", msg.ID, err)
	}
	if parsed.Signal.Kind == "" {
		return nil, fmt.Errorf("message %s missing signal kind", msg.ID)
	}

	return parsed, nil
}
