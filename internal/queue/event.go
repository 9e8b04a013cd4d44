package queue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopchat/autoreply-backend/internal/autoerr"
)

// AutoResponseEvent is the unit of work handed to the pipeline. It only
// lives inside one pipeline invocation or on the push queue; it is never
// persisted to the message log.
type AutoResponseEvent struct {
	MessageID  string    `json:"message_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Sender     string    `json:"sender"`
	TenantName string    `json:"tenant_name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e AutoResponseEvent) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseEvent validates a raw queue payload. Queue payloads come from an
// untyped list, so every required field is checked explicitly; anything
// that fails here belongs on the poison list, not back on the queue.
func ParseEvent(raw string) (AutoResponseEvent, error) {
	var ev AutoResponseEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return AutoResponseEvent{}, &autoerr.MalformedEventError{Raw: raw, Reason: "invalid json: " + err.Error()}
	}
	if strings.TrimSpace(ev.MessageID) == "" {
		return AutoResponseEvent{}, &autoerr.MalformedEventError{Raw: raw, Reason: "missing message_id"}
	}
	if ev.TenantID == uuid.Nil {
		return AutoResponseEvent{}, &autoerr.MalformedEventError{Raw: raw, Reason: "missing tenant_id"}
	}
	if strings.TrimSpace(ev.Sender) == "" {
		return AutoResponseEvent{}, &autoerr.MalformedEventError{Raw: raw, Reason: "missing sender"}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev, nil
}
