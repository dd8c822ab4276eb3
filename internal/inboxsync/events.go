package inboxsync

import "encoding/json"

type eventClass int

const (
	eventNotification eventClass = iota
	eventHeartbeat
	eventMalformed
)

// classifyEvent is the parse/classify stage of the push pipeline. Routing
// (recipient filtering and the prepend itself) happens in the session so this
// stage stays independent of any transport or session state.
func classifyEvent(raw []byte) (Notification, eventClass) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Notification{}, eventMalformed
	}
	if probe.Type == "heartbeat" {
		return Notification{}, eventHeartbeat
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, eventMalformed
	}
	if n.ID == "" || n.RecipientID == "" {
		return Notification{}, eventMalformed
	}
	return n, eventNotification
}
