package room

import "time"

// Watermill topics the room client publishes inbound frames onto, one per
// event kind.
const (
	TopicTranscription = "room.transcription"
	TopicChat          = "room.chat"
	TopicAgentState    = "room.agent_state"
)

// EventKind discriminates inbound room frames.
type EventKind string

const (
	EventTranscription EventKind = "transcription"
	EventChat          EventKind = "chat"
	EventAgentState    EventKind = "agent_state"
)

// Event is the wire frame the room server sends. Text content may arrive
// under several field names depending on the producing component; see
// TextContent. Timestamp is milliseconds since epoch.
type Event struct {
	Kind      EventKind `json:"kind"`
	ID        string    `json:"id,omitempty"`
	From      string    `json:"from,omitempty"`
	Message   string    `json:"message,omitempty"`
	Text      string    `json:"text,omitempty"`
	Content   string    `json:"content,omitempty"`
	Body      string    `json:"body,omitempty"`
	State     string    `json:"state,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// TextContent resolves the frame's text, falling back through the alternate
// field names in priority order and defaulting to empty.
func (e Event) TextContent() string {
	for _, candidate := range []string{e.Message, e.Text, e.Content, e.Body} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Time converts the source-provided millisecond timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func (e Event) topic() (string, bool) {
	switch e.Kind {
	case EventTranscription:
		return TopicTranscription, true
	case EventChat:
		return TopicChat, true
	case EventAgentState:
		return TopicAgentState, true
	default:
		return "", false
	}
}
