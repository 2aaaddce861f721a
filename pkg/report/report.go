package report

import (
	"time"

	"github.com/carevox/voicesession/pkg/timeline"
)

// KindGenerateReport is the fixed request kind the report backend switches on.
const KindGenerateReport = "GENERATE_REPORT"

// Topic tags the reliable side channel the request travels over, distinct
// from the conversational transcript.
const Topic = "report-request"

// DialogueEntry is one line of the conversation as the report backend expects
// it: a display speaker label, not the timeline's internal role.
type DialogueEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Request is the side-channel payload. It is created once per session when the
// sentinel fires and never mutated afterwards; ownership passes to the
// transport for delivery.
type Request struct {
	Kind        string          `json:"kind"`
	Dialogue    []DialogueEntry `json:"dialogue"`
	SessionID   string          `json:"sessionId"`
	RequestedAt string          `json:"requestedAt"`
}

func speakerLabel(role timeline.Role) string {
	if role == timeline.RoleAgent {
		return "AI"
	}
	return "Patient"
}

// NewRequest snapshots the entire timeline into a Request. Every message up to
// and including the sentinel is carried, mapped 1:1 onto dialogue entries.
func NewRequest(sessionID string, msgs []timeline.Message, requestedAt time.Time) Request {
	dialogue := make([]DialogueEntry, 0, len(msgs))
	for _, m := range msgs {
		dialogue = append(dialogue, DialogueEntry{
			Speaker: speakerLabel(m.Role),
			Text:    m.Text,
		})
	}
	return Request{
		Kind:        KindGenerateReport,
		Dialogue:    dialogue,
		SessionID:   sessionID,
		RequestedAt: requestedAt.UTC().Format(time.RFC3339),
	}
}
