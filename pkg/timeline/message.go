package timeline

import (
	"strings"
	"time"
)

// Origin identifies which live source produced a message.
type Origin string

const (
	OriginTranscription Origin = "transcription"
	OriginChat          Origin = "chat"
)

// Role is the derived speaker classification. It is never the raw source
// identity; see Classifier.
type Role string

const (
	RolePatient Role = "patient"
	RoleAgent   Role = "agent"
)

// Message is a single timeline entry. ID is stable across re-merges so
// consumers can key on it. Timestamp is source-provided (millisecond epoch on
// the wire); ordering is by Timestamp, ties broken by input order.
type Message struct {
	ID        string
	Origin    Origin
	Role      Role
	From      string
	Text      string
	Timestamp time.Time
}

// Classifier derives a speaker Role from a source-provided identity string.
// A message is classified as the agent when its identity contains one of the
// markers, case-insensitively. This is a best-effort heuristic over a
// free-text field, not an authenticated claim.
type Classifier struct {
	AgentMarkers []string
}

// DefaultAgentMarker matches the identity the automated participant announces
// itself with.
const DefaultAgentMarker = "agent"

func NewClassifier(markers ...string) Classifier {
	if len(markers) == 0 {
		markers = []string{DefaultAgentMarker}
	}
	return Classifier{AgentMarkers: markers}
}

func (c Classifier) Classify(from string) Role {
	lowered := strings.ToLower(from)
	for _, marker := range c.AgentMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return RoleAgent
		}
	}
	return RolePatient
}
