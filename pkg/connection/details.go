package connection

import (
	"fmt"

	"github.com/pkg/errors"
)

// Details is a participant access credential: everything needed to join a
// room. The token is an opaque signed string with an embedded expiry claim.
// Details are replaced wholesale on refresh, never patched in place.
type Details struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`
}

// Complete reports whether the details carry enough to join a room.
func (d Details) Complete() bool {
	return d.ServerURL != "" && d.RoomName != "" && d.ParticipantToken != ""
}

// ErrMissingCredential means no usable connection parameters exist at all: no
// cached credential, no hand-off state, and no issuer to ask. Fatal to session
// start; there is nothing to retry.
var ErrMissingCredential = errors.New("missing connection credentials: no cached token, no hand-off state, and no issuer configured")

// FetchError reports an issuer failure. The issuer responds to failures with a
// plain-text message, surfaced verbatim.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("connection details request failed (status %d): %s", e.Status, e.Body)
}
