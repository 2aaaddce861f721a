package report

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carevox/voicesession/pkg/timeline"
)

// DefaultMarker is the textual token that signals the conversational end of a
// session, matched case-insensitively.
const DefaultMarker = "[SESSION_END]"

// Sender is the side-channel boundary: a reliable, topic-tagged,
// fire-and-forget text send. Satisfied by room.Room.
type Sender interface {
	SendText(ctx context.Context, topic string, payload []byte) error
}

// Trigger scans a merged timeline for the end-of-session marker and dispatches
// exactly one report request per Trigger lifetime. A Trigger is scoped to one
// session: construct a fresh one per room so the next session can fire again.
type Trigger struct {
	sessionID string
	sender    Sender
	marker    string
	now       func() time.Time

	mu    sync.Mutex
	fired bool
}

type TriggerOption func(*Trigger)

// WithMarker overrides the sentinel marker.
func WithMarker(marker string) TriggerOption {
	return func(t *Trigger) {
		if marker != "" {
			t.marker = strings.ToUpper(marker)
		}
	}
}

func WithNow(now func() time.Time) TriggerOption {
	return func(t *Trigger) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTrigger(sessionID string, sender Sender, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		sessionID: sessionID,
		sender:    sender,
		marker:    DefaultMarker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fired reports whether the latch has tripped.
func (t *Trigger) Fired() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Trigger) containsMarker(msgs []timeline.Message) bool {
	for _, m := range msgs {
		normalized := strings.ToUpper(strings.TrimSpace(m.Text))
		if strings.Contains(normalized, t.marker) {
			return true
		}
	}
	return false
}

// Scan inspects the merged timeline snapshot and dispatches a report request
// the first time the marker is seen. The detection is purely text-based: the
// marker counts no matter which origin or speaker role carries it.
//
// An empty snapshot is a no-op. Once the latch trips, every later Scan is a
// no-op, including re-scans of the same snapshot and scans racing the dispatch
// itself (the latch is set before the send starts). A send failure is returned
// for the caller's notification surface but does not un-latch: the system does
// not retry a failed report request.
//
// The returned fired flag is true only for the call that actually dispatched.
func (t *Trigger) Scan(ctx context.Context, msgs []timeline.Message) (bool, error) {
	if t == nil || len(msgs) == 0 {
		return false, nil
	}
	if !t.containsMarker(msgs) {
		return false, nil
	}

	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return false, nil
	}
	t.fired = true
	t.mu.Unlock()

	req := NewRequest(t.sessionID, msgs, t.now())
	payload, err := json.Marshal(req)
	if err != nil {
		return true, errors.Wrap(err, "failed to encode report request")
	}

	log.Info().Str("component", "report").Str("session_id", t.sessionID).
		Int("dialogue_len", len(req.Dialogue)).Msg("session end detected, requesting report")

	if err := t.sender.SendText(ctx, Topic, payload); err != nil {
		return true, errors.Wrap(err, "failed to dispatch report request")
	}
	return true, nil
}
