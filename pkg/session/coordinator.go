// Package session wires the core together for one room session: it consumes
// the room's event topics, recomputes the merged timeline on every update,
// runs the end-of-session report trigger against each snapshot, and supervises
// start-up health with a watchdog. All per-session state (source snapshots,
// the trigger latch, the watchdog) lives on the Coordinator, so sequential
// sessions never share state.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carevox/voicesession/pkg/report"
	"github.com/carevox/voicesession/pkg/room"
	"github.com/carevox/voicesession/pkg/timeline"
	"github.com/carevox/voicesession/pkg/watchdog"
)

// NoticeFunc receives user-facing notifications (the toast surface).
type NoticeFunc func(title, description string)

// Coordinator orchestrates one session. Construct a fresh one per room.
type Coordinator struct {
	sessionID  string
	subscriber message.Subscriber
	classifier timeline.Classifier
	trigger    *report.Trigger
	dog        *watchdog.Watchdog

	onTimeline func([]timeline.Message)
	onNotice   NoticeFunc
	onTeardown func()

	mu             sync.Mutex
	transcriptions []timeline.Message
	chats          []timeline.Message
	merged         []timeline.Message
	cancel         context.CancelFunc
	running        bool
}

type Option func(*config)

type config struct {
	classifier   timeline.Classifier
	triggerOpts  []report.TriggerOption
	watchdogOpts []watchdog.Option
	onTimeline   func([]timeline.Message)
	onNotice     NoticeFunc
	onTeardown   func()
}

func WithClassifier(c timeline.Classifier) Option {
	return func(cfg *config) { cfg.classifier = c }
}

func WithTriggerOptions(opts ...report.TriggerOption) Option {
	return func(cfg *config) { cfg.triggerOpts = append(cfg.triggerOpts, opts...) }
}

func WithWatchdogOptions(opts ...watchdog.Option) Option {
	return func(cfg *config) { cfg.watchdogOpts = append(cfg.watchdogOpts, opts...) }
}

// WithOnTimeline installs the read-only timeline tap (the rendering
// collaborator). It is invoked with a fresh snapshot after every re-merge.
func WithOnTimeline(fn func([]timeline.Message)) Option {
	return func(cfg *config) { cfg.onTimeline = fn }
}

// WithOnNotice installs the user-facing notification surface.
func WithOnNotice(fn NoticeFunc) Option {
	return func(cfg *config) { cfg.onNotice = fn }
}

// WithOnTeardown installs the hook the watchdog invokes to tear the session
// down on timeout (typically Room.Disconnect).
func WithOnTeardown(fn func()) Option {
	return func(cfg *config) { cfg.onTeardown = fn }
}

// New builds a Coordinator for sessionID. sub delivers the room's event
// topics; sender is the side channel for report dispatch.
func New(sessionID string, sub message.Subscriber, sender report.Sender, opts ...Option) *Coordinator {
	cfg := &config{classifier: timeline.NewClassifier()}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Coordinator{
		sessionID:  sessionID,
		subscriber: sub,
		classifier: cfg.classifier,
		trigger:    report.NewTrigger(sessionID, sender, cfg.triggerOpts...),
		onTimeline: cfg.onTimeline,
		onNotice:   cfg.onNotice,
		onTeardown: cfg.onTeardown,
	}
	c.dog = watchdog.New(c.handleTimeout, cfg.watchdogOpts...)
	return c
}

// Start subscribes to the room topics and launches the consume loop. Calling
// Start on a running Coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	if c == nil || c.subscriber == nil {
		return errors.New("session coordinator needs a subscriber")
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	transcriptions, err := c.subscriber.Subscribe(runCtx, room.TopicTranscription)
	if err != nil {
		c.Stop()
		return errors.Wrap(err, "failed to subscribe to transcriptions")
	}
	chats, err := c.subscriber.Subscribe(runCtx, room.TopicChat)
	if err != nil {
		c.Stop()
		return errors.Wrap(err, "failed to subscribe to chat")
	}
	states, err := c.subscriber.Subscribe(runCtx, room.TopicAgentState)
	if err != nil {
		c.Stop()
		return errors.Wrap(err, "failed to subscribe to agent state")
	}

	go c.consume(runCtx, transcriptions, chats, states)
	return nil
}

// SessionStarted asserts the session-start signal: the health watchdog is
// armed from this point.
func (c *Coordinator) SessionStarted() {
	if c == nil {
		return
	}
	c.dog.Start()
}

// Stop cancels the consume loop and disposes the watchdog. Per-session state
// (snapshots, latch) is discarded with the Coordinator.
func (c *Coordinator) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.running = false
	c.mu.Unlock()
	c.dog.Stop()
}

// Timeline returns a copy of the current merged timeline.
func (c *Coordinator) Timeline() []timeline.Message {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]timeline.Message, len(c.merged))
	copy(out, c.merged)
	return out
}

// ReportFired reports whether the end-of-session report was dispatched.
func (c *Coordinator) ReportFired() bool {
	if c == nil {
		return false
	}
	return c.trigger.Fired()
}

// HealthState exposes the watchdog state.
func (c *Coordinator) HealthState() watchdog.State {
	if c == nil {
		return watchdog.StateWaitingForAgent
	}
	return c.dog.State()
}

func (c *Coordinator) consume(ctx context.Context, transcriptions, chats, states <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-transcriptions:
			if !ok {
				return
			}
			c.handleSource(ctx, timeline.OriginTranscription, msg)
			msg.Ack()
		case msg, ok := <-chats:
			if !ok {
				return
			}
			c.handleSource(ctx, timeline.OriginChat, msg)
			msg.Ack()
		case msg, ok := <-states:
			if !ok {
				return
			}
			c.handleAgentState(msg)
			msg.Ack()
		}
	}
}

func decodeEvent(msg *message.Message) (room.Event, bool) {
	var ev room.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("message_id", msg.UUID).Msg("dropping undecodable room event")
		return room.Event{}, false
	}
	return ev, true
}

// handleSource folds one source event into its snapshot, re-merges, and runs
// the sentinel scan on the fresh snapshot. The merge is a pure recompute of
// both snapshots, so out-of-order delivery just lands the message at its
// timestamp. Scan failures are surfaced and logged but never stop the loop:
// a failed report dispatch must not take the session down.
func (c *Coordinator) handleSource(ctx context.Context, origin timeline.Origin, msg *message.Message) {
	ev, ok := decodeEvent(msg)
	if !ok {
		return
	}

	entry := timeline.Message{
		ID:        ev.ID,
		Origin:    origin,
		Role:      c.classifier.Classify(ev.From),
		From:      ev.From,
		Text:      ev.TextContent(),
		Timestamp: ev.Time(),
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	c.mu.Lock()
	if origin == timeline.OriginTranscription {
		c.transcriptions = append(c.transcriptions, entry)
	} else {
		c.chats = append(c.chats, entry)
	}
	merged := timeline.Merge(c.transcriptions, c.chats)
	c.merged = merged
	c.mu.Unlock()

	if c.onTimeline != nil {
		c.onTimeline(merged)
	}

	fired, err := c.trigger.Scan(ctx, merged)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Str("session_id", c.sessionID).Msg("report request failed")
		c.notify("Failed to request report", err.Error())
		return
	}
	if fired {
		c.notify("Report requested", "The report generation request has been sent.")
	}
}

func (c *Coordinator) handleAgentState(msg *message.Message) {
	ev, ok := decodeEvent(msg)
	if !ok {
		return
	}
	if ev.State == "" {
		return
	}
	c.dog.Observe(watchdog.AgentState(ev.State))
}

func (c *Coordinator) handleTimeout(r watchdog.Report) {
	if c.onTeardown != nil {
		c.onTeardown()
	}
	c.notify("Session ended", r.Reason+" Reconnect to try again.")
}

func (c *Coordinator) notify(title, description string) {
	if c.onNotice == nil {
		return
	}
	c.onNotice(title, description)
}
