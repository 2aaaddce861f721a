package room

import "context"

// Room is what the session core needs from the underlying real-time
// transport: an identity, topic-tagged reliable sends, chat publishing, and
// teardown. Media tracks, reconnection, and everything else the transport does
// stay behind this boundary.
type Room interface {
	// Name returns the room identifier the session is scoped to.
	Name() string
	// SendText delivers an out-of-band payload on the reliable side channel
	// tagged with topic. Fire-and-forget: no response is awaited.
	SendText(ctx context.Context, topic string, payload []byte) error
	// SendChat publishes a chat message from the local participant.
	SendChat(ctx context.Context, text string) error
	// Disconnect leaves the room. Safe to call more than once.
	Disconnect() error
}
