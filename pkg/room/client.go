package room

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carevox/voicesession/pkg/connection"
)

// MetadataFrom carries the source identity on published watermill messages.
const MetadataFrom = "from"

type outboundFrame struct {
	Topic   string          `json:"topic,omitempty"`
	Kind    EventKind       `json:"kind,omitempty"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is a websocket-backed Room. Its read loop decodes inbound frames and
// republishes them onto per-kind watermill topics; the session coordinator
// subscribes on the other side. Writes are serialized; the connection is
// closed once, with a normal-closure frame, no matter how many paths reach
// Disconnect.
type Client struct {
	name      string
	conn      *websocket.Conn
	publisher message.Publisher

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ Room = (*Client)(nil)

// Dial joins the room described by details, authenticating with the
// participant token, and starts the read loop. The publisher receives every
// decoded inbound event; frames with unknown kinds are dropped with a log
// line.
func Dial(ctx context.Context, details connection.Details, publisher message.Publisher) (*Client, error) {
	if !details.Complete() {
		return nil, errors.New("cannot dial room: incomplete connection details")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+details.ParticipantToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, details.ServerURL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to join room %q (status %d)", details.RoomName, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "failed to join room %q", details.RoomName)
	}

	c := &Client{
		name:      details.RoomName,
		conn:      conn,
		publisher: publisher,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	log.Info().Str("component", "room").Str("room", details.RoomName).
		Str("participant", details.ParticipantName).Msg("joined room")
	return c, nil
}

func (c *Client) Name() string {
	return c.name
}

// Done closes when the read loop exits (server close or local disconnect).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("component", "room").Str("room", c.name).Msg("room connection closed unexpectedly")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("component", "room").Str("room", c.name).Msg("dropping undecodable room frame")
		return
	}
	topic, ok := ev.topic()
	if !ok {
		log.Debug().Str("component", "room").Str("room", c.name).Str("kind", string(ev.Kind)).Msg("dropping room frame with unknown kind")
		return
	}
	if c.publisher == nil {
		return
	}
	msg := message.NewMessage(uuid.NewString(), data)
	if ev.From != "" {
		msg.Metadata.Set(MetadataFrom, ev.From)
	}
	if err := c.publisher.Publish(topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "room").Str("room", c.name).Str("topic", topic).Msg("failed to publish room event")
	}
}

func (c *Client) write(frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "failed to encode outbound frame")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "room send failed")
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "room send cancelled")
	}
	return c.write(outboundFrame{Topic: topic, Payload: payload})
}

func (c *Client) SendChat(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "room send cancelled")
	}
	return c.write(outboundFrame{Kind: EventChat, Text: text})
}

func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
		log.Info().Str("component", "room").Str("room", c.name).Msg("left room")
	})
	return c.closeErr
}
