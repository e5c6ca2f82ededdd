package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat/internal/store"
)

const (
	// sendQueueSize bounds each session's outbound queue. A member that
	// cannot drain this many frames is culled rather than stalling its room.
	sendQueueSize = 256

	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeWait     = 10 * time.Second
	storeOpWait   = 5 * time.Second
	defaultMaxMsg = 512
)

// ClientOptions carries per-connection settings from the handler.
type ClientOptions struct {
	// MaxMessageSize caps inbound frames in bytes; larger frames close the
	// connection. Zero means the default.
	MaxMessageSize int64
	// HistoryLimit caps history replay on join; zero replays everything.
	HistoryLimit   int
	Logger         zerolog.Logger
}

// Client is the server-side state for one connection: the transport handle,
// the session fields set by join, and the bounded outbound queue drained by
// writePump.
//
// nick, channel, and joined are written only by the connection's read
// goroutine, and always before the session becomes visible to the hub through
// a join request, so the hub run loop may read them without extra locking.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	st   store.Store
	log  zerolog.Logger
	addr string

	maxMessageSize int64
	historyLimit   int

	// closed is guarded by hub.mu.
	closed bool

	nick    string
	channel string
	joined  bool
}

// NewClient wraps an accepted connection. conn may be nil in tests that
// exercise room semantics without a transport.
func NewClient(conn *websocket.Conn, hub *Hub, st store.Store, addr string, opts ClientOptions) *Client {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMsg
	}
	if conn != nil {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		st:             st,
		log:            opts.Logger.With().Str("conn", id).Str("addr", addr).Logger(),
		addr:           addr,
		maxMessageSize: opts.MaxMessageSize,
		historyLimit:   opts.HistoryLimit,
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError records why the receive loop is stopping. Any read error is
// terminal for the connection.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("inbound frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// readPump is the connection supervisor loop: receive one frame, hand it to
// the dispatcher, repeat until the transport closes or a frame is
// unrecoverable. Cleanup is requested exactly once on the way out.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if err := c.dispatch(raw); err != nil {
			// Malformed frames and store failures are fatal to this
			// connection only; peers learn about it via disconnect cleanup.
			c.log.Warn().Err(err).Msg("closing connection")
			return
		}
	}
}

// writePump drains the outbound queue onto the transport and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in writePump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeFrame(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// writeFrame writes one frame plus anything else already queued. ok=false
// means the hub closed the queue and the connection should say goodbye.
func (c *Client) writeFrame(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}
	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error creating frame writer")
		}
		return false
	}
	if _, err := w.Write(payload); err != nil {
		c.log.Warn().Err(err).Msg("error writing frame")
		return false
	}
	// Frames are self-delimiting JSON objects; drain whatever else is queued
	// into separate messages rather than batching into one.
	if err := w.Close(); err != nil {
		c.log.Warn().Err(err).Msg("error closing frame writer")
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn().Err(err).Msg("error writing queued frame")
			}
			return false
		}
	}
	return true
}

func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping")
		}
		return false
	}
	return true
}
