package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNickTaken is returned by Join when the nickname is already in use in the
// requested channel (compared case-insensitively).
var ErrNickTaken = errors.New("nickname already in use")

var (
	errHubClosed  = errors.New("hub is shut down")
	errClientGone = errors.New("client is no longer registered")
)

// room tracks the sessions joined to one channel. order preserves
// registration order so onlineSet snapshots are deterministic; members gives
// O(1) membership checks during removal.
type room struct {
	members map[*Client]struct{}
	order   []*Client
}

func newRoom() *room {
	return &room{members: make(map[*Client]struct{})}
}

func (r *room) remove(c *Client) {
	delete(r.members, c)
	for i, m := range r.order {
		if m == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

type roomFrame struct {
	channel string
	payload []byte
}

type joinRequest struct {
	client  *Client
	channel string
	nick    string
	reply   chan joinReply
}

type joinReply struct {
	nicks []string
	err   error
}

// Hub owns the channel->room registry and performs all broadcast fan-out.
// Membership mutation and fan-out are serialized through the Run loop, so
// chat frames within a room are delivered in the order they were accepted.
// The mutex guards reads from connection goroutines (safeSend, snapshots).
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	rooms   map[string]*room
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	broadcast  chan roomFrame

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub ready to manage connections. Run must be started in
// its own goroutine before clients are registered.
func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		rooms:      make(map[string]*room),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		broadcast:  make(chan roomFrame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub, which starts its pump
// goroutines. It is a no-op after shutdown has begun.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
	}
}

// drop requests disconnect cleanup for c. Safe to call more than once; the
// cleanup itself runs at most once.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Join registers c in the channel's room, broadcasts onlineAdd to the room
// (including c), and returns the membership snapshot in registration order.
func (h *Hub) Join(c *Client, channel, nick string) ([]string, error) {
	req := joinRequest{client: c, channel: channel, nick: nick, reply: make(chan joinReply, 1)}
	select {
	case h.join <- req:
	case <-h.ctx.Done():
		return nil, errHubClosed
	}
	select {
	case r := <-req.reply:
		return r.nicks, r.err
	case <-h.ctx.Done():
		return nil, errHubClosed
	}
}

// Broadcast queues payload for delivery to every current member of channel.
func (h *Hub) Broadcast(channel string, payload []byte) {
	select {
	case h.broadcast <- roomFrame{channel: channel, payload: payload}:
	case <-h.ctx.Done():
	}
}

// Nicks returns the nicknames currently joined to channel, in registration
// order.
func (h *Hub) Nicks(channel string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rm := h.rooms[channel]
	if rm == nil {
		return nil
	}
	nicks := make([]string, len(rm.order))
	for i, m := range rm.order {
		nicks[i] = m.nick
	}
	return nicks
}

// Run is the hub's event loop. It owns all room mutation and runs until
// Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			if c == nil {
				h.log.Warn().Msg("nil client registration; skipping")
				continue
			}
			h.mu.Lock()
			c.closed = false
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Str("conn", c.id).Str("addr", c.addr).Int("total", total).Msg("connection registered")

			// Unit tests register transport-less clients to exercise room
			// semantics; pumps only make sense with a live connection.
			if c.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					c.writePump()
				}()
				go func() {
					defer h.wg.Done()
					c.readPump()
				}()
			}

		case c := <-h.unregister:
			h.handleLeave(c)

		case req := <-h.join:
			h.handleJoin(req)

		case frame := <-h.broadcast:
			h.cull(h.fanout(frame.channel, frame.payload))
		}
	}
}

func (h *Hub) handleJoin(req joinRequest) {
	h.mu.Lock()
	if _, registered := h.clients[req.client]; !registered {
		h.mu.Unlock()
		req.reply <- joinReply{err: errClientGone}
		return
	}
	rm := h.rooms[req.channel]
	if rm == nil {
		rm = newRoom()
		h.rooms[req.channel] = rm
	}
	for _, m := range rm.order {
		if strings.EqualFold(m.nick, req.nick) {
			h.mu.Unlock()
			req.reply <- joinReply{err: ErrNickTaken}
			return
		}
	}
	rm.members[req.client] = struct{}{}
	rm.order = append(rm.order, req.client)
	nicks := make([]string, len(rm.order))
	for i, m := range rm.order {
		nicks[i] = m.nick
	}
	h.mu.Unlock()

	h.log.Info().Str("conn", req.client.id).Str("channel", req.channel).Str("nick", req.nick).Msg("joined channel")

	// Fan out before replying so the joiner sees its own onlineAdd ahead of
	// the onlineSet its session sends after the reply.
	h.cull(h.fanout(req.channel, encodeOnlineAdd(req.nick)))
	req.reply <- joinReply{nicks: nicks}
}

// handleLeave removes a connection and, if it had joined a room, notifies the
// remaining members. The registry check makes cleanup exactly-once even when
// disconnect is signalled from several paths.
func (h *Hub) handleLeave(c *Client) {
	nick, channel, ok := h.removeClient(c)
	if !ok {
		return
	}
	h.log.Info().Str("conn", c.id).Str("addr", c.addr).Msg("connection unregistered")
	if nick != "" {
		h.cull(h.fanout(channel, encodeOnlineRemove(nick)))
	}
}

// removeClient deregisters c and removes it from its room, returning the nick
// and channel to notify if it was joined. Returns ok=false if c was already
// removed. Closing the send channel here is safe: safeSend checks c.closed
// under the same lock before sending.
func (h *Hub) removeClient(c *Client) (nick, channel string, ok bool) {
	h.mu.Lock()
	if _, exists := h.clients[c]; !exists {
		h.mu.Unlock()
		return "", "", false
	}
	delete(h.clients, c)
	c.closed = true
	if rm := h.rooms[c.channel]; rm != nil {
		if _, member := rm.members[c]; member {
			rm.remove(c)
			if len(rm.order) == 0 {
				delete(h.rooms, c.channel)
			}
			nick, channel = c.nick, c.channel
		}
	}
	h.mu.Unlock()

	close(c.send)
	return nick, channel, true
}

// fanout delivers payload to every current member of channel from a stable
// snapshot. Each delivery is an independent non-blocking enqueue; members
// whose queue is full or who are gone are returned for culling rather than
// stalling the room.
func (h *Hub) fanout(channel string, payload []byte) []*Client {
	h.mu.RLock()
	rm := h.rooms[channel]
	var snapshot []*Client
	if rm != nil {
		snapshot = make([]*Client, len(rm.order))
		copy(snapshot, rm.order)
	}
	h.mu.RUnlock()

	var failed []*Client
	for _, c := range snapshot {
		if !h.safeSend(c, payload) {
			failed = append(failed, c)
		}
	}
	return failed
}

// cull evicts members that could not be delivered to, broadcasting the
// resulting onlineRemove frames. Evictions triggered by those notifications
// are processed in turn; the set shrinks on every step so this terminates.
func (h *Hub) cull(failed []*Client) {
	for len(failed) > 0 {
		c := failed[0]
		failed = failed[1:]
		nick, channel, ok := h.removeClient(c)
		if !ok {
			continue
		}
		h.log.Warn().Str("conn", c.id).Str("addr", c.addr).Msg("removed slow or closed connection")
		if nick != "" {
			failed = append(failed, h.fanout(channel, encodeOnlineRemove(nick))...)
		}
	}
}

// safeSend enqueues payload on c's outbound queue without blocking. It
// reports false if c is no longer registered or its queue is full.
func (h *Hub) safeSend(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, exists := h.clients[c]; !exists || c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdownClients closes all active connections so their pumps unwind.
func (h *Hub) shutdownClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("addr", c.addr).Msg("error closing client connection")
			}
		}
	}
	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown stops the hub and waits for connection goroutines to finish, up to
// timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("hub shutting down")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timed out; some connections may still be draining")
		return context.DeadlineExceeded
	}
}
