package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/driftchat/driftchat/internal/store"
)

// errSendStalled means a frame could not be queued for this connection; the
// session cannot keep its delivery guarantees, so the connection is closed.
var errSendStalled = errors.New("outbound queue stalled")

var nickPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,24}$`)

var (
	textEdges    = regexp.MustCompile(`^\s*\n|^\s+$|\n\s*$`)
	textNewlines = regexp.MustCompile(`\n{3,}`)
)

// joinChannel moves the session from Unjoined to Joined: register in the
// room, notify the room (onlineAdd, joiner included), send the joiner the
// membership snapshot, then replay the channel's history to the joiner only.
// A join while already Joined is silently ignored; the session stays in its
// original room.
func (c *Client) joinChannel(channel, nick string) error {
	if c.joined {
		return nil
	}
	if !nickPattern.MatchString(nick) {
		return c.warn("Nickname must consist of up to 24 letters, numbers, and underscores")
	}

	c.nick = nick
	c.channel = channel
	nicks, err := c.hub.Join(c, channel, nick)
	if err != nil {
		c.nick = ""
		c.channel = ""
		if errors.Is(err, ErrNickTaken) {
			return c.warn("Nickname taken")
		}
		return fmt.Errorf("join %q: %w", channel, err)
	}
	c.joined = true

	if !c.hub.safeSend(c, encodeOnlineSet(nicks)) {
		return errSendStalled
	}
	return c.replayHistory(channel)
}

// replayHistory sends the channel's persisted messages to this session only,
// oldest first, one chat frame per record.
func (c *Client) replayHistory(channel string) error {
	ctx, cancel := context.WithTimeout(c.hub.ctx, storeOpWait)
	defer cancel()

	msgs, err := c.st.History(ctx, channel, c.historyLimit)
	if err != nil {
		return fmt.Errorf("replay history for %q: %w", channel, err)
	}
	for _, m := range msgs {
		if !c.hub.safeSend(c, encodeChat(m.Nick, m.Text, m.Time)) {
			return errSendStalled
		}
	}
	return nil
}

// chat persists the message and fans it out to the whole room, sender
// included. Before join it is a silent no-op. Persistence comes first: a
// store failure closes this connection without anything having been
// broadcast.
func (c *Client) chat(text string) error {
	if !c.joined {
		return nil
	}
	text = cleanText(text)
	if text == "" {
		return nil
	}

	msg := store.Message{Channel: c.channel, Nick: c.nick, Text: text, Time: time.Now()}

	ctx, cancel := context.WithTimeout(c.hub.ctx, storeOpWait)
	defer cancel()
	if err := c.st.Append(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	c.hub.Broadcast(c.channel, encodeChat(msg.Nick, msg.Text, msg.Time))
	return nil
}

// warn sends a validation notice to this session only. The connection stays
// open and the session state is unchanged.
func (c *Client) warn(text string) error {
	if !c.hub.safeSend(c, encodeWarn(text)) {
		return errSendStalled
	}
	return nil
}

// cleanText strips leading/trailing blank space and collapses runs of three
// or more newlines, returning "" for messages with no content.
func cleanText(s string) string {
	s = textEdges.ReplaceAllString(s, "")
	s = textNewlines.ReplaceAllString(s, "\n\n")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
