// Wire frames exchanged with clients: one JSON object per WebSocket text
// message. Every outbound frame carries a `time` field in milliseconds since
// the epoch.

package server

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound and outbound command names. Unknown inbound commands are ignored to
// keep the protocol lenient toward newer clients.
const (
	cmdJoin         = "join"
	cmdChat         = "chat"
	cmdOnlineAdd    = "onlineAdd"
	cmdOnlineRemove = "onlineRemove"
	cmdOnlineSet    = "onlineSet"
	cmdWarn         = "warn"
)

// inboundFrame is the decoded form of one client frame. Fields are pointers
// so a missing field can be told apart from an empty one: a known command
// with a missing required field is a malformed frame.
type inboundFrame struct {
	Cmd     *string `json:"cmd"`
	Channel *string `json:"channel"`
	Nick    *string `json:"nick"`
	Text    *string `json:"text"`
}

type chatFrame struct {
	Cmd  string `json:"cmd"`
	Nick string `json:"nick"`
	Text string `json:"text"`
	Time int64  `json:"time"`
}

type presenceFrame struct {
	Cmd  string `json:"cmd"`
	Nick string `json:"nick"`
	Time int64  `json:"time"`
}

type onlineSetFrame struct {
	Cmd   string   `json:"cmd"`
	Nicks []string `json:"nicks"`
	Time  int64    `json:"time"`
}

type warnFrame struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
	Time int64  `json:"time"`
}

func encodeChat(nick, text string, at time.Time) []byte {
	return marshalFrame(chatFrame{Cmd: cmdChat, Nick: nick, Text: text, Time: at.UnixMilli()})
}

func encodeOnlineAdd(nick string) []byte {
	return marshalFrame(presenceFrame{Cmd: cmdOnlineAdd, Nick: nick, Time: time.Now().UnixMilli()})
}

func encodeOnlineRemove(nick string) []byte {
	return marshalFrame(presenceFrame{Cmd: cmdOnlineRemove, Nick: nick, Time: time.Now().UnixMilli()})
}

func encodeOnlineSet(nicks []string) []byte {
	if nicks == nil {
		nicks = []string{}
	}
	return marshalFrame(onlineSetFrame{Cmd: cmdOnlineSet, Nicks: nicks, Time: time.Now().UnixMilli()})
}

func encodeWarn(text string) []byte {
	return marshalFrame(warnFrame{Cmd: cmdWarn, Text: text, Time: time.Now().UnixMilli()})
}

// marshalFrame encodes an outbound frame. The frame types above contain only
// strings, slices of strings, and integers, so marshaling cannot fail.
func marshalFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
