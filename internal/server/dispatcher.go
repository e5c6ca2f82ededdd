package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// errMalformedFrame marks frames that cannot be processed: unparseable
// bodies, a missing cmd, or a known cmd missing required fields. Malformed
// frames are fatal to the connection.
var errMalformedFrame = errors.New("malformed frame")

// dispatch decodes one inbound frame and routes it to the matching session
// operation. Unknown commands are discarded without error so older servers
// stay compatible with newer clients.
func (c *Client) dispatch(raw []byte) error {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if f.Cmd == nil {
		return fmt.Errorf("%w: missing cmd", errMalformedFrame)
	}

	switch *f.Cmd {
	case cmdJoin:
		if f.Channel == nil || *f.Channel == "" || f.Nick == nil || *f.Nick == "" {
			return fmt.Errorf("%w: join requires channel and nick", errMalformedFrame)
		}
		return c.joinChannel(*f.Channel, *f.Nick)

	case cmdChat:
		if f.Text == nil {
			return fmt.Errorf("%w: chat requires text", errMalformedFrame)
		}
		return c.chat(*f.Text)

	default:
		c.log.Debug().Str("cmd", *f.Cmd).Msg("ignoring unknown command")
		return nil
	}
}
