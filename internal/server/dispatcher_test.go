package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/internal/store"
)

func TestDispatchMalformedBody(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t, h, nil)

	for _, raw := range []string{
		"not json",
		`"just a string"`,
		`{"cmd":`,
	} {
		err := c.dispatch([]byte(raw))
		assert.ErrorIs(t, err, errMalformedFrame, "input %q", raw)
	}
}

func TestDispatchMissingCmd(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t, h, nil)

	err := c.dispatch([]byte(`{"channel":"general","nick":"alice"}`))
	assert.ErrorIs(t, err, errMalformedFrame)
}

func TestDispatchUnknownCmdIsIgnored(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t, h, nil)

	require.NoError(t, c.dispatch([]byte(`{"cmd":"ping"}`)))
	require.NoError(t, c.dispatch([]byte(`{"cmd":"kick","nick":"alice"}`)))

	requireNoFrame(t, c)
	assert.False(t, c.joined)
}

func TestDispatchJoinRequiresChannelAndNick(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t, h, nil)

	for _, raw := range []string{
		`{"cmd":"join"}`,
		`{"cmd":"join","channel":"general"}`,
		`{"cmd":"join","nick":"alice"}`,
		`{"cmd":"join","channel":"","nick":"alice"}`,
		`{"cmd":"join","channel":"general","nick":""}`,
	} {
		err := c.dispatch([]byte(raw))
		assert.ErrorIs(t, err, errMalformedFrame, "input %q", raw)
	}
	assert.False(t, c.joined)
}

func TestDispatchChatRequiresText(t *testing.T) {
	h := newTestHub(t)
	c := newTestClient(t, h, nil)

	err := c.dispatch([]byte(`{"cmd":"chat"}`))
	assert.ErrorIs(t, err, errMalformedFrame)
}

func TestDispatchValidJoinAndChat(t *testing.T) {
	h := newTestHub(t)
	st := store.NewMemory()
	c := newTestClient(t, h, st)

	require.NoError(t, c.dispatch([]byte(`{"cmd":"join","channel":"general","nick":"alice","extra":"ignored"}`)))
	assert.True(t, c.joined)
	expectCmd(t, c, cmdOnlineAdd)
	expectCmd(t, c, cmdOnlineSet)

	require.NoError(t, c.dispatch([]byte(`{"cmd":"chat","text":"hi"}`)))
	assert.Equal(t, "hi", expectCmd(t, c, cmdChat)["text"])

	msgs, err := st.History(context.Background(), "general", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestDispatchChatBeforeJoinIsIgnored(t *testing.T) {
	h := newTestHub(t)
	st := store.NewMemory()
	c := newTestClient(t, h, st)

	require.NoError(t, c.dispatch([]byte(`{"cmd":"chat","text":"early"}`)))

	requireNoFrame(t, c)
	msgs, err := st.History(context.Background(), "general", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
