package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	require.Error(t, err)
}

func TestSQLiteAppendAndHistoryOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msgs := []Message{
		{Channel: "general", Nick: "alice", Text: "first"},
		{Channel: "general", Nick: "bob", Text: "second"},
		{Channel: "general", Nick: "alice", Text: "third"},
	}
	for _, m := range msgs {
		require.NoError(t, s.Append(ctx, m))
	}

	got, err := s.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, msgs[i].Nick, m.Nick)
		assert.Equal(t, msgs[i].Text, m.Text)
		assert.Equal(t, "general", m.Channel)
		assert.False(t, m.Time.IsZero())
	}
}

func TestSQLiteHistoryIsPerChannel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "alice", Text: "hi"}))
	require.NoError(t, s.Append(ctx, Message{Channel: "random", Nick: "bob", Text: "yo"}))

	general, err := s.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.Equal(t, "alice", general[0].Nick)

	empty, err := s.History(ctx, "nowhere", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteHistoryLimitKeepsMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "alice", Text: text}))
	}

	got, err := s.History(ctx, "general", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Text)
	assert.Equal(t, "four", got[1].Text)
}

func TestSQLiteRoundTripPreservesText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	text := "héllo ✨\nsecond line\ttab \"quotes\""
	at := time.UnixMilli(1712345678901)
	require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "alice", Text: text, Time: at}))

	got, err := s.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0].Text)
	assert.Equal(t, at.UnixMilli(), got[0].Time.UnixMilli())
}

func TestSQLiteHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "alice", Text: "durable"}))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.History(ctx, "general", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "durable", got[0].Text)
}

func TestSQLiteReplayIsRepeatable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "alice", Text: "a"}))
	require.NoError(t, s.Append(ctx, Message{Channel: "general", Nick: "bob", Text: "b"}))

	first, err := s.History(ctx, "general", 0)
	require.NoError(t, err)
	second, err := s.History(ctx, "general", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
