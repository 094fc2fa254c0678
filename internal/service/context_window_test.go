package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextWindowBuild_ChronologicalOrder(t *testing.T) {
	store := newFakeMessageStore(
		msgAt("m1", "c1", "alice", "first", 0),
		msgAt("m2", "c1", "bob", "second", 1),
		msgAt("m3", "c1", "alice", "third", 2),
		msgAt("m4", "c1", "bob", "target", 3),
	)
	b := NewContextWindowBuilder(store)

	target := msgAt("m4", "c1", "bob", "target", 3)
	window, err := b.Build(context.Background(), &target, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, "m2", window[0].MessageID)
	require.Equal(t, "m3", window[1].MessageID)
}

func TestContextWindowBuild_IncludesRepliedMessage(t *testing.T) {
	store := newFakeMessageStore(
		msgAt("m1", "c1", "alice", "question about tents", 0),
		msgAt("m2", "c1", "bob", "filler", 10),
		msgAt("m3", "c1", "bob", "filler 2", 11),
	)
	b := NewContextWindowBuilder(store)

	target := msgAt("m4", "c1", "carol", "the blue one", 12)
	target.ReplyToMessageID = "m1"
	window, err := b.Build(context.Background(), &target, 2)
	require.NoError(t, err)
	// The replied-to message is pulled in even though it falls outside the
	// recency window, and the result stays chronological.
	require.Len(t, window, 3)
	require.Equal(t, "m1", window[0].MessageID)
	require.Equal(t, "m2", window[1].MessageID)
	require.Equal(t, "m3", window[2].MessageID)
}

func TestContextWindowBuild_DanglingReplyOmitted(t *testing.T) {
	store := newFakeMessageStore(
		msgAt("m1", "c1", "alice", "hello", 0),
	)
	b := NewContextWindowBuilder(store)

	target := msgAt("m2", "c1", "bob", "reply to deleted", 1)
	target.ReplyToMessageID = "gone"
	window, err := b.Build(context.Background(), &target, 5)
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.Equal(t, "m1", window[0].MessageID)
}

func TestContextWindowBuild_DeduplicatesReplyInWindow(t *testing.T) {
	store := newFakeMessageStore(
		msgAt("m1", "c1", "alice", "hello", 0),
		msgAt("m2", "c1", "bob", "hi", 1),
	)
	b := NewContextWindowBuilder(store)

	target := msgAt("m3", "c1", "alice", "reply", 2)
	target.ReplyToMessageID = "m2"
	window, err := b.Build(context.Background(), &target, 5)
	require.NoError(t, err)
	require.Len(t, window, 2)
	ids := []string{window[0].MessageID, window[1].MessageID}
	require.Equal(t, []string{"m1", "m2"}, ids)
}

func TestContextWindowBuild_OtherChatsExcluded(t *testing.T) {
	store := newFakeMessageStore(
		msgAt("m1", "c1", "alice", "mine", 0),
		msgAt("x1", "c2", "eve", "other chat", 1),
	)
	b := NewContextWindowBuilder(store)

	target := msgAt("m2", "c1", "bob", "target", 2)
	window, err := b.Build(context.Background(), &target, 5)
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.Equal(t, "m1", window[0].MessageID)
}

func TestContextWindowBuild_EmptyHistory(t *testing.T) {
	store := newFakeMessageStore()
	b := NewContextWindowBuilder(store)

	target := msgAt("m1", "c1", "alice", "first ever", 0)
	window, err := b.Build(context.Background(), &target, 5)
	require.NoError(t, err)
	require.Empty(t, window)
}
