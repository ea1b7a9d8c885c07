package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	t.Parallel()

	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), "u1", "payload"))
	assert.NoError(t, n.PublishBroadcast(context.Background(), "payload"))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:64b000000000000000000001", UserChannel("64b000000000000000000001"))
}

func TestHub_StartWiringDeliversPublishedMessages(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub(nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	client, err := hub.Register("grace", nil)
	require.NoError(t, err)

	require.NoError(t, n.PublishUser(ctx, "grace", `{"type":"notification"}`))
	require.NoError(t, n.PublishBroadcast(ctx, `{"type":"new_feed"}`))

	assert.Eventually(t, func() bool { return len(client.Send) == 2 }, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberSurvivesPanickingHandler(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 2)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if payload == "bad" {
			panic("handler bug")
		}
		got <- channel
	}))

	require.NoError(t, n.PublishUser(ctx, "ada", "bad"))
	require.NoError(t, n.PublishUser(ctx, "ada", "good"))

	select {
	case ch := <-got:
		assert.Equal(t, UserChannel("ada"), ch)
	case <-time.After(time.Second):
		t.Fatal("subscriber stopped after a panic")
	}
}
