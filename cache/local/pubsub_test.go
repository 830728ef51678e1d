package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubFanOut(t *testing.T) {
	ps := NewPubSub(8)
	ctx := context.Background()

	ch1, cancel1, err := ps.Subscribe(ctx, "topic")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := ps.Subscribe(ctx, "topic")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "topic", "hola"))

	for _, ch := range []<-chan *LocalMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "topic", msg.Channel)
			assert.Equal(t, "hola", msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the message")
		}
	}
}

func TestPubSubChannelIsolation(t *testing.T) {
	ps := NewPubSub(8)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "b", "other"))

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubSubCancelStopsDelivery(t *testing.T) {
	ps := NewPubSub(8)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "topic")
	require.NoError(t, err)
	cancel()

	require.NoError(t, ps.Publish(ctx, "topic", "late"))

	select {
	case _, open := <-ch:
		assert.False(t, open, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPubSubFullBufferDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "topic")
	require.NoError(t, err)
	defer cancel()

	// Second publish overflows the buffer and must not block.
	require.NoError(t, ps.Publish(ctx, "topic", "first"))
	require.NoError(t, ps.Publish(ctx, "topic", "dropped"))

	msg := <-ch
	assert.Equal(t, "first", msg.Payload)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second message: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
