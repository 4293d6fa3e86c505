package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, domain.TopicFamilyUpdated, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, domain.TopicFamilyUpdated, []byte(`{"family_id":"F-1"}`)))

		select {
		case msg := <-got:
			assert.Equal(t, `{"family_id":"F-1"}`, string(msg.Payload))
			assert.Equal(t, domain.TopicFamilyUpdated, msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var cases, snapshots atomic.Int32
		_, err := bus.Subscribe(ctx, "iso.cases", func(ctx context.Context, msg *domain.Message) error {
			cases.Add(1)
			return nil
		})
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, "iso.snapshots", func(ctx context.Context, msg *domain.Message) error {
			snapshots.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "iso.cases", []byte("c")))
		require.Eventually(t, func() bool { return cases.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Zero(t, snapshots.Load())
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "unsub.topic", []byte("1")))
		require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, bus.Publish(ctx, "unsub.topic", []byte("2")))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var a, b atomic.Int32
		_, _ = bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			a.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			b.Add(1)
			return nil
		})

		require.NoError(t, bus.Publish(ctx, "multi.topic", []byte("x")))
		require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, domain.TopicCaseDetected, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TopicCaseDetected, sub.Topic())
	})

	t.Run("PublishJSON", func(t *testing.T) {
		got := make(chan []byte, 1)
		_, err := bus.Subscribe(ctx, "json.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- msg.Payload
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, PublishJSON(ctx, bus, "json.topic", domain.FamilyUpdatedEvent{FamilyID: "F-7"}))
		select {
		case p := <-got:
			assert.JSONEq(t, `{"family_id":"F-7","scheme_codes":null,"use_ml":false}`, string(p))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	assert.NoError(t, bus.Ping(ctx))
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	assert.Error(t, bus.Publish(ctx, "close.topic", []byte("x")))
	assert.Error(t, bus.Ping(ctx))
	_, err = bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error { return nil })
	assert.Error(t, err)

	// Second close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	_, err := bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		require.NoError(t, bus.Publish(ctx, "load.topic", []byte("msg")))
	}
	require.Eventually(t, func() bool { return received.Load() == messageCount }, 5*time.Second, 10*time.Millisecond)
}

func TestNewBus(t *testing.T) {
	b, err := New(context.Background(), domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &ChannelBus{}, b)

	_, err = New(context.Background(), domain.EventBusConfig{Type: "kafka"})
	assert.Error(t, err)
}
