package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

func sectionEvent(id string, sections ...string) *ctdf.Event {
	return &ctdf.Event{ID: id, Type: ctdf.EventTypeConflictDetected, Sections: sections}
}

func receive(t *testing.T, channel <-chan *ctdf.Event) *ctdf.Event {
	t.Helper()

	select {
	case event, ok := <-channel:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	return nil
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	channel, unsubscribe := bus.SubscribeChannel("ordered", nil, 0)
	defer unsubscribe()

	for _, id := range []string{"a", "b", "c", "d"} {
		bus.Publish(sectionEvent(id, "JUC-LDH"))
	}

	var received []string
	for range 4 {
		received = append(received, receive(t, channel).ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, received)
}

func TestSectionFilter(t *testing.T) {
	assert.Nil(t, SectionFilter(""))

	bus := NewBus()
	defer bus.Close()

	channel, unsubscribe := bus.SubscribeChannel("ldh", SectionFilter("LDH-UMB"), 10)
	defer unsubscribe()

	bus.Publish(
		sectionEvent("elsewhere", "ASR-JUC"),
		sectionEvent("here", "JUC-LDH", "LDH-UMB"),
	)

	assert.Equal(t, "here", receive(t, channel).ID)

	select {
	case event := <-channel:
		assert.Failf(t, "unexpected event", "received %s", event.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFailedDeliveriesAreRetried(t *testing.T) {
	bus := NewBus()
	bus.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	}
	defer bus.Close()

	var attempts atomic.Int32
	var mutex sync.Mutex
	var delivered []string
	done := make(chan struct{})

	unsubscribe := bus.Subscribe("flaky", nil, func(_ context.Context, event *ctdf.Event) error {
		if event.ID == "first" && attempts.Add(1) < 3 {
			return errors.New("sink unavailable")
		}

		mutex.Lock()
		delivered = append(delivered, event.ID)
		count := len(delivered)
		mutex.Unlock()

		if count == 2 {
			close(done)
		}
		return nil
	})
	defer unsubscribe()

	bus.Publish(sectionEvent("first"), sectionEvent("second"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for delivery")
	}

	assert.Equal(t, int32(3), attempts.Load())
	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []string{"first", "second"}, delivered)
}

func TestDeliveryGivesUpAfterRetries(t *testing.T) {
	bus := NewBus()
	bus.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}
	defer bus.Close()

	var attempts atomic.Int32
	received := make(chan string, 1)

	unsubscribe := bus.Subscribe("broken", nil, func(_ context.Context, event *ctdf.Event) error {
		if event.ID == "poison" {
			attempts.Add(1)
			return errors.New("rejected")
		}
		received <- event.ID
		return nil
	})
	defer unsubscribe()

	bus.Publish(sectionEvent("poison"), sectionEvent("healthy"))

	select {
	case id := <-received:
		assert.Equal(t, "healthy", id)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for delivery")
	}
	assert.Equal(t, int32(3), attempts.Load())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	channel, unsubscribe := bus.SubscribeChannel("short-lived", nil, 1)
	unsubscribe()

	select {
	case _, ok := <-channel:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "channel was not closed")
	}

	// publishing after the subscriber left must not block or panic
	bus.Publish(sectionEvent("late"))
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	release := make(chan struct{})
	unsubscribe := bus.Subscribe("slow", nil, func(ctx context.Context, _ *ctdf.Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	defer unsubscribe()

	channel, unsubscribeFast := bus.SubscribeChannel("fast", nil, 10)
	defer unsubscribeFast()

	bus.Publish(sectionEvent("one"), sectionEvent("two"))

	assert.Equal(t, "one", receive(t, channel).ID)
	assert.Equal(t, "two", receive(t, channel).ID)

	close(release)
}
