// Live Broadcaster tests in Paddock.

package live

import (
	"Paddock/internal/entity"
	"Paddock/pkg/log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during live tests.
var logger log.Logger = log.New("test")

func receive(t *testing.T, ch <-chan []byte) []byte {
	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no live message arrived")
		return nil
	}
}

func TestPublishFansOutPerServer(t *testing.T) {
	b := NewBroadcaster(logger)
	_, one := b.Subscribe("tm-test-01")
	_, two := b.Subscribe("tm-test-01")
	_, other := b.Subscribe("tm-test-02")

	msg := entity.LiveMessage{ServerID: "tm-test-01", Name: entity.EventGiveUp, Payload: "abc"}
	b.Publish(msg)

	want, _ := msg.Serialize()
	assert.JSONEq(t, string(want), string(receive(t, one)))
	assert.JSONEq(t, string(want), string(receive(t, two)))
	// The other server's channel stays silent.
	assert.Empty(t, other)
}

func TestSerializedShapeIsSingleKey(t *testing.T) {
	b := NewBroadcaster(logger)
	_, ch := b.Subscribe("tm-test-01")

	b.Publish(entity.LiveMessage{ServerID: "tm-test-01", Name: entity.EventBeginRound, Payload: 3})
	assert.JSONEq(t, `{"beginRound":3}`, string(receive(t, ch)))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(logger)
	id, ch := b.Subscribe("tm-test-01")
	_, healthy := b.Subscribe("tm-test-01")

	// Fill the slow subscriber's buffer without reading, then overflow it.
	for i := 0; i <= subscriberBuffer; i++ {
		b.Publish(entity.LiveMessage{ServerID: "tm-test-01", Name: entity.EventBeginRound, Payload: i})
		// Keep the healthy subscriber drained.
		receive(t, healthy)
	}

	assert.Equal(t, 1, b.SubscriberCount("tm-test-01"))

	// The dropped channel was closed after its buffered backlog.
	drained := 0
	for range ch {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)

	// Unsubscribing after the drop must not panic on the closed channel.
	b.Unsubscribe("tm-test-01", id)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(logger)
	id, ch := b.Subscribe("tm-test-01")
	assert.Equal(t, 1, b.SubscriberCount("tm-test-01"))

	b.Unsubscribe("tm-test-01", id)
	assert.Equal(t, 0, b.SubscriberCount("tm-test-01"))
	_, open := <-ch
	assert.False(t, open)

	// Publishing with nobody listening is a no-op.
	b.Publish(entity.LiveMessage{ServerID: "tm-test-01", Name: entity.EventGiveUp, Payload: "abc"})
}
