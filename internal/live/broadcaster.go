// The Live Broadcaster fans domain events out to every dashboard client
// subscribed to a server's live channel.

package live

import (
	"Paddock/internal/entity"
	"Paddock/internal/metrics"
	"Paddock/pkg/log"
	"sync"

	"github.com/rs/xid"
)

const subscriberBuffer = 64

// Broadcaster holds, per server identifier, the set of currently subscribed
// output channels. It knows nothing about authentication, only about
// channel lifetime.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[string]chan []byte
	logger log.Logger
}

func NewBroadcaster(logger log.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[string]chan []byte),
		logger: logger,
	}
}

// Subscribe adds one dashboard client to a server's live channel and
// returns its subscription ID together with the message channel.
func (b *Broadcaster) Subscribe(serverID string) (string, <-chan []byte) {
	id := xid.New().String()
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[serverID] == nil {
		b.subs[serverID] = make(map[string]chan []byte)
	}
	b.subs[serverID][id] = ch
	b.mu.Unlock()

	b.logger.WithServer(serverID).Info().Msgf("Added live subscriber %s", id)
	return id, ch
}

// Unsubscribe removes a client and closes its channel. Safe to call after
// the subscriber was already dropped for being slow.
func (b *Broadcaster) Unsubscribe(serverID, id string) {
	b.mu.Lock()
	ch, ok := b.subs[serverID][id]
	if ok {
		delete(b.subs[serverID], id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
		b.logger.WithServer(serverID).Info().Msgf("Removed live subscriber %s", id)
	}
}

// Publish serializes one domain event as a single-key message and writes it
// to every subscriber of the event's server. A subscriber whose channel is
// full is dropped on the spot so it can never block delivery to others.
func (b *Broadcaster) Publish(msg entity.LiveMessage) {
	data, mrerr := msg.Serialize()
	if mrerr != nil {
		b.logger.WithServer(msg.ServerID).Error().Err(mrerr).Msgf("Couldn't serialize live event %s", msg.Name)
		return
	}

	b.mu.Lock()
	var dropped []string
	for id, ch := range b.subs[msg.ServerID] {
		select {
		case ch <- data:
			metrics.BroadcastsTotal.Inc()
		default:
			delete(b.subs[msg.ServerID], id)
			close(ch)
			dropped = append(dropped, id)
			metrics.DroppedSubscribers.Inc()
		}
	}
	b.mu.Unlock()

	for _, id := range dropped {
		b.logger.WithServer(msg.ServerID).Warn().Msgf("Dropped slow live subscriber %s", id)
	}
}

// SubscriberCount reports how many clients watch a server right now.
func (b *Broadcaster) SubscriberCount(serverID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[serverID])
}
