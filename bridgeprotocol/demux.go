package bridgeprotocol

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// subscriberQueueSize bounds a Subscriber's event backlog. A slow
// consumer drops events rather than blocking the shared pump or other
// subscribers.
const subscriberQueueSize = 64

// ErrSubscriberClosed is returned by Subscriber.GetEvent once the
// subscriber has been unsubscribed and its queue drained.
var ErrSubscriberClosed = errors.New("bridgeprotocol: subscriber closed")

// Subscriber is a per-game handle into the EventDemultiplexer's fan-out.
// Unsubscribe releases it, removing it from the demultiplexer's map.
type Subscriber struct {
	game   uuid.UUID
	events chan *Event
	demux  *EventDemultiplexer
}

// Game is the identifier this subscriber watches.
func (s *Subscriber) Game() uuid.UUID { return s.game }

// GetEvent waits for the next event for this subscriber's game, or for
// ctx to be done.
func (s *Subscriber) GetEvent(ctx context.Context) (*Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, ErrSubscriberClosed
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events exposes the subscriber's queue directly, for callers that
// prefer a range loop to repeated GetEvent calls.
func (s *Subscriber) Events() <-chan *Event { return s.events }

// Unsubscribe removes this subscriber from its demultiplexer. Safe to
// call more than once.
func (s *Subscriber) Unsubscribe() {
	s.demux.unsubscribe(s)
}

// EventDemultiplexer fans the single stream off one EventReceiver out to
// any number of per-game Subscribers. A single background pump is
// shared by all subscribers and its lifetime tracks the non-emptiness of
// the subscriber map, not any individual subscriber's lifetime.
type EventDemultiplexer struct {
	receiver *EventReceiver

	mu          sync.Mutex
	subscribers map[uuid.UUID][]*Subscriber
	pumpRunning bool
}

// NewEventDemultiplexer wraps receiver. The demultiplexer takes no
// ownership of it beyond reading events; closing receiver is the
// caller's responsibility.
func NewEventDemultiplexer(receiver *EventReceiver) *EventDemultiplexer {
	return &EventDemultiplexer{
		receiver:    receiver,
		subscribers: make(map[uuid.UUID][]*Subscriber),
	}
}

// Subscribe attaches a new Subscriber to gameID, starting the shared pump
// if this is the first subscriber of any game.
func (d *EventDemultiplexer) Subscribe(gameID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		game:   gameID,
		events: make(chan *Event, subscriberQueueSize),
		demux:  d,
	}

	d.mu.Lock()
	wasEmpty := len(d.subscribers) == 0
	d.subscribers[gameID] = append(d.subscribers[gameID], sub)
	if wasEmpty && !d.pumpRunning {
		d.pumpRunning = true
		go d.pump()
	}
	d.mu.Unlock()

	return sub
}

func (d *EventDemultiplexer) unsubscribe(sub *Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subscribers[sub.game]
	found := false
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		// Already unsubscribed: its channel is closed.
		return
	}
	if len(list) == 0 {
		delete(d.subscribers, sub.game)
	} else {
		d.subscribers[sub.game] = list
	}
	close(sub.events)
}

// pump is the single background task shared by every subscriber. It
// receives one event at a time and is respawned on demand by Subscribe,
// mirroring the respawn-on-demand rule of the request/reply core's pump.
func (d *EventDemultiplexer) pump() {
	for {
		ev, err := d.receiver.ReceiveEvent()
		if err != nil {
			var te *transportError
			if errors.As(err, &te) {
				// Fatal: the socket is gone, not just one bad message.
				d.mu.Lock()
				d.pumpRunning = false
				d.mu.Unlock()
				return
			}
			log.Printf("[BRIDGE] event demultiplexer: %v", err)
		} else {
			d.deliver(ev)
		}

		d.mu.Lock()
		empty := len(d.subscribers) == 0
		if empty {
			d.pumpRunning = false
		}
		d.mu.Unlock()
		if empty {
			return
		}
	}
}

// deliver holds the subscriber-map lock for the whole fan-out, not just a
// snapshot: Unsubscribe closes a subscriber's channel under the same
// lock, and a send to an already-closed channel panics, so the two must
// never interleave.
func (d *EventDemultiplexer) deliver(ev *Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.subscribers[ev.Game] {
		select {
		case s.events <- ev:
		default:
			log.Printf("[BRIDGE] dropping event for game %s: subscriber %p queue full", ev.Game, s)
		}
	}
}
