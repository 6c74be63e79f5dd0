package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jasujm/bridgeapp/bridgeprotocol"
	"github.com/jasujm/bridgeapp/internal/redis"
)

// Message is the JSON shape of one game event as relayed to browsers and
// over the Redis channel: the envelope fields plus the typed payload of
// the variant, flattened under "data". Unknown event types relay with
// data omitted.
type Message struct {
	Game    uuid.UUID   `json:"game"`
	Type    string      `json:"type"`
	Counter uint64      `json:"counter"`
	Data    interface{} `json:"data,omitempty"`
}

// Encode serializes a protocol event into the relayed JSON form.
func Encode(ev *bridgeprotocol.Event) ([]byte, error) {
	msg := Message{Game: ev.Game, Type: ev.Type, Counter: ev.Counter}
	switch {
	case ev.Player != nil:
		msg.Data = ev.Player
	case ev.Deal != nil:
		msg.Data = ev.Deal
	case ev.Turn != nil:
		msg.Data = ev.Turn
	case ev.Call != nil:
		msg.Data = ev.Call
	case ev.Bidding != nil:
		msg.Data = ev.Bidding
	case ev.Play != nil:
		msg.Data = ev.Play
	case ev.Dummy != nil:
		msg.Data = ev.Dummy
	case ev.Trick != nil:
		msg.Data = ev.Trick
	case ev.DealEnd != nil:
		msg.Data = ev.DealEnd
	}
	return json.Marshal(msg)
}

// gameRelay is the per-game pump: one demultiplexer subscription shared by
// every local websocket watching that game, republished over Redis so
// connections on other frontend replicas see the same stream.
type gameRelay struct {
	refs   int
	sub    *bridgeprotocol.Subscriber
	cancel context.CancelFunc
}

// Relay bridges the per-game event fan-out of the protocol layer onto
// Redis pub/sub channels. Acquire/Release are reference counted per game:
// the first watcher of a game starts its pump, the last one stops it.
type Relay struct {
	demux *bridgeprotocol.EventDemultiplexer
	cache *redis.Client

	mu    sync.Mutex
	games map[uuid.UUID]*gameRelay
}

func NewRelay(demux *bridgeprotocol.EventDemultiplexer, cache *redis.Client) *Relay {
	return &Relay{
		demux: demux,
		cache: cache,
		games: make(map[uuid.UUID]*gameRelay),
	}
}

// Acquire registers interest in a game's events, starting the pump for
// that game if this is its first watcher.
func (r *Relay) Acquire(gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.games[gameID]; ok {
		g.refs++
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &gameRelay{
		refs:   1,
		sub:    r.demux.Subscribe(gameID),
		cancel: cancel,
	}
	r.games[gameID] = g
	go r.pump(ctx, gameID, g.sub)
}

// Release drops one watcher of a game, stopping and unsubscribing its pump
// when no watcher remains.
func (r *Relay) Release(gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[gameID]
	if !ok {
		return
	}
	g.refs--
	if g.refs > 0 {
		return
	}
	delete(r.games, gameID)
	g.cancel()
	g.sub.Unsubscribe()
}

func (r *Relay) pump(ctx context.Context, gameID uuid.UUID, sub *bridgeprotocol.Subscriber) {
	for {
		ev, err := sub.GetEvent(ctx)
		if err != nil {
			// Cancelled by Release, or the subscriber was closed underneath
			// us; either way this game's relay is done.
			return
		}
		payload, err := Encode(ev)
		if err != nil {
			log.Printf("[EVENTS] encoding event for game %s: %v", gameID, err)
			continue
		}
		if err := r.cache.PublishGameEvent(ctx, gameID.String(), payload); err != nil {
			log.Printf("[EVENTS] publishing event for game %s: %v", gameID, err)
		}
	}
}
