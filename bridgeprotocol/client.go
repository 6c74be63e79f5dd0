package bridgeprotocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const protocolVersion = "0.1"

// wireSocket is the subset of transportSocket the request/reply core
// needs; it exists so tests can inject a fake transport without touching
// a real ZeroMQ socket.
type wireSocket interface {
	send(frames [][]byte) error
	recv() ([][]byte, error)
	close() error
}

type replyResult struct {
	args map[string][]byte
	err  error
}

// Client is a bridge protocol client: the tagged request/reply core plus
// the typed command API layered on top of one DEALER socket.
//
// A Client is not safe for concurrent use of its internal receive pump by
// more than one goroutine implicitly -- but its exported methods are:
// every command may be issued concurrently from any number of goroutines,
// and replies are routed purely by tag regardless of arrival order.
type Client struct {
	sock wireSocket

	mu          sync.Mutex
	counter     uint16
	pending     map[uint16]chan replyResult
	pumpRunning bool

	handshakeMu      sync.Mutex
	handshakePending atomic.Bool
}

// CreateClient connects to endpoint and performs the initial handshake.
// The client is closed and an error returned if the handshake fails.
func CreateClient(ctx context.Context, endpoint string, curveKeys *CurveKeys) (*Client, error) {
	sock, err := newTransportSocket(kindDealer, endpoint, curveKeys)
	if err != nil {
		return nil, err
	}
	c := newClient(sock)
	if err := c.Hello(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newClient(sock wireSocket) *Client {
	return &Client{
		sock:    sock,
		pending: make(map[uint16]chan replyResult),
	}
}

// Close closes the underlying socket. Idempotent.
func (c *Client) Close() error {
	return c.sock.close()
}

// Hello performs (or waits out a concurrent) handshake with the server.
// Only one bridgehlo is ever in flight per connection regardless of how
// many goroutines call Hello concurrently.
func (c *Client) Hello(ctx context.Context) error {
	c.handshakePending.Store(true)
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	if !c.handshakePending.Load() {
		return nil
	}
	_, err := c.command(ctx, "bridgehlo", map[string]interface{}{
		"version": protocolVersion,
		"role":    "client",
	})
	if err != nil {
		return err
	}
	c.handshakePending.Store(false)
	return nil
}

// withHandshakeRetry runs fn, and if it fails with ErrUnknownClient, runs
// exactly one Hello and retries fn once more. A second UNK in a row
// surfaces to the caller rather than looping.
func withHandshakeRetry[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil || !errors.Is(err, ErrUnknownClient) {
		return result, err
	}
	if err := c.Hello(ctx); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

// command sends one command and waits for its reply, demultiplexing by
// tag so that any number of commands may be outstanding concurrently and
// resolve in any order.
func (c *Client) command(ctx context.Context, cmd string, args map[string]interface{}) (map[string][]byte, error) {
	argFrames, err := flattenArguments(args)
	if err != nil {
		return nil, fmt.Errorf("bridgeprotocol: encoding arguments for %s: %w", cmd, err)
	}

	tag, ch := c.registerPending()

	frames := make([][]byte, 0, 3+len(argFrames))
	frames = append(frames, []byte{}, tagBytes(tag), []byte(cmd))
	frames = append(frames, argFrames...)

	if err := c.sock.send(frames); err != nil {
		c.unregisterPending(tag)
		return nil, fmt.Errorf("bridgeprotocol: sending %s: %w", cmd, err)
	}

	select {
	case res := <-ch:
		return res.args, res.err
	case <-ctx.Done():
		// The awaiter removes itself; any reply that arrives afterwards
		// finds no pending entry and is dropped as an unknown tag.
		c.unregisterPending(tag)
		return nil, ctx.Err()
	}
}

func (c *Client) registerPending() (uint16, chan replyResult) {
	ch := make(chan replyResult, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := c.counter
	c.counter++
	c.pending[tag] = ch
	if !c.pumpRunning {
		c.pumpRunning = true
		go c.pump()
	}
	return tag, ch
}

func (c *Client) unregisterPending(tag uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tag)
}

// pump is the background receive task routing replies to their awaiters.
// It runs for as long as any command is outstanding and is respawned on
// demand by registerPending.
func (c *Client) pump() {
	for {
		frames, err := c.sock.recv()
		if err != nil {
			c.failAllPending(fmt.Errorf("bridgeprotocol: receiving reply: %w", err))
			return
		}
		c.dispatchReply(frames)

		c.mu.Lock()
		empty := len(c.pending) == 0
		if empty {
			c.pumpRunning = false
		}
		c.mu.Unlock()
		if empty {
			return
		}
	}
}

// dispatchReply routes one received reply to its awaiter, or drops it.
func (c *Client) dispatchReply(frames [][]byte) {
	if len(frames) < 2 {
		log.Printf("[BRIDGE] discarding reply: only %d frames", len(frames))
		return
	}
	tag := tagFromBytes(frames[1])

	c.mu.Lock()
	ch, ok := c.pending[tag]
	if ok {
		delete(c.pending, tag)
	}
	c.mu.Unlock()
	if !ok {
		log.Printf("[BRIDGE] discarding reply with unknown tag %d", tag)
		return
	}

	if len(frames) < 3 {
		ch <- replyResult{err: invalidMessage("missing status frame")}
		return
	}
	status := string(frames[2])
	if !statusIsOK(status) {
		ch <- replyResult{err: newCommandFailure(statusErrorCode(status))}
		return
	}
	args, err := groupArguments(frames[3:])
	if err != nil {
		ch <- replyResult{err: err}
		return
	}
	ch <- replyResult{args: args}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tag, ch := range c.pending {
		ch <- replyResult{err: err}
		delete(c.pending, tag)
	}
	c.pumpRunning = false
}

func tagBytes(tag uint16) []byte {
	return []byte{byte(tag), byte(tag >> 8)}
}

func tagFromBytes(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return uint16(b[0]) | uint16(b[1])<<8
}

// safeConvert decodes reply[key] into T, turning any decoding failure
// into an InvalidMessage rather than propagating a raw JSON error.
func safeConvert[T any](reply map[string][]byte, key string) (T, error) {
	var zero T
	raw, ok := reply[key]
	if !ok {
		return zero, invalidMessage("missing field %q", key)
	}
	var out T
	if err := decodeValue(raw, &out); err != nil {
		return zero, invalidMessage("decoding field %q: %v", key, err)
	}
	return out, nil
}

// optionalConvert is safeConvert for a field the reply may simply omit,
// in which case it returns (nil, nil) rather than an error.
func optionalConvert[T any](reply map[string][]byte, key string) (*T, error) {
	raw, ok := reply[key]
	if !ok {
		return nil, nil
	}
	var out T
	if err := decodeValue(raw, &out); err != nil {
		return nil, invalidMessage("decoding field %q: %v", key, err)
	}
	return &out, nil
}

// Game sends the "game" command, creating a game (with the id gameID when
// one is given) and returns its id. If a game with that id already exists
// the server replies ERR:AE, returned as ErrAlreadyExists.
func (c *Client) Game(ctx context.Context, gameID *uuid.UUID, args map[string]interface{}) (uuid.UUID, error) {
	return withHandshakeRetry(ctx, c, func(ctx context.Context) (uuid.UUID, error) {
		reply, err := c.command(ctx, "game", map[string]interface{}{
			"game": gameID,
			"args": args,
		})
		if err != nil {
			return uuid.UUID{}, err
		}
		return safeConvert[uuid.UUID](reply, "game")
	})
}

// JoinResult is the outcome of a successful Join.
type JoinResult struct {
	Game     uuid.UUID
	Position Position
}

// Join sends the "join" command.
func (c *Client) Join(ctx context.Context, gameID, player *uuid.UUID, position *Position) (JoinResult, error) {
	return withHandshakeRetry(ctx, c, func(ctx context.Context) (JoinResult, error) {
		reply, err := c.command(ctx, "join", map[string]interface{}{
			"game":     gameID,
			"player":   player,
			"position": position,
		})
		if err != nil {
			return JoinResult{}, err
		}
		id, err := safeConvert[uuid.UUID](reply, "game")
		if err != nil {
			return JoinResult{}, err
		}
		pos, err := safeConvert[Position](reply, "position")
		if err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Game: id, Position: pos}, nil
	})
}

// Leave sends the "leave" command. The returned position is nil if the
// server didn't report one.
func (c *Client) Leave(ctx context.Context, gameID, player uuid.UUID) (*Position, error) {
	return withHandshakeRetry(ctx, c, func(ctx context.Context) (*Position, error) {
		reply, err := c.command(ctx, "leave", map[string]interface{}{
			"game":   gameID,
			"player": player,
		})
		if err != nil {
			return nil, err
		}
		return optionalConvert[Position](reply, "position")
	})
}

// GetGame fetches the full game snapshot (pubstate/privstate merged into
// a Deal, self state, results, and seat occupancy) along with the
// server's observable-change counter.
func (c *Client) GetGame(ctx context.Context, gameID uuid.UUID, player *uuid.UUID) (*Game, uint64, error) {
	type result struct {
		game    *Game
		counter uint64
	}
	r, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (result, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"game":   gameID,
			"player": player,
			"get":    []string{"pubstate", "privstate", "self", "results", "players"},
		})
		if err != nil {
			return result{}, err
		}
		deal, err := buildDeal(reply)
		if err != nil {
			return result{}, err
		}
		self, err := safeConvert[PlayerState](reply, "self")
		if err != nil {
			return result{}, err
		}
		results, err := convertDealResults(reply)
		if err != nil {
			return result{}, err
		}
		players, err := convertPlayers(reply)
		if err != nil {
			return result{}, err
		}
		counter, err := safeConvert[uint64](reply, "counter")
		if err != nil {
			return result{}, err
		}
		return result{
			game: &Game{
				ID:      gameID,
				Deal:    deal,
				Self:    self,
				Results: results,
				Players: players,
			},
			counter: counter,
		}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.game, r.counter, nil
}

// GetGameDeal fetches only the merged deal view and counter, without the
// rest of the game snapshot.
func (c *Client) GetGameDeal(ctx context.Context, gameID uuid.UUID, player *uuid.UUID) (*Deal, uint64, error) {
	type result struct {
		deal    *Deal
		counter uint64
	}
	r, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (result, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"game":   gameID,
			"player": player,
			"get":    []string{"pubstate", "privstate"},
		})
		if err != nil {
			return result{}, err
		}
		deal, err := buildDeal(reply)
		if err != nil {
			return result{}, err
		}
		counter, err := safeConvert[uint64](reply, "counter")
		if err != nil {
			return result{}, err
		}
		return result{deal: deal, counter: counter}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.deal, r.counter, nil
}

// GetDeal fetches a deal directly by its own id, without game context.
func (c *Client) GetDeal(ctx context.Context, dealID uuid.UUID) (*Deal, error) {
	return withHandshakeRetry(ctx, c, func(ctx context.Context) (*Deal, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"deal": dealID,
		})
		if err != nil {
			return nil, err
		}
		deal, err := safeConvert[Deal](reply, "deal")
		if err != nil {
			return nil, err
		}
		return &deal, nil
	})
}

// GetSelf fetches just the calling player's private state and counter.
func (c *Client) GetSelf(ctx context.Context, gameID uuid.UUID, player *uuid.UUID) (*PlayerState, uint64, error) {
	type result struct {
		self    PlayerState
		counter uint64
	}
	r, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (result, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"game":   gameID,
			"player": player,
			"get":    []string{"self"},
		})
		if err != nil {
			return result{}, err
		}
		self, err := safeConvert[PlayerState](reply, "self")
		if err != nil {
			return result{}, err
		}
		counter, err := safeConvert[uint64](reply, "counter")
		if err != nil {
			return result{}, err
		}
		return result{self: self, counter: counter}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &r.self, r.counter, nil
}

// GetResults fetches the accumulated deal results for a game.
func (c *Client) GetResults(ctx context.Context, gameID uuid.UUID) ([]DealResult, uint64, error) {
	type result struct {
		results []DealResult
		counter uint64
	}
	r, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (result, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"game": gameID,
			"get":  []string{"results"},
		})
		if err != nil {
			return result{}, err
		}
		results, err := convertDealResults(reply)
		if err != nil {
			return result{}, err
		}
		counter, err := safeConvert[uint64](reply, "counter")
		if err != nil {
			return result{}, err
		}
		return result{results: results, counter: counter}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.results, r.counter, nil
}

// GetPlayers fetches the seat occupancy of a game.
func (c *Client) GetPlayers(ctx context.Context, gameID uuid.UUID) (PlayersInGame, uint64, error) {
	type result struct {
		players PlayersInGame
		counter uint64
	}
	r, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (result, error) {
		reply, err := c.command(ctx, "get", map[string]interface{}{
			"game": gameID,
			"get":  []string{"players"},
		})
		if err != nil {
			return result{}, err
		}
		players, err := convertPlayers(reply)
		if err != nil {
			return result{}, err
		}
		counter, err := safeConvert[uint64](reply, "counter")
		if err != nil {
			return result{}, err
		}
		return result{players: players, counter: counter}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.players, r.counter, nil
}

// Call sends the "call" command. call must be a valid Call.
func (c *Client) Call(ctx context.Context, gameID uuid.UUID, player *uuid.UUID, call Call) error {
	if err := call.Validate(); err != nil {
		return err
	}
	_, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (struct{}, error) {
		_, err := c.command(ctx, "call", map[string]interface{}{
			"game":   gameID,
			"player": player,
			"call":   call,
		})
		return struct{}{}, err
	})
	return err
}

// Play sends the "play" command.
func (c *Client) Play(ctx context.Context, gameID uuid.UUID, player *uuid.UUID, card CardType) error {
	_, err := withHandshakeRetry(ctx, c, func(ctx context.Context) (struct{}, error) {
		_, err := c.command(ctx, "play", map[string]interface{}{
			"game":   gameID,
			"player": player,
			"card":   card,
		})
		return struct{}{}, err
	})
	return err
}

// buildDeal reconstructs a Deal from a get-family reply's pubstate and
// privstate fields. A null or absent pubstate means there is no current
// deal (returns nil, nil); a missing privstate is treated as an empty
// overlay.
func buildDeal(reply map[string][]byte) (*Deal, error) {
	pubRaw, ok := reply["pubstate"]
	if !ok {
		return nil, nil
	}
	var pub interface{}
	if err := json.Unmarshal(pubRaw, &pub); err != nil {
		return nil, invalidMessage("decoding field %q: %v", "pubstate", err)
	}
	if pub == nil {
		return nil, nil
	}

	var priv interface{} = map[string]interface{}{}
	if privRaw, ok := reply["privstate"]; ok {
		if err := json.Unmarshal(privRaw, &priv); err != nil {
			return nil, invalidMessage("decoding field %q: %v", "privstate", err)
		}
	}

	merged := MergePatch(pub, priv)
	mergedObj, ok := merged.(map[string]interface{})
	if !ok {
		return nil, invalidMessage("merged deal state is not an object")
	}
	dealID, ok := mergedObj["deal"]
	if !ok {
		return nil, invalidMessage("merged deal state missing %q", "deal")
	}
	delete(mergedObj, "deal")
	mergedObj["id"] = dealID

	raw, err := json.Marshal(mergedObj)
	if err != nil {
		return nil, invalidMessage("re-encoding merged deal state: %v", err)
	}
	var deal Deal
	if err := json.Unmarshal(raw, &deal); err != nil {
		return nil, invalidMessage("decoding merged deal state: %v", err)
	}
	return &deal, nil
}

type wireDealResult struct {
	Deal   uuid.UUID        `json:"deal"`
	Result *DuplicateResult `json:"result"`
}

func convertDealResults(reply map[string][]byte) ([]DealResult, error) {
	raw, ok := reply["results"]
	if !ok {
		return nil, invalidMessage("missing field %q", "results")
	}
	var wire []wireDealResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, invalidMessage("decoding field %q: %v", "results", err)
	}
	out := make([]DealResult, len(wire))
	for i, w := range wire {
		out[i] = DealResult{DealID: w.Deal, Result: w.Result}
	}
	return out, nil
}

func convertPlayers(reply map[string][]byte) (PlayersInGame, error) {
	raw, ok := reply["players"]
	if !ok {
		return PlayersInGame{}, invalidMessage("missing field %q", "players")
	}
	var wire map[Position]*uuid.UUID
	if err := json.Unmarshal(raw, &wire); err != nil {
		return PlayersInGame{}, invalidMessage("decoding field %q: %v", "players", err)
	}
	return PlayersInGame{
		North: wire[North],
		East:  wire[East],
		South: wire[South],
		West:  wire[West],
	}, nil
}
