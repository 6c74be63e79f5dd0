package bridgeprotocol

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
)

// PlayerEventData is the payload of a "player" event: a seat was taken or
// vacated.
type PlayerEventData struct {
	Position Position   `json:"position"`
	Player   *uuid.UUID `json:"player,omitempty"`
}

// DealEventData is the payload of a "deal" event: a new deal started.
type DealEventData struct {
	Deal          uuid.UUID     `json:"deal"`
	Opener        Position      `json:"opener"`
	Vulnerability Vulnerability `json:"vulnerability"`
}

// TurnEventData is the payload of a "turn" event: it is position's turn
// to act.
type TurnEventData struct {
	Deal     uuid.UUID `json:"deal"`
	Position Position  `json:"position"`
}

// CallEventData is the payload of a "call" event.
type CallEventData struct {
	Deal     uuid.UUID `json:"deal"`
	Position Position  `json:"position"`
	Call     Call      `json:"call"`
	Index    int       `json:"index"`
}

// BiddingEventData is the payload of a "bidding" event: the auction ended
// with a contract.
type BiddingEventData struct {
	Deal     uuid.UUID `json:"deal"`
	Declarer Position  `json:"declarer"`
	Contract Contract  `json:"contract"`
}

// PlayEventData is the payload of a "play" event.
type PlayEventData struct {
	Deal     uuid.UUID `json:"deal"`
	Position Position  `json:"position"`
	Card     CardType  `json:"card"`
	Trick    int       `json:"trick"`
	Index    int       `json:"index"`
}

// DummyEventData is the payload of a "dummy" event: the dummy's hand was
// revealed.
type DummyEventData struct {
	Deal     uuid.UUID  `json:"deal"`
	Position Position   `json:"position"`
	Cards    []CardType `json:"cards"`
}

// TrickEventData is the payload of a "trick" event: a trick was completed.
type TrickEventData struct {
	Deal   uuid.UUID `json:"deal"`
	Winner Position  `json:"winner"`
	Index  int       `json:"index"`
}

// DealEndEventData is the payload of a "dealend" event. Contract and
// TricksWon are nil for a passed-out deal.
type DealEndEventData struct {
	Deal      uuid.UUID       `json:"deal"`
	Contract  *Contract       `json:"contract,omitempty"`
	TricksWon *int            `json:"tricksWon,omitempty"`
	Result    DuplicateResult `json:"result"`
}

// Event is one message off the event channel: a tagged variant
// discriminated by Type. Exactly one of the typed fields is non-nil for a
// recognized Type; an unrecognized type still carries Game, Type and
// Counter with every typed field nil.
type Event struct {
	Game    uuid.UUID
	Type    string
	Counter uint64

	Player  *PlayerEventData
	Deal    *DealEventData
	Turn    *TurnEventData
	Call    *CallEventData
	Bidding *BiddingEventData
	Play    *PlayEventData
	Dummy   *DummyEventData
	Trick   *TrickEventData
	DealEnd *DealEndEventData
}

// transportError marks a failure reading from the underlying socket
// itself, as distinct from a malformed-but-otherwise-delivered message.
// Tolerant consumers (the generator mode, the demultiplexer pump) treat
// the two very differently: one is skipped, the other ends the pump.
type transportError struct{ err error }

func (e *transportError) Error() string { return "bridgeprotocol: transport closed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// EventReceiver reads and decodes messages off the event (SUB) channel.
type EventReceiver struct {
	sock wireSocket
}

// NewEventReceiver connects a SUB socket to endpoint, already subscribed
// to every event.
func NewEventReceiver(endpoint string, curveKeys *CurveKeys) (*EventReceiver, error) {
	sock, err := newTransportSocket(kindSub, endpoint, curveKeys)
	if err != nil {
		return nil, err
	}
	return &EventReceiver{sock: sock}, nil
}

// Close is idempotent.
func (r *EventReceiver) Close() error {
	return r.sock.close()
}

// ReceiveEvent blocks for and decodes exactly one event. A malformed
// message (bad tag, odd argument frames, undecodable field) yields
// InvalidMessage; a dead socket yields a transport error.
func (r *EventReceiver) ReceiveEvent() (*Event, error) {
	frames, err := r.sock.recv()
	if err != nil {
		return nil, &transportError{err: err}
	}
	return parseEvent(frames)
}

// Events runs ReceiveEvent in a loop and streams the results, absorbing
// and logging any InvalidMessage rather than stopping. The channel
// closes when the socket dies, or when ctx is done and the loop next has
// an event to hand over; a receive already in progress is not interrupted
// by ctx.
func (r *EventReceiver) Events(ctx context.Context) <-chan *Event {
	out := make(chan *Event)
	go func() {
		defer close(out)
		for {
			ev, err := r.ReceiveEvent()
			if err != nil {
				var te *transportError
				if errors.As(err, &te) {
					return
				}
				log.Printf("[BRIDGE] discarding malformed event: %v", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func parseEvent(frames [][]byte) (*Event, error) {
	if len(frames) < 1 {
		return nil, invalidMessage("empty event message")
	}
	tag := string(frames[0])
	gameStr, eventType, ok := strings.Cut(tag, ":")
	if !ok {
		return nil, invalidMessage("malformed event tag %q", tag)
	}
	gameID, err := uuid.Parse(gameStr)
	if err != nil {
		return nil, invalidMessage("malformed event tag %q: %v", tag, err)
	}

	kv, err := groupArguments(frames[1:])
	if err != nil {
		return nil, err
	}
	// Unlike the counter of a get reply, an event's counter may be absent
	// and defaults to zero.
	counter, err := optionalConvert[uint64](kv, "counter")
	if err != nil {
		return nil, err
	}

	ev := &Event{Game: gameID, Type: eventType}
	if counter != nil {
		ev.Counter = *counter
	}
	if err := populateEvent(ev, eventType, kv); err != nil {
		return nil, err
	}
	return ev, nil
}

func populateEvent(ev *Event, eventType string, kv map[string][]byte) error {
	switch eventType {
	case "player":
		position, err := safeConvert[Position](kv, "position")
		if err != nil {
			return err
		}
		player, err := optionalConvert[uuid.UUID](kv, "player")
		if err != nil {
			return err
		}
		ev.Player = &PlayerEventData{Position: position, Player: player}

	case "deal":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		opener, err := safeConvert[Position](kv, "opener")
		if err != nil {
			return err
		}
		vulnerability, err := safeConvert[Vulnerability](kv, "vulnerability")
		if err != nil {
			return err
		}
		ev.Deal = &DealEventData{Deal: deal, Opener: opener, Vulnerability: vulnerability}

	case "turn":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		position, err := safeConvert[Position](kv, "position")
		if err != nil {
			return err
		}
		ev.Turn = &TurnEventData{Deal: deal, Position: position}

	case "call":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		position, err := safeConvert[Position](kv, "position")
		if err != nil {
			return err
		}
		call, err := safeConvert[Call](kv, "call")
		if err != nil {
			return err
		}
		index, err := safeConvert[int](kv, "index")
		if err != nil {
			return err
		}
		ev.Call = &CallEventData{Deal: deal, Position: position, Call: call, Index: index}

	case "bidding":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		declarer, err := safeConvert[Position](kv, "declarer")
		if err != nil {
			return err
		}
		contract, err := safeConvert[Contract](kv, "contract")
		if err != nil {
			return err
		}
		ev.Bidding = &BiddingEventData{Deal: deal, Declarer: declarer, Contract: contract}

	case "play":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		position, err := safeConvert[Position](kv, "position")
		if err != nil {
			return err
		}
		card, err := safeConvert[CardType](kv, "card")
		if err != nil {
			return err
		}
		trick, err := safeConvert[int](kv, "trick")
		if err != nil {
			return err
		}
		index, err := safeConvert[int](kv, "index")
		if err != nil {
			return err
		}
		ev.Play = &PlayEventData{Deal: deal, Position: position, Card: card, Trick: trick, Index: index}

	case "dummy":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		position, err := safeConvert[Position](kv, "position")
		if err != nil {
			return err
		}
		cards, err := safeConvert[[]CardType](kv, "cards")
		if err != nil {
			return err
		}
		ev.Dummy = &DummyEventData{Deal: deal, Position: position, Cards: cards}

	case "trick":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		winner, err := safeConvert[Position](kv, "winner")
		if err != nil {
			return err
		}
		index, err := safeConvert[int](kv, "index")
		if err != nil {
			return err
		}
		ev.Trick = &TrickEventData{Deal: deal, Winner: winner, Index: index}

	case "dealend":
		deal, err := safeConvert[uuid.UUID](kv, "deal")
		if err != nil {
			return err
		}
		contract, err := optionalConvert[Contract](kv, "contract")
		if err != nil {
			return err
		}
		tricksWon, err := optionalConvert[int](kv, "tricksWon")
		if err != nil {
			return err
		}
		result, err := safeConvert[DuplicateResult](kv, "result")
		if err != nil {
			return err
		}
		ev.DealEnd = &DealEndEventData{Deal: deal, Contract: contract, TricksWon: tricksWon, Result: result}

	default:
		// Unrecognized type: surfaced generically with just Game/Type/Counter
		// set.
	}
	return nil
}
