// Package bridgeprotocol implements the client side of the bridge server's
// wire protocol: framed request/reply over a ZeroMQ DEALER socket, event
// fan-out over a SUB socket, and the domain types shared by both.
package bridgeprotocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Position is a seat at the table.
type Position string

const (
	North Position = "north"
	East  Position = "east"
	South Position = "south"
	West  Position = "west"
)

// Partnership is one of the two pairs of positions playing together.
type Partnership string

const (
	NorthSouth Partnership = "northSouth"
	EastWest   Partnership = "eastWest"
)

// Strain is the trump suit of a contract, or notrump.
type Strain string

const (
	Clubs    Strain = "clubs"
	Diamonds Strain = "diamonds"
	Hearts   Strain = "hearts"
	Spades   Strain = "spades"
	Notrump  Strain = "notrump"
)

// Suit is a card suit (no notrump).
type Suit string

const (
	SuitClubs    Suit = "clubs"
	SuitDiamonds Suit = "diamonds"
	SuitHearts   Suit = "hearts"
	SuitSpades   Suit = "spades"
)

// Rank is a card rank.
type Rank string

const (
	Rank2  Rank = "2"
	Rank3  Rank = "3"
	Rank4  Rank = "4"
	Rank5  Rank = "5"
	Rank6  Rank = "6"
	Rank7  Rank = "7"
	Rank8  Rank = "8"
	Rank9  Rank = "9"
	Rank10 Rank = "10"
	Jack   Rank = "jack"
	Queen  Rank = "queen"
	King   Rank = "king"
	Ace    Rank = "ace"
)

// CardType identifies a playing card.
type CardType struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// Bid is a strain and level, e.g. 3 notrump.
type Bid struct {
	Strain Strain `json:"strain"`
	Level  int    `json:"level"`
}

// Validate enforces the level range 1..7.
func (b Bid) Validate() error {
	if b.Level < 1 || b.Level > 7 {
		return fmt.Errorf("%w: bid level %d out of range [1,7]", ErrInvalidDomainValue, b.Level)
	}
	return nil
}

// CallKind discriminates the shape of a Call.
type CallKind string

const (
	CallPass     CallKind = "pass"
	CallDouble   CallKind = "double"
	CallRedouble CallKind = "redouble"
	CallBid      CallKind = "bid"
)

// Call is a tagged union: a pass/double/redouble carries no Bid, a bid
// call always does.
type Call struct {
	Kind CallKind `json:"kind"`
	Bid  *Bid     `json:"bid,omitempty"`
}

// Validate enforces the Call shape invariant.
func (c Call) Validate() error {
	switch c.Kind {
	case CallBid:
		if c.Bid == nil {
			return fmt.Errorf("%w: bid call without a bid", ErrInvalidDomainValue)
		}
		return c.Bid.Validate()
	case CallPass, CallDouble, CallRedouble:
		if c.Bid != nil {
			return fmt.Errorf("%w: non-bid call %q carries a bid", ErrInvalidDomainValue, c.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown call kind %q", ErrInvalidDomainValue, c.Kind)
	}
}

// NewPass, NewDouble, NewRedouble and NewBidCall are convenience
// constructors that always produce a Call of the right shape. NewBidCall
// does not check the bid level; Validate rejects a level outside 1..7.
func NewPass() Call     { return Call{Kind: CallPass} }
func NewDouble() Call   { return Call{Kind: CallDouble} }
func NewRedouble() Call { return Call{Kind: CallRedouble} }

func NewBidCall(bid Bid) Call {
	b := bid
	return Call{Kind: CallBid, Bid: &b}
}

// Doubling is the state of a contract's doubling.
type Doubling string

const (
	Undoubled Doubling = "undoubled"
	Doubled   Doubling = "doubled"
	Redoubled Doubling = "redoubled"
)

// Contract is the final bid of an auction, with its doubling state.
type Contract struct {
	Bid      Bid      `json:"bid"`
	Doubling Doubling `json:"doubling"`
}

// PositionCall pairs a position with the call it made.
type PositionCall struct {
	Position Position `json:"position"`
	Call     Call     `json:"call"`
}

// PositionCard pairs a position with the card it played.
type PositionCard struct {
	Position Position `json:"position"`
	Card     CardType `json:"card"`
}

// Trick is one round of card play. Cards is nil when the trick is closed
// and its contents withheld from this viewer.
type Trick struct {
	Cards  []PositionCard `json:"cards"`
	Winner *Position      `json:"winner,omitempty"`
}

// Vulnerability records which partnerships are vulnerable.
type Vulnerability struct {
	NorthSouth bool `json:"northSouth"`
	EastWest   bool `json:"eastWest"`
}

// CardsInHands is, for each position, the list of cards held, with nil
// entries for cards whose identity is unknown to this viewer.
type CardsInHands map[Position][]*CardType

// DealPhase is the lifecycle stage of a deal.
type DealPhase string

const (
	PhaseDealing DealPhase = "dealing"
	PhaseBidding DealPhase = "bidding"
	PhasePlaying DealPhase = "playing"
	PhaseEnded   DealPhase = "ended"
)

// Deal is one hand of bridge as seen from one viewer (public state merged
// with that viewer's private overlay; see MergePatch).
type Deal struct {
	ID              uuid.UUID      `json:"id"`
	Phase           DealPhase      `json:"phase"`
	PositionInTurn  *Position      `json:"positionInTurn,omitempty"`
	Calls           []PositionCall `json:"calls"`
	Declarer        *Position      `json:"declarer,omitempty"`
	Contract        *Contract      `json:"contract,omitempty"`
	Cards           CardsInHands   `json:"cards"`
	Tricks          []Trick        `json:"tricks"`
	Vulnerability   Vulnerability  `json:"vulnerability"`
}

// PlayerState is one player's private view of their standing in a game.
type PlayerState struct {
	Position      *Position  `json:"position,omitempty"`
	AllowedCalls  []Call     `json:"allowedCalls"`
	AllowedCards  []CardType `json:"allowedCards"`
}

// DuplicateResult is a partnership's score for a deal; a passed-out deal
// has no partnership and a score of zero.
type DuplicateResult struct {
	Partnership *Partnership `json:"partnership,omitempty"`
	Score       int          `json:"score"`
}

// Validate enforces the score invariant.
func (r DuplicateResult) Validate() error {
	if r.Score < 0 {
		return fmt.Errorf("%w: negative score %d", ErrInvalidDomainValue, r.Score)
	}
	return nil
}

// DealResult accumulates, per game, the scored result of one deal.
type DealResult struct {
	DealID uuid.UUID        `json:"deal_id"`
	Result *DuplicateResult `json:"result,omitempty"`
}

// PlayersInGame maps each seat to the opaque player id occupying it, if any.
type PlayersInGame struct {
	North *uuid.UUID `json:"north,omitempty"`
	East  *uuid.UUID `json:"east,omitempty"`
	South *uuid.UUID `json:"south,omitempty"`
	West  *uuid.UUID `json:"west,omitempty"`
}

// Game is one table as seen by one player: its current deal (if any), that
// player's own private state, accumulated results, and seat occupancy.
type Game struct {
	ID      uuid.UUID     `json:"id"`
	Deal    *Deal         `json:"deal,omitempty"`
	Self    PlayerState   `json:"self"`
	Results []DealResult  `json:"results"`
	Players PlayersInGame `json:"players"`
}
