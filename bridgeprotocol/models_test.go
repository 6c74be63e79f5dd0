package bridgeprotocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCallValidate(t *testing.T) {
	tests := []struct {
		name    string
		call    Call
		wantErr bool
	}{
		{"pass", NewPass(), false},
		{"double", NewDouble(), false},
		{"redouble", NewRedouble(), false},
		{"bid", NewBidCall(Bid{Strain: Spades, Level: 1}), false},
		{"bid without bid", Call{Kind: CallBid}, true},
		{"pass with bid", Call{Kind: CallPass, Bid: &Bid{Strain: Clubs, Level: 1}}, true},
		{"unknown kind", Call{Kind: "alert"}, true},
		{"bid with bad level", NewBidCall(Bid{Strain: Hearts, Level: 8}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDomainValue) {
				t.Errorf("err = %v does not wrap ErrInvalidDomainValue", err)
			}
		})
	}
}

func TestBidValidate(t *testing.T) {
	for level := 1; level <= 7; level++ {
		if err := (Bid{Strain: Notrump, Level: level}).Validate(); err != nil {
			t.Errorf("level %d rejected: %v", level, err)
		}
	}
	for _, level := range []int{0, -1, 8} {
		if err := (Bid{Strain: Notrump, Level: level}).Validate(); err == nil {
			t.Errorf("level %d accepted", level)
		}
	}
}

func TestDuplicateResultValidate(t *testing.T) {
	ns := NorthSouth
	if err := (DuplicateResult{Partnership: &ns, Score: 420}).Validate(); err != nil {
		t.Errorf("valid result rejected: %v", err)
	}
	// Passed out: no partnership, zero score.
	if err := (DuplicateResult{Score: 0}).Validate(); err != nil {
		t.Errorf("passed-out result rejected: %v", err)
	}
	if err := (DuplicateResult{Score: -50}).Validate(); err == nil {
		t.Error("negative score accepted")
	}
}

func TestTrickJSONRoundTrip(t *testing.T) {
	winner := West
	trick := Trick{
		Cards: []PositionCard{
			{Position: North, Card: CardType{Rank: Ace, Suit: SuitSpades}},
			{Position: East, Card: CardType{Rank: Rank2, Suit: SuitSpades}},
		},
		Winner: &winner,
	}
	raw, err := json.Marshal(trick)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Trick
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Cards) != 2 || back.Winner == nil || *back.Winner != West {
		t.Errorf("round trip = %+v", back)
	}

	// A closed trick has no cards at all, distinct from an empty list.
	var closed Trick
	if err := json.Unmarshal([]byte(`{"winner":"north"}`), &closed); err != nil {
		t.Fatalf("unmarshal closed trick: %v", err)
	}
	if closed.Cards != nil {
		t.Errorf("closed trick cards = %v, want nil", closed.Cards)
	}
}
