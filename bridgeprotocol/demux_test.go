package bridgeprotocol

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func demuxContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func turnEvent(game, deal uuid.UUID, position Position, counter int) [][]byte {
	return eventFrames(game, "turn",
		"deal", fmt.Sprintf("%q", deal),
		"position", fmt.Sprintf("%q", position),
		"counter", fmt.Sprintf("%d", counter))
}

func TestDemultiplexerFanOut(t *testing.T) {
	g1 := uuid.New()
	g2 := uuid.New()
	deal := uuid.New()

	sock := newFakeSocket()
	defer sock.close()
	d := NewEventDemultiplexer(&EventReceiver{sock: sock})

	sub1 := d.Subscribe(g1)
	sub2 := d.Subscribe(g1)
	sub3 := d.Subscribe(g2)
	defer sub2.Unsubscribe()
	defer sub3.Unsubscribe()

	ctx := demuxContext(t)

	sock.incoming <- turnEvent(g1, deal, North, 1)
	sock.incoming <- eventFrames(g2, "call",
		"deal", fmt.Sprintf("%q", deal),
		"position", `"west"`,
		"call", `{"kind":"pass"}`,
		"index", "0",
		"counter", "1")
	sock.incoming <- eventFrames(g1, "play",
		"deal", fmt.Sprintf("%q", deal),
		"position", `"north"`,
		"card", `{"rank":"queen","suit":"hearts"}`,
		"trick", "0",
		"index", "0",
		"counter", "2")

	// Both G1 subscribers see turn then play, in that order.
	for _, sub := range []*Subscriber{sub1, sub2} {
		ev, err := sub.GetEvent(ctx)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if ev.Game != g1 || ev.Type != "turn" {
			t.Errorf("first event = %s %s, want %s turn", ev.Game, ev.Type, g1)
		}
		ev, err = sub.GetEvent(ctx)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if ev.Game != g1 || ev.Type != "play" {
			t.Errorf("second event = %s %s, want %s play", ev.Game, ev.Type, g1)
		}
	}

	// The G2 subscriber sees only its call.
	ev, err := sub3.GetEvent(ctx)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Game != g2 || ev.Type != "call" {
		t.Errorf("g2 event = %s %s, want %s call", ev.Game, ev.Type, g2)
	}

	// Unsubscribing one G1 subscriber must not affect the other.
	sub1.Unsubscribe()
	if _, err := sub1.GetEvent(ctx); !errors.Is(err, ErrSubscriberClosed) {
		t.Errorf("unsubscribed GetEvent err = %v, want ErrSubscriberClosed", err)
	}

	sock.incoming <- turnEvent(g1, deal, South, 3)
	ev, err = sub2.GetEvent(ctx)
	if err != nil {
		t.Fatalf("GetEvent after sibling unsubscribe: %v", err)
	}
	if ev.Type != "turn" || ev.Turn == nil || ev.Turn.Position != South {
		t.Errorf("event = %+v", ev)
	}
}

func TestDemultiplexerSkipsMalformedEvents(t *testing.T) {
	game := uuid.New()
	deal := uuid.New()

	sock := newFakeSocket()
	defer sock.close()
	d := NewEventDemultiplexer(&EventReceiver{sock: sock})

	sub := d.Subscribe(game)
	defer sub.Unsubscribe()

	sock.incoming <- [][]byte{[]byte("invalid-tag")}
	sock.incoming <- turnEvent(game, deal, East, 1)

	ev, err := sub.GetEvent(demuxContext(t))
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Type != "turn" {
		t.Errorf("event type = %s, want turn", ev.Type)
	}
}

func TestDemultiplexerPumpStopsWhenEmpty(t *testing.T) {
	game := uuid.New()

	sock := newFakeSocket()
	defer sock.close()
	d := NewEventDemultiplexer(&EventReceiver{sock: sock})

	sub := d.Subscribe(game)
	sub.Unsubscribe()

	// The pump exits after its current receive completes; feed it one
	// message so it wakes up and notices the empty map.
	sock.incoming <- turnEvent(game, uuid.New(), North, 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		running := d.pumpRunning
		d.mu.Unlock()
		if !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pump still running after last unsubscribe")
		}
		time.Sleep(time.Millisecond)
	}

	// Subscribing again restarts the pump.
	sub2 := d.Subscribe(game)
	defer sub2.Unsubscribe()
	sock.incoming <- turnEvent(game, uuid.New(), East, 2)
	if _, err := sub2.GetEvent(demuxContext(t)); err != nil {
		t.Fatalf("GetEvent after pump restart: %v", err)
	}
}

func TestDemultiplexerSocketDeathEndsPump(t *testing.T) {
	game := uuid.New()

	sock := newFakeSocket()
	d := NewEventDemultiplexer(&EventReceiver{sock: sock})
	sub := d.Subscribe(game)
	defer sub.Unsubscribe()

	sock.close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		running := d.pumpRunning
		d.mu.Unlock()
		if !running {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("pump survived socket death")
		}
		time.Sleep(time.Millisecond)
	}
}
