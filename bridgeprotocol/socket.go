package bridgeprotocol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// ErrSocketClosed is returned by send and recv after close.
var ErrSocketClosed = errors.New("bridgeprotocol: socket closed")

// CurveKeys are the Z85-encoded keys needed to establish a CURVE-secured
// connection to the bridge server. All three fields must be set
// together; a zero-value CurveKeys means "no CURVE".
type CurveKeys struct {
	ServerKey string
	PublicKey string
	SecretKey string
}

func (k CurveKeys) empty() bool {
	return k == CurveKeys{}
}

// validate enforces the all-or-none rule: a partial key set is a
// configuration error, not something to fall back from silently.
func (k CurveKeys) validate() error {
	if k.empty() {
		return nil
	}
	for name, key := range map[string]string{
		"server key": k.ServerKey,
		"public key": k.PublicKey,
		"secret key": k.SecretKey,
	} {
		if key == "" {
			return fmt.Errorf("bridgeprotocol: curve %s missing; all of serverkey, publickey and secretkey must be set", name)
		}
		if len(key) != 40 {
			return fmt.Errorf("bridgeprotocol: curve %s is %d characters, want 40 (Z85-encoded 32 bytes)", name, len(key))
		}
	}
	return nil
}

// socketKind selects the underlying ZeroMQ socket type a transportSocket
// wraps: DEALER for the command channel, SUB (pre-subscribed to the
// empty prefix) for the event channel.
type socketKind int

const (
	kindDealer socketKind = iota
	kindSub
)

// recvPollInterval is how long recv sleeps between polls of the socket.
const recvPollInterval = 5 * time.Millisecond

// transportSocket owns exactly one ZeroMQ socket. libzmq sockets are not
// safe for concurrent use from multiple threads, so every operation takes
// mu; recv polls non-blockingly under the lock and sleeps outside it, so
// concurrent sends are never starved.
type transportSocket struct {
	mu     sync.Mutex
	sock   *zmq.Socket
	poller *zmq.Poller
	closed bool
}

// newTransportSocket creates, optionally secures, and connects a socket of
// the given kind to endpoint. Connection establishment itself is lazy
// (ZeroMQ semantics); failures surface only on send/recv.
func newTransportSocket(kind socketKind, endpoint string, curveKeys *CurveKeys) (*transportSocket, error) {
	var zmqType zmq.Type
	switch kind {
	case kindDealer:
		zmqType = zmq.DEALER
	case kindSub:
		zmqType = zmq.SUB
	default:
		return nil, fmt.Errorf("bridgeprotocol: unknown socket kind %d", kind)
	}

	sock, err := zmq.NewSocket(zmqType)
	if err != nil {
		return nil, fmt.Errorf("bridgeprotocol: creating socket: %w", err)
	}

	if curveKeys != nil && !curveKeys.empty() {
		if err := curveKeys.validate(); err != nil {
			sock.Close()
			return nil, err
		}
		// The Z85 strings go straight to libzmq, which decodes them.
		if err := sock.ClientAuthCurve(curveKeys.ServerKey, curveKeys.PublicKey, curveKeys.SecretKey); err != nil {
			sock.Close()
			return nil, fmt.Errorf("bridgeprotocol: configuring CURVE: %w", err)
		}
	}

	if kind == kindSub {
		if err := sock.SetSubscribe(""); err != nil {
			sock.Close()
			return nil, fmt.Errorf("bridgeprotocol: subscribe: %w", err)
		}
	}

	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridgeprotocol: connect %s: %w", endpoint, err)
	}

	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)
	return &transportSocket{sock: sock, poller: poller}, nil
}

// send transmits a multi-frame message. It never blocks on a full ZeroMQ
// queue; a full queue is surfaced as an error like any other I/O failure.
func (t *transportSocket) send(frames [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrSocketClosed
	}
	if _, err := t.sock.SendMessageDontwait(frames); err != nil {
		return err
	}
	return nil
}

// recv blocks for the next multi-frame message.
func (t *transportSocket) recv() ([][]byte, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, ErrSocketClosed
		}
		polled, err := t.poller.Poll(0)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		if len(polled) > 0 {
			frames, err := t.sock.RecvMessageBytes(0)
			t.mu.Unlock()
			return frames, err
		}
		t.mu.Unlock()
		time.Sleep(recvPollInterval)
	}
}

// close is idempotent.
func (t *transportSocket) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.sock.SetLinger(0)
	return t.sock.Close()
}

var tcpEndpointRE = regexp.MustCompile(`^tcp://(.+):(\d+)$`)

// DeriveEventEndpoint derives the event (SUB) endpoint from the control
// (DEALER) endpoint by incrementing the port, the convention the bridge
// server follows. It rejects anything that isn't a bare TCP
// endpoint.
func DeriveEventEndpoint(controlEndpoint string) (string, error) {
	m := tcpEndpointRE.FindStringSubmatch(controlEndpoint)
	if m == nil {
		return "", fmt.Errorf("bridgeprotocol: %q is not a tcp:// endpoint", controlEndpoint)
	}
	host, portStr := m[1], m[2]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("bridgeprotocol: %q has a non-numeric port: %w", controlEndpoint, err)
	}
	return fmt.Sprintf("tcp://%s:%d", host, port+1), nil
}
