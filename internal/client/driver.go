// Package client implements the reconnecting connection driver used by the
// terminal client. The driver owns at most one live transport at a time and
// schedules reconnect attempts with capped exponential backoff.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/banuni/haxor-mk2/internal/chat/protocol"
	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/websocket"
)

// State describes the driver's connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateStopped is terminal: the retry budget is exhausted or the
	// driver was closed. A fresh Connect call resets the budget.
	StateStopped State = "stopped"
)

const (
	defaultMaxAttempts     = 5
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
)

// DialFunc opens one transport. Tests inject in-memory pipes here.
type DialFunc func() (io.ReadWriteCloser, error)

// Option configures a Driver.
type Option func(*Driver)

// WithDial overrides how the driver opens a transport.
func WithDial(dial DialFunc) Option {
	return func(d *Driver) { d.dial = dial }
}

// WithMaxAttempts overrides the consecutive-failure budget.
func WithMaxAttempts(n int) Option {
	return func(d *Driver) { d.maxAttempts = n }
}

// WithOnFrame registers the inbound frame callback. It runs on the driver's
// read goroutine.
func WithOnFrame(fn func(protocol.Frame)) Option {
	return func(d *Driver) { d.onFrame = fn }
}

// WithOnStateChange registers a state transition callback. The error is
// non-nil only for the terminal stop after the retry budget is exhausted.
func WithOnStateChange(fn func(State, error)) Option {
	return func(d *Driver) { d.onState = fn }
}

// WithBackoffIntervals overrides the retry schedule bounds.
func WithBackoffIntervals(initial, max time.Duration) Option {
	return func(d *Driver) {
		d.policy.InitialInterval = initial
		d.policy.MaxInterval = max
	}
}

// Driver maintains one connection to the server, transparently redialing
// after transport loss. Send fails fast while no connection is open; it
// never queues.
type Driver struct {
	dial        DialFunc
	maxAttempts int
	onFrame     func(protocol.Frame)
	onState     func(State, error)
	policy      *backoff.ExponentialBackOff

	mu       sync.Mutex
	state    State
	conn     io.ReadWriteCloser
	encoder  *json.Encoder
	attempts int
	gen      int
	closed   bool
}

// New creates a driver for the given websocket URL.
func New(url string, opts ...Option) *Driver {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultInitialInterval
	policy.MaxInterval = defaultMaxInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	d := &Driver{
		dial:        dialWebsocket(url),
		maxAttempts: defaultMaxAttempts,
		policy:      policy,
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func dialWebsocket(url string) DialFunc {
	return func() (io.ReadWriteCloser, error) {
		conn, err := websocket.Dial(url, "", "http://localhost/")
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Connect starts the connection loop. It is a no-op while a connection is
// open or being opened. Calling Connect after a terminal stop resets the
// retry budget and tries again.
func (d *Driver) Connect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.state == StateConnected || d.state == StateConnecting {
		return
	}
	d.attempts = 0
	d.policy.Reset()
	d.gen++
	d.setStateLocked(StateConnecting, nil)
	go d.run(d.gen)
}

// run owns the dial-read-retry loop for one Connect call. A newer generation
// supersedes it. Every cycle, whether the dial failed or an open connection
// dropped, charges the retry budget and waits out the backoff before the
// next dial; the budget is restored only by a connection that delivered at
// least one frame.
func (d *Driver) run(gen int) {
	for {
		conn, err := d.dial()

		d.mu.Lock()
		if d.closed || gen != d.gen {
			d.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err == nil {
			d.conn = conn
			d.encoder = json.NewEncoder(conn)
			d.setStateLocked(StateConnected, nil)
			d.mu.Unlock()

			delivered := d.readLoop(gen, conn)

			d.mu.Lock()
			if d.closed || gen != d.gen {
				d.mu.Unlock()
				return
			}
			d.conn = nil
			d.encoder = nil
			d.setStateLocked(StateDisconnected, nil)
			if delivered {
				d.attempts = 0
				d.policy.Reset()
			}
			err = errors.New("connection lost")
		}

		d.attempts++
		attempts := d.attempts
		if attempts >= d.maxAttempts {
			d.setStateLocked(StateStopped, fmt.Errorf("giving up after %d attempts: %w", attempts, err))
			d.mu.Unlock()
			return
		}
		wait := d.policy.NextBackOff()
		d.setStateLocked(StateConnecting, nil)
		d.mu.Unlock()

		log.Printf("client: connect attempt %d/%d failed, retrying in %s: %v", attempts, d.maxAttempts, wait, err)
		time.Sleep(wait)
	}
}

// readLoop decodes inbound frames until the transport fails or closes. It
// reports whether the connection delivered any frame at all; a transport
// that dies before the server's opening snapshot never proved itself and
// keeps charging the retry budget.
func (d *Driver) readLoop(gen int, conn io.ReadWriteCloser) (delivered bool) {
	decoder := json.NewDecoder(conn)
	for {
		var frame protocol.Frame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("client: read: %v", err)
			}
			_ = conn.Close()
			return delivered
		}
		d.mu.Lock()
		stale := d.closed || gen != d.gen
		fn := d.onFrame
		d.mu.Unlock()
		if stale {
			_ = conn.Close()
			return delivered
		}
		delivered = true
		if fn != nil {
			fn(frame)
		}
	}
}

// Send encodes one frame onto the live connection. It fails fast with
// NOT_CONNECTED while no connection is open.
func (d *Driver) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateConnected || d.encoder == nil {
		return apperrors.New(apperrors.CodeNotConnected, "no open connection")
	}
	if err := d.encoder.Encode(protocol.Frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// State reports the current connection state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close tears down the driver. Any live connection is closed and no further
// reconnect attempts are made.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.gen++
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
		d.encoder = nil
	}
	d.setStateLocked(StateStopped, nil)
}

// setStateLocked updates the state and fires the callback. Callers hold
// d.mu, so the callback must not call back into the driver.
func (d *Driver) setStateLocked(state State, terminal error) {
	if d.state == state && terminal == nil {
		return
	}
	d.state = state
	if d.onState != nil {
		d.onState(state, terminal)
	}
}
