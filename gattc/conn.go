// Package gattc implements the GATT client protocol engine over the ATT
// transport: a per-connection state machine that issues client requests,
// parses server responses, drives multi-round procedures (discovery, long
// read, long write, MTU exchange) and dispatches server-initiated
// notifications and indications to registered applications.
//
// The engine owns no I/O. It talks to an L2CAP-like byte channel through the
// Transport interface and is driven by three serialized event sources:
// application API calls, Deliver from the transport, and timer expirations.
package gattc

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

const (
	// DefaultMTU is the ATT payload size every connection starts at.
	DefaultMTU = 23
	// MaxMTU bounds what a client may request in an MTU exchange.
	MaxMTU = 517
	// MaxAttrLen is the ceiling on any reassembled or written attribute
	// value. Oversize reassembly is rejected, never grown.
	MaxAttrLen = 4096

	defaultRespTimeout   = 30 * time.Second
	defaultIndAckTimeout = 30 * time.Second
)

// IndicationOverflowPolicy decides what happens when an indication arrives
// while a previous one is still unacknowledged by the applications.
type IndicationOverflowPolicy uint8

const (
	// IndicationOverflowReset logs the violation and resets the pending
	// count, accepting the new indication.
	IndicationOverflowReset IndicationOverflowPolicy = iota
	// IndicationOverflowDisconnect additionally invokes the disconnect
	// hook; the new indication is still delivered.
	IndicationOverflowDisconnect
)

// Option configures a Conn.
type Option func(*Conn)

// WithResponseTimeout overrides the 30 s response timer.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Conn) { c.respTimeout = d }
}

// WithIndicationAckTimeout overrides the 30 s indication-ack timer.
func WithIndicationAckTimeout(d time.Duration) Option {
	return func(c *Conn) { c.indAckTimeout = d }
}

// WithEncryptStatus installs the link encryption status accessor supplied by
// the security collaborator.
func WithEncryptStatus(f func() EncryptStatus) Option {
	return func(c *Conn) { c.encryptStatus = f }
}

// WithSigner installs the signer used for Signed Write Commands.
func WithSigner(s Signer) Option {
	return func(c *Conn) { c.signer = s }
}

// WithIndicationOverflowPolicy selects the overlapping-indication policy.
func WithIndicationOverflowPolicy(p IndicationOverflowPolicy) Option {
	return func(c *Conn) { c.indOverflow = p }
}

// WithDisconnect installs the hook invoked when the engine decides the link
// should go down (indication overflow under the disconnect policy, response
// timeout). Teardown itself happens outside the core.
func WithDisconnect(f func()) Option {
	return func(c *Conn) { c.disconnect = f }
}

// Conn is the per-connection client state: the negotiated payload size, the
// command queue, the live procedure set and the registered applications.
// All three event sources serialize on its mutex; completion callbacks run
// after the lock is released so applications may re-enter the API freely.
type Conn struct {
	mu sync.Mutex

	index uint8
	peer  string
	tr    Transport
	tag   string

	payloadSize   uint16
	mtuConfigured bool // ATT allows one MTU exchange per connection

	cmdQ  []*command
	procs []*procedure

	apps     map[AppID]*App
	appOrder []AppID

	indCount   int
	indAckTmr  *time.Timer
	indPending uint16 // handle of the indication awaiting app acks

	encryptStatus func() EncryptStatus
	signer        Signer
	disconnect    func()

	respTimeout   time.Duration
	indAckTimeout time.Duration
	indOverflow   IndicationOverflowPolicy

	closed bool

	callbacks []func()
}

// NewConn creates the client engine for one connection. index becomes the
// connection part of every ConnID; peer is only used in log lines.
func NewConn(index uint8, peer string, tr Transport, opts ...Option) *Conn {
	c := &Conn{
		index:         index,
		peer:          peer,
		tr:            tr,
		tag:           fmt.Sprintf("gattc-%d", index),
		payloadSize:   DefaultMTU,
		apps:          make(map[AppID]*App),
		encryptStatus: func() EncryptStatus { return EncryptNone },
		respTimeout:   defaultRespTimeout,
		indAckTimeout: defaultIndAckTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterApp adds an application to the connection. Events fan out to apps
// in registration order.
func (c *Conn) RegisterApp(id AppID, app *App) error {
	if app == nil {
		return fmt.Errorf("gattc: nil app")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.apps[id]; ok {
		return fmt.Errorf("gattc: app %d already registered", id)
	}
	c.apps[id] = app
	c.appOrder = append(c.appOrder, id)
	return nil
}

// UnregisterApp removes an application. Its live procedures are cancelled.
func (c *Conn) UnregisterApp(id AppID) {
	c.dispatch(func() {
		if _, ok := c.apps[id]; !ok {
			return
		}
		c.cancelLocked(id)
		delete(c.apps, id)
		for i, a := range c.appOrder {
			if a == id {
				c.appOrder = append(c.appOrder[:i], c.appOrder[i+1:]...)
				break
			}
		}
	})
}

// PayloadSize returns the current negotiated ATT payload size.
func (c *Conn) PayloadSize() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadSize
}

// dispatch runs f under the connection lock, then fires any completion
// callbacks f queued. Every event entry point funnels through here so the
// engine stays single-threaded while applications can call back in.
func (c *Conn) dispatch(f func()) {
	c.mu.Lock()
	f()
	cbs := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *Conn) enqueueCallback(cb func()) {
	c.callbacks = append(c.callbacks, cb)
}

// Close tears the connection down: every live procedure ends with
// StatusLinkLost and all state is dropped. Deliver becomes a no-op.
func (c *Conn) Close() {
	c.dispatch(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.stopIndAckTimer()
		for len(c.procs) > 0 {
			c.endOperation(c.procs[0], StatusLinkLost, Completion{})
		}
		c.cmdQ = nil
		c.indCount = 0
	})
}

// Cancel abandons the given application's oldest live procedure. The
// procedure completes with StatusCancelled; a response still in flight will
// be drained without a callback and the queue advances past it.
func (c *Conn) Cancel(app AppID) {
	c.dispatch(func() { c.cancelLocked(app) })
}

func (c *Conn) cancelLocked(app AppID) {
	for _, p := range c.procs {
		if p.app != app || p.done {
			continue
		}
		// an unsent command can leave the queue immediately; a sent one
		// stays so the router can pair and drain its response
		for i, cmd := range c.cmdQ {
			if cmd.proc == p && cmd.toSend {
				c.cmdQ = append(c.cmdQ[:i], c.cmdQ[i+1:]...)
				break
			}
		}
		c.endOperation(p, StatusCancelled, Completion{})
		return
	}
}

// response timer

func (c *Conn) startRespTimer(p *procedure) {
	c.stopRespTimer(p)
	p.respTimer = time.AfterFunc(c.respTimeout, func() {
		c.dispatch(func() { c.onRespTimeout(p) })
	})
}

func (c *Conn) stopRespTimer(p *procedure) {
	if p.respTimer != nil {
		p.respTimer.Stop()
		p.respTimer = nil
	}
}

func (c *Conn) onRespTimeout(p *procedure) {
	if c.closed || p.done {
		return
	}
	logger.Error(c.tag, "response timeout, op=%d", p.op)
	// drop the outstanding command so the queue can move again
	if len(c.cmdQ) > 0 && c.cmdQ[0].proc == p && !c.cmdQ[0].toSend {
		c.cmdQ = c.cmdQ[1:]
	}
	c.endOperation(p, StatusTimeout, Completion{})
	if c.disconnect != nil {
		c.enqueueCallback(c.disconnect)
	}
	c.sendNext()
}

// indication-ack timer

func (c *Conn) startIndAckTimer() {
	c.stopIndAckTimer()
	c.indAckTmr = time.AfterFunc(c.indAckTimeout, func() {
		c.dispatch(func() { c.onIndAckTimeout() })
	})
}

func (c *Conn) stopIndAckTimer() {
	if c.indAckTmr != nil {
		c.indAckTmr.Stop()
		c.indAckTmr = nil
	}
}

func (c *Conn) onIndAckTimeout() {
	if c.closed || c.indCount == 0 {
		return
	}
	logger.Error(c.tag, "indication ack timeout, confirming on behalf of %d app(s)", c.indCount)
	c.indCount = 0
	c.sendConfirmation()
}

func (c *Conn) sendConfirmation() {
	conf := &att.HandleValueConfirmation{}
	if st := c.tr.Send(conf.Encode()); st == TxFailed {
		logger.Error(c.tag, "failed to send handle value confirmation")
	}
}
