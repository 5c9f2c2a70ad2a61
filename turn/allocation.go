// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package turn

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
	"github.com/pkg/errors"

	"github.com/rtcware/natcore/stun"
)

// State is an Allocation's lifecycle state.
type State int32

// Allocation states.
const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// DefaultLifetime is the Lifetime requested on Allocate when Config.Lifetime
// is zero.
const DefaultLifetime = 600 * time.Second

// refreshMargin is subtracted from the granted lifetime to schedule the
// next Refresh with headroom before the allocation actually expires.
const refreshMargin = 60 * time.Second

const maxDatagramSize = 1600

// Config configures an Allocation.
type Config struct {
	ServerAddr *net.UDPAddr
	Username   string
	Password   string
	Lifetime   time.Duration // defaults to DefaultLifetime

	// Net is the abstract datagram transport used to open the local
	// socket; a nil Net defaults to stdnet.NewNet() (a thin wrapper over
	// the standard library). Substitute pion/transport/v3's vnet.Net for
	// deterministic network-simulation tests.
	Net transport.Net

	LoggerFactory logging.LoggerFactory

	// OnConnected fires once an Allocate succeeds and the relayed
	// address is known.
	OnConnected func()
	// OnDisconnected fires when the allocation drops to Unconnected,
	// whether from a fatal protocol error or the server's answer to
	// Disconnect. Close does not fire it.
	OnDisconnected func(err error)
	// OnData delivers a payload received over a bound channel, along
	// with the peer address it came from.
	OnData func(payload []byte, peer *net.UDPAddr)
}

type pendingRequest struct {
	method  stun.Method
	request requestSpec
}

// requestSpec is the replayable shape of an outbound request: enough to
// rebuild it with a fresh transaction id and, if available, updated
// long-term credentials. Kept as a value per the "Authenticated retry"
// design note so replay never races other state changes.
type requestSpec struct {
	method stun.Method
	attrs  []stun.Setter
}

// Allocation is a single long-lived TURN session. All exported methods
// are safe to call from any goroutine; state mutation itself happens on
// a single internal loop goroutine that serializes everything.
type Allocation struct {
	cfg  Config
	conn net.PacketConn
	log  logging.LeveledLogger

	events  chan func()
	closeCh chan struct{}
	done    chan struct{}

	state atomic.Int32

	// fields below are only ever touched on the events loop goroutine.
	username string
	password string
	realm    string
	nonce    string
	key      stun.MessageIntegrity

	relayedAddr *net.UDPAddr
	lifetime    time.Duration
	refreshTmr  *time.Timer

	pending map[stun.TransactionID]*pendingRequest

	channels
}

// NewAllocation opens the local socket and returns an Allocation in
// StateUnconnected. Call Connect to begin the Allocate handshake.
func NewAllocation(cfg Config) (*Allocation, error) {
	if cfg.ServerAddr == nil {
		return nil, errors.New("turn: Config.ServerAddr is required")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Net == nil {
		n, err := stdnet.NewNet()
		if err != nil {
			return nil, errors.Wrap(err, "turn: failed to create network")
		}
		cfg.Net = n
	}

	conn, err := cfg.Net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, errors.Wrap(err, "turn: failed to open local socket")
	}

	a := &Allocation{
		cfg:      cfg,
		conn:     conn,
		log:      cfg.LoggerFactory.NewLogger("turn"),
		events:   make(chan func(), 16),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		username: cfg.Username,
		password: cfg.Password,
		lifetime: cfg.Lifetime,
		pending:  make(map[stun.TransactionID]*pendingRequest),
		channels: newChannels(),
	}
	a.state.Store(int32(StateUnconnected))

	go a.loop()
	go a.readLoop()

	return a, nil
}

// State returns the current allocation state. Safe for concurrent use.
func (a *Allocation) State() State {
	return State(a.state.Load())
}

// RelayedAddress returns the allocated relayed transport address, or nil
// if none has been granted yet.
func (a *Allocation) RelayedAddress() *net.UDPAddr {
	var out *net.UDPAddr
	a.syncDo(func() { out = a.relayedAddr })
	return out
}

// Connect emits the initial Allocate request. It does not block for the
// response; success/failure surface via OnConnected/OnDisconnected.
func (a *Allocation) Connect() {
	a.post(func() {
		a.state.Store(int32(StateConnecting))
		a.sendRequest(requestSpec{
			method: stun.MethodAllocate,
			attrs: []stun.Setter{
				stun.Lifetime(uint32(a.lifetime.Seconds())),
				stun.RequestedTransport{Protocol: stun.ProtoUDP},
			},
		})
	})
}

// Disconnect emits Refresh with Lifetime=0 and transitions to
// StateClosing; StateUnconnected follows once the server answers, with
// success or an error.
func (a *Allocation) Disconnect() {
	a.post(func() {
		a.state.Store(int32(StateClosing))
		a.sendRequest(requestSpec{
			method: stun.MethodRefresh,
			attrs:  []stun.Setter{stun.Lifetime(0)},
		})
	})
}

// Close releases the local socket unconditionally; best-effort cleanup
// only — it does not wait for the server's Refresh(0) response.
func (a *Allocation) Close() error {
	select {
	case <-a.closeCh:
	default:
		close(a.closeCh)
	}
	err := a.conn.Close()
	<-a.done
	return err
}

// Send routes payload to peer, binding a TURN channel on first use. It
// does not block on the ChannelBind response, so early writes on an
// unacknowledged channel may be dropped server-side.
func (a *Allocation) Send(payload []byte, peer *net.UDPAddr) error {
	errCh := make(chan error, 1)
	a.post(func() {
		errCh <- a.sendChannelData(payload, peer)
	})
	select {
	case err := <-errCh:
		return err
	case <-a.closeCh:
		return errNotConnected
	}
}

// post enqueues fn to run on the events loop. Fire-and-forget.
func (a *Allocation) post(fn func()) {
	select {
	case a.events <- fn:
	case <-a.closeCh:
	}
}

// syncDo runs fn on the events loop and waits for it to finish, for
// read-only accessors that need a consistent snapshot.
func (a *Allocation) syncDo(fn func()) {
	done := make(chan struct{})
	a.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-a.closeCh:
	}
}

func (a *Allocation) loop() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.events:
			fn()
		case <-a.closeCh:
			a.teardown()
			return
		}
	}
}

func (a *Allocation) teardown() {
	if a.refreshTmr != nil {
		a.refreshTmr.Stop()
	}
}

func (a *Allocation) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := a.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		a.post(func() { a.handleDatagram(data) })
	}
}

func (a *Allocation) sendRequest(spec requestSpec) stun.TransactionID {
	setters := append([]stun.Setter{}, spec.attrs...)
	if a.realm != "" {
		setters = append(setters,
			stun.Username(a.username),
			stun.Realm(a.realm),
			stun.Nonce(a.nonce),
		)
	}
	if len(a.key) > 0 {
		setters = append(setters, a.key)
	}
	setters = append(setters, stun.Fingerprint{})

	msg, err := stun.Build(stun.ClassRequest, spec.method, setters...)
	if err != nil {
		a.log.Warnf("failed to build %s request: %v", spec.method, err)
		return stun.TransactionID{}
	}

	a.pending[msg.TransactionID] = &pendingRequest{method: spec.method, request: spec}
	if _, err := a.conn.WriteTo(msg.Encode(), a.cfg.ServerAddr); err != nil {
		a.log.Warnf("failed to send %s request: %v", spec.method, err)
	}
	return msg.TransactionID
}

func (a *Allocation) handleDatagram(data []byte) {
	if len(data) >= 4 && data[0]&0xC0 == 0x40 {
		a.handleChannelData(data)
		return
	}

	msg, err := stun.Decode(data, nil)
	if err != nil {
		a.log.Debugf("turn: dropping malformed packet: %v", err)
		return
	}

	req, ok := a.pending[msg.TransactionID]
	if !ok {
		a.log.Debugf("turn: response for unknown transaction id")
		return
	}

	switch msg.Type.Class {
	case stun.ClassSuccessResponse:
		delete(a.pending, msg.TransactionID)
		a.handleSuccess(req, msg)
	case stun.ClassErrorResponse:
		delete(a.pending, msg.TransactionID)
		a.handleError(req, msg)
	default:
		a.log.Debugf("turn: unexpected message class %s for %s", msg.Type.Class, req.method)
	}
}

func (a *Allocation) handleSuccess(req *pendingRequest, msg *stun.Message) {
	switch req.method {
	case stun.MethodAllocate:
		a.handleAllocateSuccess(msg)
	case stun.MethodRefresh:
		a.handleRefreshSuccess(msg)
	case stun.MethodChannelBind:
		if ch, ok := a.pendingBinds[msg.TransactionID]; ok {
			ch.bound = true
			delete(a.pendingBinds, msg.TransactionID)
		}
	}
}

func (a *Allocation) handleAllocateSuccess(msg *stun.Message) {
	var relayed stun.XorRelayedAddress
	if err := relayed.GetFrom(msg); err != nil {
		a.fail(errNoRelayedAddress)
		return
	}
	lifetime, err := stun.GetLifetime(msg)
	if err != nil {
		lifetime = stun.Lifetime(a.lifetime.Seconds())
	}

	a.relayedAddr = &net.UDPAddr{IP: relayed.IP, Port: relayed.Port}
	a.lifetime = time.Duration(lifetime) * time.Second
	a.state.Store(int32(StateConnected))
	a.armRefreshTimer()

	if a.cfg.OnConnected != nil {
		a.cfg.OnConnected()
	}
}

func (a *Allocation) handleRefreshSuccess(msg *stun.Message) {
	if a.State() == StateClosing {
		a.state.Store(int32(StateUnconnected))
		if a.cfg.OnDisconnected != nil {
			a.cfg.OnDisconnected(nil)
		}
		return
	}
	if lifetime, err := stun.GetLifetime(msg); err == nil {
		a.lifetime = time.Duration(lifetime) * time.Second
	}
	a.armRefreshTimer()
}

func (a *Allocation) armRefreshTimer() {
	if a.refreshTmr != nil {
		a.refreshTmr.Stop()
	}
	delay := a.lifetime - refreshMargin
	if delay <= 0 {
		delay = a.lifetime
	}
	a.refreshTmr = time.AfterFunc(delay, func() {
		a.post(a.sendRefresh)
	})
}

func (a *Allocation) sendRefresh() {
	if a.State() != StateConnected {
		return
	}
	a.sendRequest(requestSpec{
		method: stun.MethodRefresh,
		attrs:  []stun.Setter{stun.Lifetime(uint32(a.lifetime.Seconds()))},
	})
}

func (a *Allocation) handleError(req *pendingRequest, msg *stun.Message) {
	var ec stun.ErrorCode
	if err := ec.GetFrom(msg); err != nil {
		a.log.Warnf("turn: %s error response without ERROR-CODE", req.method)
		return
	}

	if ec.Code == stun.CodeUnauthorized || ec.Code == stun.CodeStaleNonce {
		if a.retryWithAuth(req, msg) {
			return
		}
		if req.method != stun.MethodChannelBind {
			a.fail(errAuthLoop)
			return
		}
	}

	if req.method == stun.MethodChannelBind {
		// ChannelBind errors are reported but never tear down the
		// allocation.
		delete(a.pendingBinds, msg.TransactionID)
		a.log.Warnf("turn: channel bind failed: %d %s", ec.Code, ec.Reason)
		return
	}

	a.fail(&ProtocolError{Method: req.method.String(), Code: ec.Code, Reason: ec.Reason})
}

// retryWithAuth replays the request under updated long-term credentials,
// but only if the server's nonce or realm actually advanced, to avoid
// retry loops.
func (a *Allocation) retryWithAuth(req *pendingRequest, msg *stun.Message) bool {
	newRealm, _ := stun.GetRealm(msg)
	newNonce, _ := stun.GetNonce(msg)
	if string(newRealm) == a.realm && string(newNonce) == a.nonce {
		return false
	}
	a.realm = string(newRealm)
	a.nonce = string(newNonce)
	a.key = stun.LongTermKey(a.username, a.realm, a.password)

	txID := a.sendRequest(req.request)
	if ch, ok := a.pendingBinds[msg.TransactionID]; ok {
		delete(a.pendingBinds, msg.TransactionID)
		a.pendingBinds[txID] = ch
	}
	return true
}

func (a *Allocation) fail(err error) {
	if a.refreshTmr != nil {
		a.refreshTmr.Stop()
	}
	a.state.Store(int32(StateUnconnected))
	a.log.Warnf("turn: allocation dropped: %v", err)
	if a.cfg.OnDisconnected != nil {
		a.cfg.OnDisconnected(err)
	}
}
