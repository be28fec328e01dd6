package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"snq/internal/control"
	"snq/internal/curve"
	"snq/internal/logging"
	"snq/internal/metrics"
	"snq/internal/transport"
)

const idleSweepInterval = 250 * time.Millisecond

type logLevel = logging.Level

const (
	logDebug = logging.Debug
	logWarn  = logging.Warn
)

// queuedSend is a frame waiting on an in-flight outbound dial to the
// same pubkey, so a burst of SEND calls to a not-yet-connected peer
// triggers exactly one dial instead of one per call.
type queuedSend struct {
	parts [][]byte
	opts  SendOptions
}

// handshakeResult is what a dial or accept goroutine hands back to
// the proxy loop once the curve handshake completes (or fails); the
// proxy goroutine is the only one allowed to act on it, preserving
// the single-writer rule over the Peer Table and Outgoing Slot Array.
type handshakeResult struct {
	conn      *transport.Conn
	pub       PubKey
	ip        string
	initiator bool
	keys      curve.SessionKeys
	keepAlive time.Duration
	isIncoming bool
	err       error
}

// inboundFrame is one decrypted application frame, handed from a
// per-connection reader goroutine to the proxy loop.
type inboundFrame struct {
	pub   PubKey
	parts [][]byte
	err   error
}

// Proxy is component I, the single-threaded event loop, plus
// everything it exclusively owns: the Peer Table, Outgoing Slot
// Array, Category Registry, Worker Pool, and Authenticator.
type Proxy struct {
	cfg      Config
	identity *curve.Identity
	local    bool // cfg.ServiceNode, cached

	registry *Registry
	peers    *PeerTable
	pool     *WorkerPool
	auth     *Authenticator

	ctrl       *control.Channel
	ctrlHandle *control.Handle

	listeners []*transport.Listener

	logger  *logging.Logger
	metrics *metrics.Metrics

	handshakes chan handshakeResult
	frames     chan inboundFrame
	nextRoute  atomic.Uint64

	pendingSends map[PubKey][]queuedSend
	dialing      map[PubKey]bool

	started bool
	quit    chan struct{}
	done    chan struct{}
}

// New constructs a Proxy. Categories and commands may be registered
// via AddCategory/AddCommand/AddCommandAlias until Start is called.
func New(cfg Config) (*Proxy, error) {
	cfg.setDefaults()
	if cfg.GeneralWorkers <= 0 {
		cfg.GeneralWorkers = runtime.NumCPU()
	}

	identity, err := resolveIdentity(cfg.Pubkey, cfg.Privkey)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	p := &Proxy{
		cfg:          cfg,
		identity:     identity,
		local:        cfg.ServiceNode,
		registry:     NewRegistry(),
		peers:        NewPeerTable(),
		pool:         NewWorkerPool(cfg.GeneralWorkers, cfg.Metrics),
		auth:         NewAuthenticator(cfg.AllowConnection, cfg.Metrics),
		ctrl:         control.NewChannel(256),
		logger:       logging.New(logging.Info, nil),
		metrics:      cfg.Metrics,
		handshakes:   make(chan handshakeResult, 32),
		frames:       make(chan inboundFrame, 256),
		pendingSends: make(map[PubKey][]queuedSend),
		dialing:      make(map[PubKey]bool),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.ctrlHandle = p.ctrl.ForThread()
	p.pool.proxy = p
	return p, nil
}

func resolveIdentity(pub, priv []byte) (*curve.Identity, error) {
	if len(priv) == 0 {
		if len(pub) != 0 {
			return nil, fmt.Errorf("privkey empty but pubkey supplied")
		}
		return curve.GenerateIdentity()
	}
	return curve.NewIdentity(priv)
}

// AddCategory, AddCommand, and AddCommandAlias are pre-start
// configuration calls; see Registry for the exact validation rules.
func (p *Proxy) AddCategory(name string, access Access, reserved, maxQueue int) error {
	return p.registry.AddCategory(name, access, reserved, maxQueue)
}

func (p *Proxy) AddCommand(category, name string, cb Callback) error {
	return p.registry.AddCommand(category, name, cb)
}

func (p *Proxy) AddCommandAlias(from, to string) error {
	return p.registry.AddCommandAlias(from, to)
}

func (p *Proxy) SetLogger(fn logging.Func) {
	p.logger = logging.New(logging.Info, fn)
}

func (p *Proxy) SetLogLevel(l logging.Level) {
	p.logger.SetLevel(l)
}

func (p *Proxy) GetPubkey() [curve.KeySize]byte { return p.identity.Pub }
func (p *Proxy) GetPrivkey() []byte             { return p.identity.Bytes() }

// Start binds every configured listen address, locks the Category
// Registry, and spawns the proxy loop goroutine.
func (p *Proxy) Start() error {
	if p.started {
		panic("engine: Start called twice")
	}
	p.started = true
	p.registry.lock()

	for _, addr := range p.cfg.Bind {
		l, err := transport.Listen(addr)
		if err != nil {
			return fmt.Errorf("engine: listen %s: %w", addr, err)
		}
		p.listeners = append(p.listeners, l)
		go p.acceptLoop(l)
	}

	go p.loop()
	return nil
}

func (p *Proxy) acceptLoop(l *transport.Listener) {
	for {
		conn, err := l.Accept(context.Background())
		if err != nil {
			return
		}
		go p.handleAccept(conn)
	}
}

// handleAccept runs the accepting side of the curve handshake for one
// freshly-accepted connection, then hands the outcome to the proxy
// loop. It never touches the Peer Table directly.
func (p *Proxy) handleAccept(conn *transport.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SNHandshakeTime)
	defer cancel()

	var h1Bytes [curve.KeySize]byte
	if err := readFullCtx(ctx, conn.Stream, h1Bytes[:]); err != nil {
		_ = conn.Close(0)
		return
	}
	h1, err := curve.ParseHello1(h1Bytes[:])
	if err != nil {
		_ = conn.Close(0)
		return
	}
	h2, keys, err := curve.AccepterHandshake(p.identity, h1)
	if err != nil {
		_ = conn.Close(0)
		return
	}
	if _, err := conn.Stream.Write(h2.Marshal()); err != nil {
		_ = conn.Close(0)
		return
	}

	ip := remoteIP(conn)
	p.handshakes <- handshakeResult{conn: conn, pub: h1.Pub, ip: ip, initiator: false, keys: keys, isIncoming: true}
}

// dial runs the dialing side for an outbound connection to pub at
// addr, then reports the outcome to the proxy loop.
func (p *Proxy) dial(pub PubKey, addr string, keepAlive time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SNHandshakeTime)
	defer cancel()

	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		p.handshakes <- handshakeResult{pub: pub, err: err}
		return
	}
	keys, err := curve.DialerHandshake(p.identity, pub, func(h1 curve.Hello1) (curve.Hello2, error) {
		if _, err := conn.Stream.Write(h1.Marshal()); err != nil {
			return curve.Hello2{}, err
		}
		var h2Bytes [curve.KeySize]byte
		if err := readFullCtx(ctx, conn.Stream, h2Bytes[:]); err != nil {
			return curve.Hello2{}, err
		}
		return curve.ParseHello2(h2Bytes[:])
	})
	if err != nil {
		_ = conn.Close(0)
		p.handshakes <- handshakeResult{pub: pub, err: err}
		return
	}
	p.handshakes <- handshakeResult{conn: conn, pub: pub, initiator: true, keys: keys, keepAlive: keepAlive}
}

// readLoop is the per-connection fan-in goroutine: the idiomatic Go
// substitute for polling one more file descriptor in a single-thread
// select loop when the blocking primitive is a buffered stream read
// rather than a registered poll item.
func (p *Proxy) readLoop(conn *transport.Conn, half *sessionHalf, remotePub PubKey) {
	r := bufio.NewReader(conn.Stream)
	for {
		parts, err := readSecureFrame(r, half, remotePub, p.identity.Pub, p.cfg.MaxMessageSize)
		if err != nil {
			p.frames <- inboundFrame{pub: remotePub, err: err}
			return
		}
		p.frames <- inboundFrame{pub: remotePub, parts: parts}
	}
}

// Stop posts QUIT and blocks until the proxy loop has fully shut
// down.
func (p *Proxy) Stop() {
	_ = p.ctrlHandle.PostQuit()
	<-p.done
}

func (p *Proxy) logf(level logLevel, format string, args ...any) {
	p.logger.Logf(level, format, args...)
}

func readFullCtx(ctx context.Context, r io.Reader, buf []byte) error {
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, err := io.ReadFull(r, buf)
		ch <- result{err}
	}()
	select {
	case res := <-ch:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func remoteIP(conn *transport.Conn) string {
	addr := conn.Conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	return addr.String()
}
