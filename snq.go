// Package snq is an authenticated, encrypted message-passing layer for
// a peer-to-peer network of service nodes. A process embeds one Proxy,
// registers command categories against it, and lets the proxy own
// every socket, peer record, and worker thread from then on.
package snq

import (
	"time"

	"snq/internal/curve"
	"snq/internal/engine"
	"snq/internal/logging"
	"snq/internal/metrics"
)

// PubKey names a peer by its 32-byte X25519 public key.
type PubKey = engine.PubKey

// AuthLevel is the outcome of the allow-connection callback at
// handshake time.
type AuthLevel = engine.AuthLevel

const (
	Denied AuthLevel = engine.Denied
	None   AuthLevel = engine.None
	Basic  AuthLevel = engine.Basic
	Admin  AuthLevel = engine.Admin
)

// Access is a category's admission policy.
type Access = engine.Access

// Message is the short-lived, non-owning view a callback receives for
// one dispatched command; see Message.Reply.
type Message = engine.Message

// Callback is an application-registered command handler.
type Callback = engine.Callback

// AllowFunc is the allow_connection callback consulted once per
// inbound handshake.
type AllowFunc = engine.AllowFunc

// LookupFunc resolves a pubkey to a dial address for an outbound
// connection.
type LookupFunc = engine.LookupFunc

// SendOptions mirrors the send-option argument pack named by §6:
// {hint, optional, incoming, keep_alive}.
type SendOptions = engine.SendOptions

// Config collects every construction-time tunable.
type Config = engine.Config

// LogLevel controls which log lines a registered Logger receives.
type LogLevel = logging.Level

const (
	LogTrace LogLevel = logging.Trace
	LogDebug LogLevel = logging.Debug
	LogInfo  LogLevel = logging.Info
	LogWarn  LogLevel = logging.Warn
	LogError LogLevel = logging.Error
	LogFatal LogLevel = logging.Fatal
)

// LoggerFunc is the sink a caller installs with SetLogger.
type LoggerFunc = logging.Func

// Metrics is the counter set the proxy updates as it runs; pass
// Config.Metrics a custom instance to share one across Proxy values
// (e.g. for a test harness), or leave it nil to get a fresh one.
type Metrics = metrics.Metrics

// NewMetrics returns a fresh, zeroed Metrics instance.
func NewMetrics() *Metrics { return metrics.New() }

// Proxy is the embeddable broker: the single-threaded event loop plus
// the peer table, outgoing connection cache, category registry, and
// worker pool it owns exclusively.
type Proxy struct {
	e *engine.Proxy
}

// New constructs a Proxy. Categories and commands may be registered
// via AddCategory/AddCommand/AddCommandAlias until Start is called.
func New(cfg Config) (*Proxy, error) {
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Proxy{e: e}, nil
}

// AddCategory registers a command namespace; pre-start only. name must
// be 1..50 chars and contain no ".". reserved is the worker count this
// category may spawn independently of the general pool; maxQueue
// bounds backlog depth (0 = run-only-if-a-worker-is-free, <0 =
// unbounded).
func (p *Proxy) AddCategory(name string, access Access, reserved, maxQueue int) error {
	return p.e.AddCategory(name, access, reserved, maxQueue)
}

// AddCommand registers a callback under category; pre-start only.
// name must be <= 200 chars.
func (p *Proxy) AddCommand(category, name string, cb Callback) error {
	return p.e.AddCommand(category, name, cb)
}

// AddCommandAlias registers a flat from->to rename applied before
// category lookup; permissions follow to. Pre-start only.
func (p *Proxy) AddCommandAlias(from, to string) error {
	return p.e.AddCommandAlias(from, to)
}

// SetLogger installs fn as the log sink; nil falls back to the
// built-in stderr writer.
func (p *Proxy) SetLogger(fn LoggerFunc) {
	p.e.SetLogger(fn)
}

// SetLogLevel raises or lowers the floor below which log lines are
// dropped before reaching the sink.
func (p *Proxy) SetLogLevel(l LogLevel) {
	p.e.SetLogLevel(l)
}

// GetPubkey returns the local instance's public key.
func (p *Proxy) GetPubkey() [curve.KeySize]byte {
	return p.e.GetPubkey()
}

// GetPrivkey returns the local instance's private key. Callers that
// persist it are responsible for protecting it at rest.
func (p *Proxy) GetPrivkey() []byte {
	return p.e.GetPrivkey()
}

// Start binds every configured listen address, locks the category
// registry against further AddCategory/AddCommand/AddCommandAlias
// calls, and spawns the proxy loop. Calling Start twice panics.
func (p *Proxy) Start() error {
	return p.e.Start()
}

// Stop posts QUIT and blocks until the proxy loop has fully shut down:
// every worker told to quit, every socket closed with the configured
// linger. Workers are not joined: a callback still running when Stop
// returns runs to completion on its own goroutine.
func (p *Proxy) Stop() {
	p.e.Stop()
}

// Connect posts an async CONNECT for pubkey, establishing (or keeping
// warm) an outbound route. keepAlive<=0 uses Config.DefaultKeepAlive
// (5 minutes unless overridden).
func (p *Proxy) Connect(pubkey PubKey, keepAlive time.Duration, hint string) error {
	return p.e.Connect(pubkey, keepAlive, hint)
}

// Send posts an async SEND of cmd plus parts to pubkey, honoring opts.
// No error is returned to the caller for delivery failures past
// acceptance onto the control channel; send is fire-and-forget by
// design.
func (p *Proxy) Send(pubkey PubKey, cmd string, parts [][]byte, opts SendOptions) error {
	return p.e.Send(pubkey, cmd, parts, opts)
}

// Disconnect posts an async DISCONNECT, closing pubkey's outgoing
// route if one exists.
func (p *Proxy) Disconnect(pubkey PubKey) error {
	return p.e.Disconnect(pubkey)
}
