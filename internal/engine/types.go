// Package engine implements the proxy thread and its peer/worker
// orchestration: the single-threaded broker owning all transport
// sockets, the peer table and outgoing-connection cache, the
// category/access model, and the two-level worker scheduler.
package engine

import (
	"fmt"
	"time"

	"snq/internal/curve"
	"snq/internal/metrics"
)

// PubKey names a peer: its 32-byte X25519 public key.
type PubKey [curve.KeySize]byte

func (p PubKey) String() string {
	return fmt.Sprintf("%x", p[:8])
}

// AuthLevel is the outcome of the allow-connection callback at
// handshake time; Denied peers are never stored in the Peer Table.
type AuthLevel int

const (
	Denied AuthLevel = iota
	None
	Basic
	Admin
)

func (a AuthLevel) String() string {
	switch a {
	case Denied:
		return "denied"
	case None:
		return "none"
	case Basic:
		return "basic"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// Access is a category's admission policy.
type Access struct {
	MinAuth         AuthLevel
	RequireRemoteSN bool
	RequireLocalSN  bool
}

// Callback is an application-registered command handler, invoked on
// a worker goroutine with a short-lived Message view.
type Callback func(*Message)

// AllowFunc is the allow_connection callback consulted once per
// inbound handshake. ok=false means denied.
type AllowFunc func(ip string, pub PubKey) (level AuthLevel, isSN bool, ok bool)

// LookupFunc resolves a pubkey to a dial address, called at most once
// per outbound connection establishment.
type LookupFunc func(pub PubKey) (addr string, ok bool)

// Config collects every construction-time tunable named by the
// public interface (§6 of the specification this follows).
type Config struct {
	Pubkey, Privkey []byte // both empty => ephemeral keypair generated
	ServiceNode     bool
	Bind            []string // transport listen addresses; empty = outbound-only
	PeerLookup      LookupFunc
	AllowConnection AllowFunc
	GeneralWorkers  int // default: runtime.NumCPU()

	SNHandshakeTime time.Duration // default 10s
	CloseLinger     time.Duration // default 5s
	DefaultKeepAlive time.Duration // default 5m, used by Connect() when unset
	MaxMessageSize  int           // 0 = 1MiB default, <0 = unlimited

	Metrics *metrics.Metrics
}

func (c *Config) setDefaults() {
	if c.SNHandshakeTime == 0 {
		c.SNHandshakeTime = 10 * time.Second
	}
	if c.CloseLinger == 0 {
		c.CloseLinger = 5 * time.Second
	}
	if c.DefaultKeepAlive == 0 {
		c.DefaultKeepAlive = 5 * time.Minute
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
}

// SendOptions mirrors the option set named by the specification's
// send-option argument pack: {hint, optional, incoming, keep_alive}.
// The argument-pack builder itself is named an external collaborator;
// SendOptions is the plain struct the proxy consumes once that pack
// (or a caller) has filled it in.
type SendOptions struct {
	Hint        string
	Optional    bool
	IncomingOnly bool
	KeepAlive   time.Duration
}
