package engine

import "snq/internal/metrics"

// Authenticator implements component E: a handshake-completion gate
// that consults the application's allow_connection callback exactly
// once per inbound handshake, before the peer's first application
// frame is accepted. It has no wire format of its own here — unlike
// the ZAP sub-protocol it generalizes, the gate runs in-process
// against the already curve-authenticated pubkey the transport
// handshake produced, rather than over a second request/reply
// socket, since nothing downstream of the transport layer needs that
// wire hop in an embedded Go library.
type Authenticator struct {
	allow   AllowFunc
	metrics *metrics.Metrics
}

func NewAuthenticator(allow AllowFunc, m *metrics.Metrics) *Authenticator {
	return &Authenticator{allow: allow, metrics: m}
}

// Decision is the outcome of a single handshake authentication check.
type Decision struct {
	Level AuthLevel
	SN    bool
	Allow bool
}

// Check runs the allow_connection callback. A nil allow_connection
// (no callback registered) denies every inbound peer, matching
// "fail closed" for an embedder that never opted into accepting
// connections.
func (a *Authenticator) Check(ip string, pub PubKey) Decision {
	if a.allow == nil {
		a.deny()
		return Decision{}
	}
	level, isSN, ok := a.allow(ip, pub)
	if !ok || level == Denied {
		a.deny()
		return Decision{}
	}
	return Decision{Level: level, SN: isSN, Allow: true}
}

func (a *Authenticator) deny() {
	if a.metrics != nil {
		a.metrics.IncAuthDenial()
	}
}
