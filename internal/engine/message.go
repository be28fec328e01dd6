package engine

import "snq/internal/control"

// Message is a short-lived, non-owning view into a worker's run slot.
// It must not be retained past the callback invocation: the parts
// slice and the slot it borrows from are reused for the worker's next
// job as soon as the callback returns.
type Message struct {
	Category    string
	Command     string
	Pubkey      PubKey
	ServiceNode bool
	Parts       [][]byte

	proxy *Proxy
}

// Reply sends parts back to the originating peer, routed over its
// incoming route if it has one (matching proxy_connect's incoming_only
// semantics for REPLY). Per the specification's error-handling design,
// reply() downgrades its delivery guarantee for non-SN peers by
// implicitly adding Optional: a reply to a peer that is not a
// service node may be silently dropped if that peer has disconnected
// before the reply is emitted.
//
// Reply runs on a worker goroutine, so — like every other
// application-thread-initiated operation — it is posted to the
// Control Channel rather than touching Peer Table state directly.
func (m *Message) Reply(parts ...[]byte) {
	d := control.SendDict{
		Pubkey:       m.Pubkey[:],
		Parts:        parts,
		IncomingOnly: true,
		Optional:     !m.ServiceNode,
	}
	if err := m.proxy.ctrlHandle.PostSend(control.Reply, d); err != nil {
		m.proxy.logf(logWarn, "reply: control post failed: %v", err)
	}
}
