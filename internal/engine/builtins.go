package engine

// builtinBye is the one built-in primitive named by §4.5: a BYE from
// a remote closes the incoming route immediately and, if the peer has
// no outgoing connection either, removes it from the table. Built-ins
// bypass the access check but still require the frame to have come
// from an already-authenticated peer (it reached this point only
// because the Listener's route-id lookup succeeded).
const builtinBye = "BYE"

// handleBuiltin returns true if full names a built-in primitive and
// it consumed the frame; the caller must not enqueue to a worker in
// that case.
func (p *Proxy) handleBuiltin(full string, pub PubKey) bool {
	if full != builtinBye {
		return false
	}
	if info, ok := p.peers.Get(pub); ok && info.Incoming != nil && info.Incoming.Conn != nil {
		_ = info.Incoming.Conn.Close(0)
	}
	p.peers.CloseIncoming(pub)
	p.updatePeerMetric()
	return true
}
