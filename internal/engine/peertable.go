package engine

import (
	"time"

	"snq/internal/transport"
)

// IncomingRoute identifies one inbound connection: a route id the
// Listener uses to address frames back to that specific peer.
type IncomingRoute struct {
	RouteID uint64
	Conn    *transport.Conn
	keys    sessionHalf
}

// PeerInfo is the Peer Table's per-pubkey record (§3). Only the
// proxy goroutine ever reads or writes one; no field needs a lock.
type PeerInfo struct {
	Pub          PubKey
	ServiceNode  bool
	AuthLevel    AuthLevel
	Incoming     *IncomingRoute // nil if no inbound route
	Outgoing     int            // slot index, -1 if none
	LastActivity time.Time
	IdleExpiry   time.Duration
}

func (p *PeerInfo) hasRoute() bool {
	return p.Incoming != nil || p.Outgoing >= 0
}

// outgoingSlot is one entry of the Outgoing Slot Array (C): a live
// outbound connection and the pubkey it belongs to. vacant marks a
// freed slot kept around so surviving indices never have to shift.
type outgoingSlot struct {
	pub    PubKey
	conn   *transport.Conn
	vacant bool
	keys   sessionHalf
}

// sessionHalf is the seal/open key+nonce-base pair one side of a
// session uses; see internal/curve.SessionKeys.ForRole.
type sessionHalf struct {
	sealKey, sealBase []byte
	openKey, openBase []byte
	seq               uint64 // next outbound AEAD sequence number
	recvSeq           uint64
	recvInit          bool
}

// PeerTable is component B+C: the peer map plus the outgoing slot
// array, with the parallel-index invariant from §3 maintained
// together. Single-writer — only the proxy goroutine calls any
// method here; see the package doc and §5 of the specification.
type PeerTable struct {
	peers     map[PubKey]*PeerInfo
	outgoing  []*outgoingSlot
	freeSlots []int
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[PubKey]*PeerInfo)}
}

func (t *PeerTable) Get(pub PubKey) (*PeerInfo, bool) {
	p, ok := t.peers[pub]
	return p, ok
}

func (t *PeerTable) Len() int {
	return len(t.peers)
}

// EnsureDenied-filtered insertion: callers must never call this for a
// Denied auth level (invariant 3).
func (t *PeerTable) upsert(pub PubKey, auth AuthLevel, isSN bool) *PeerInfo {
	p, ok := t.peers[pub]
	if !ok {
		p = &PeerInfo{Pub: pub, Outgoing: -1, AuthLevel: auth, ServiceNode: isSN}
		t.peers[pub] = p
		return p
	}
	p.AuthLevel = auth
	p.ServiceNode = isSN
	return p
}

// SetIncoming records a fresh inbound route for pub, creating the
// peer entry if this is first contact.
func (t *PeerTable) SetIncoming(pub PubKey, auth AuthLevel, isSN bool, route *IncomingRoute) *PeerInfo {
	p := t.upsert(pub, auth, isSN)
	p.Incoming = route
	p.LastActivity = time.Now()
	return p
}

// newSlot allocates an outgoing slot, reusing a vacated index if one
// exists so that live indices never need to shift (§4.3's
// implementer's-choice clause, resolved in favor of reuse-over-shift).
func (t *PeerTable) newSlot(pub PubKey, conn *transport.Conn, keys sessionHalf) int {
	slot := &outgoingSlot{pub: pub, conn: conn, keys: keys}
	if n := len(t.freeSlots); n > 0 {
		idx := t.freeSlots[n-1]
		t.freeSlots = t.freeSlots[:n-1]
		t.outgoing[idx] = slot
		return idx
	}
	t.outgoing = append(t.outgoing, slot)
	return len(t.outgoing) - 1
}

// SetOutgoing records a brand-new outbound connection for pub,
// creating or updating the Peer Table entry and appending (or
// reusing) an Outgoing Slot Array entry.
func (t *PeerTable) SetOutgoing(pub PubKey, auth AuthLevel, isSN bool, conn *transport.Conn, keys sessionHalf, keepAlive time.Duration) *PeerInfo {
	p := t.upsert(pub, auth, isSN)
	idx := t.newSlot(pub, conn, keys)
	p.Outgoing = idx
	p.IdleExpiry = keepAlive
	p.LastActivity = time.Now()
	return p
}

// ExtendIdleExpiry widens the idle window to at least keepAlive,
// matching proxy_connect step 2's "extend to max(old, keep_alive)".
func (t *PeerTable) ExtendIdleExpiry(p *PeerInfo, keepAlive time.Duration) {
	if keepAlive > p.IdleExpiry {
		p.IdleExpiry = keepAlive
	}
}

func (t *PeerTable) Slot(idx int) (*outgoingSlot, bool) {
	if idx < 0 || idx >= len(t.outgoing) {
		return nil, false
	}
	s := t.outgoing[idx]
	if s == nil || s.vacant {
		return nil, false
	}
	return s, true
}

// CloseOutgoing vacates pub's outgoing slot (if any) and, if the peer
// now has neither incoming nor outgoing, erases it from the table.
// The caller is responsible for actually closing the transport
// connection with CLOSE_LINGER before or after calling this.
func (t *PeerTable) CloseOutgoing(pub PubKey) {
	p, ok := t.peers[pub]
	if !ok || p.Outgoing < 0 {
		return
	}
	idx := p.Outgoing
	if idx >= 0 && idx < len(t.outgoing) && t.outgoing[idx] != nil {
		t.outgoing[idx].vacant = true
		t.outgoing[idx].conn = nil
		t.freeSlots = append(t.freeSlots, idx)
	}
	p.Outgoing = -1
	if !p.hasRoute() {
		delete(t.peers, pub)
	}
}

// CloseIncoming clears pub's incoming route (e.g. on BYE or transport
// EOF) and erases the peer if it now has no outgoing either.
func (t *PeerTable) CloseIncoming(pub PubKey) {
	p, ok := t.peers[pub]
	if !ok {
		return
	}
	p.Incoming = nil
	if !p.hasRoute() {
		delete(t.peers, pub)
	}
}

// ExpireIdle sweeps the table for outgoing connections idle past
// their expiry and returns the pubkeys to close; it does not itself
// mutate the table — the caller closes each connection then calls
// CloseOutgoing, matching proxy_expire_idle_peers's division of
// labor between sweep and close in §4.3.
func (t *PeerTable) ExpireIdle(now time.Time) []PubKey {
	var expired []PubKey
	for pub, p := range t.peers {
		if p.Outgoing < 0 || p.IdleExpiry <= 0 {
			continue
		}
		if now.Sub(p.LastActivity) > p.IdleExpiry {
			expired = append(expired, pub)
		}
	}
	return expired
}

// Touch updates last-activity on send or receive (invariant 5: only
// meaningful for outgoing connections, but harmless to call always).
func (t *PeerTable) Touch(pub PubKey) {
	if p, ok := t.peers[pub]; ok {
		p.LastActivity = time.Now()
	}
}
