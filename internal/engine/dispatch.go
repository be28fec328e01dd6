package engine

import "fmt"

// handleHandshake reacts to one completed (or failed) curve
// handshake. Only the proxy goroutine ever touches the Peer Table or
// Outgoing Slot Array, so this is where a handshake's outcome is
// finally allowed to take effect.
func (p *Proxy) handleHandshake(hs handshakeResult) {
	if hs.isIncoming {
		p.handleIncomingHandshake(hs)
		return
	}
	delete(p.dialing, hs.pub)
	if hs.err != nil {
		p.logf(logWarn, "connect: outbound handshake to %s failed: %v", hs.pub, hs.err)
		p.failPending(hs.pub, fmt.Errorf("outbound connect failed: %w", hs.err))
		return
	}

	existingAuth, existingSN := Basic, false
	if info, ok := p.peers.Get(hs.pub); ok {
		existingAuth, existingSN = info.AuthLevel, info.ServiceNode
	}
	sealKey, sealBase, openKey, openBase := hs.keys.ForRole(true)
	half := sessionHalf{sealKey: sealKey, sealBase: sealBase, openKey: openKey, openBase: openBase}

	info := p.peers.SetOutgoing(hs.pub, existingAuth, existingSN, hs.conn, half, hs.keepAlive)
	slot, _ := p.peers.Slot(info.Outgoing)
	go p.readLoop(hs.conn, &slot.keys, hs.pub)

	p.logf(logDebug, "connect: outbound handshake to %s complete", hs.pub)
	p.flushPending(hs.pub, info.Outgoing)
	p.updatePeerMetric()
}

func (p *Proxy) handleIncomingHandshake(hs handshakeResult) {
	decision := p.auth.Check(hs.ip, hs.pub)
	if !decision.Allow {
		if hs.conn != nil {
			_ = hs.conn.Close(0)
		}
		return
	}
	sealKey, sealBase, openKey, openBase := hs.keys.ForRole(false)
	route := &IncomingRoute{
		RouteID: p.nextRoute.Add(1),
		Conn:    hs.conn,
		keys:    sessionHalf{sealKey: sealKey, sealBase: sealBase, openKey: openKey, openBase: openBase},
	}
	p.peers.SetIncoming(hs.pub, decision.Level, decision.SN, route)
	go p.readLoop(hs.conn, &route.keys, hs.pub)
	p.logf(logDebug, "accept: inbound handshake from %s complete (auth=%s sn=%v)", hs.pub, decision.Level, decision.SN)
	p.updatePeerMetric()
}

// flushPending emits every frame queued while pub's outbound
// connection was being established.
func (p *Proxy) flushPending(pub PubKey, slotIdx int) {
	queued := p.pendingSends[pub]
	delete(p.pendingSends, pub)
	for _, qs := range queued {
		p.writeOutgoing(pub, slotIdx, qs.parts)
	}
}

func (p *Proxy) failPending(pub PubKey, err error) {
	if n := len(p.pendingSends[pub]); n > 0 {
		p.logf(logWarn, "connect: dropping %d queued frame(s) for %s: %v", n, pub, err)
	}
	delete(p.pendingSends, pub)
}

func (p *Proxy) updatePeerMetric() {
	if p.metrics != nil {
		p.metrics.SetPeers(p.peers.Len())
	}
}

// handleFrame runs the inbound-frame pipeline from §4.1: touch
// last-activity, check the built-ins, resolve aliases and split
// category/command, then the access policy, then dispatch to a worker.
func (p *Proxy) handleFrame(f inboundFrame) {
	if f.err != nil {
		p.peers.CloseIncoming(f.pub)
		p.closeOutgoing(f.pub)
		p.updatePeerMetric()
		return
	}
	if len(f.parts) == 0 {
		return
	}
	peer, ok := p.peers.Get(f.pub)
	if !ok {
		return // frame from a peer no longer in the table; drop silently
	}
	p.peers.Touch(f.pub)
	if p.metrics != nil {
		p.metrics.IncFramesRecv()
	}

	full := string(f.parts[0])
	args := f.parts[1:]

	if p.handleBuiltin(full, f.pub) {
		return
	}

	cat, cmd, cb, ok := p.registry.Resolve(full)
	if !ok {
		p.logf(logWarn, "unknown command %q from %s", full, f.pub)
		if p.metrics != nil {
			p.metrics.IncUnknownCommand()
		}
		return
	}

	if !checkAccess(cat, peer, p.local) {
		p.logf(logWarn, "access denied: %q from %s (auth=%s sn=%v)", full, f.pub, peer.AuthLevel, peer.ServiceNode)
		if p.metrics != nil {
			p.metrics.IncAccessDenial()
		}
		return
	}

	if p.metrics != nil {
		p.metrics.IncRecvByCategory(cat.Name)
	}
	job := pendingJob{pub: f.pub, sn: peer.ServiceNode, cmd: cmd, parts: args, cb: cb}
	p.pool.Submit(p.registry, cat, job)
}
