package engine

import (
	"time"

	"snq/internal/control"
)

// handleEnvelope executes one drained Control Channel command. This
// runs only on the proxy goroutine.
func (p *Proxy) handleEnvelope(env control.Envelope, quitting *bool) {
	switch env.Command {
	case control.Send:
		d, err := env.DecodeSend()
		if err != nil {
			p.logf(logWarn, "control: bad SEND dict: %v", err)
			return
		}
		var pub PubKey
		copy(pub[:], d.Pubkey)
		p.sendInternal(pub, d.Parts, SendOptions{
			Hint:         d.Hint,
			Optional:     d.Optional,
			IncomingOnly: d.IncomingOnly,
			KeepAlive:    time.Duration(d.KeepAliveMS) * time.Millisecond,
		})
	case control.Reply:
		d, err := env.DecodeSend()
		if err != nil {
			p.logf(logWarn, "control: bad REPLY dict: %v", err)
			return
		}
		var pub PubKey
		copy(pub[:], d.Pubkey)
		p.sendInternal(pub, d.Parts, SendOptions{IncomingOnly: true, Optional: d.Optional})
	case control.Connect:
		d, err := env.DecodeConnect()
		if err != nil {
			p.logf(logWarn, "control: bad CONNECT dict: %v", err)
			return
		}
		var pub PubKey
		copy(pub[:], d.Pubkey)
		p.connectInternal(pub, d.Hint, time.Duration(d.KeepAliveMS)*time.Millisecond)
	case control.Disconnect:
		d, err := env.DecodeDisconnect()
		if err != nil {
			p.logf(logWarn, "control: bad DISCONNECT dict: %v", err)
			return
		}
		var pub PubKey
		copy(pub[:], d.Pubkey)
		p.closeOutgoing(pub)
	case control.Quit:
		*quitting = true
	default:
		p.logf(logWarn, "control: unknown command %q", env.Command)
	}
}

// connectInternal implements proxy_connect's explicit-CONNECT path:
// ensure an outbound route exists (or is being established), purely
// for its side effect of keeping the connection warm.
func (p *Proxy) connectInternal(pub PubKey, hint string, keepAlive time.Duration) {
	if keepAlive <= 0 {
		keepAlive = p.cfg.DefaultKeepAlive
	}
	if info, ok := p.peers.Get(pub); ok && info.Outgoing >= 0 {
		p.peers.ExtendIdleExpiry(info, keepAlive)
		return
	}
	p.beginDial(pub, hint, keepAlive)
}

// sendInternal implements §4.3's proxy_connect plus frame emission
// for SEND/REPLY. opts.IncomingOnly=true models REPLY.
func (p *Proxy) sendInternal(pub PubKey, parts [][]byte, opts SendOptions) {
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second // DEFAULT_SEND_KEEP_ALIVE for implicit connects
	}

	info, known := p.peers.Get(pub)

	// Step 1: incoming-only short-circuit.
	if opts.IncomingOnly {
		if known && info.Incoming != nil {
			p.writeIncoming(info, parts)
			return
		}
		if !opts.Optional {
			p.logf(logWarn, "send: no incoming route for %s", pub)
		}
		return
	}

	// Step 2: existing outgoing route — extend idle expiry and send.
	if known && info.Outgoing >= 0 {
		p.peers.ExtendIdleExpiry(info, keepAlive)
		p.writeOutgoing(pub, info.Outgoing, parts)
		return
	}

	// Step 3/4: no route at all — optional sends with nothing to go
	// on (no hint, no peer_lookup configured) are dropped quietly.
	if opts.Optional && opts.Hint == "" && p.cfg.PeerLookup == nil {
		return
	}

	// Step 5/6: resolve an address and dial, queuing this frame to
	// flush once the handshake completes.
	p.queueSend(pub, parts, opts)
	p.beginDial(pub, opts.Hint, keepAlive)
}

func (p *Proxy) queueSend(pub PubKey, parts [][]byte, opts SendOptions) {
	p.pendingSends[pub] = append(p.pendingSends[pub], queuedSend{parts: parts, opts: opts})
}

func (p *Proxy) beginDial(pub PubKey, hint string, keepAlive time.Duration) {
	if p.dialing[pub] {
		return
	}
	addr := hint
	if addr == "" {
		if p.cfg.PeerLookup == nil {
			p.logf(logWarn, "send: no hint and no peer_lookup for %s", pub)
			p.dropPending(pub)
			return
		}
		resolved, ok := p.cfg.PeerLookup(pub)
		if !ok || resolved == "" {
			p.logf(logWarn, "send: peer_lookup failed for %s", pub)
			p.dropPending(pub)
			return
		}
		addr = resolved
	}
	p.dialing[pub] = true
	go p.dial(pub, addr, keepAlive)
}

func (p *Proxy) dropPending(pub PubKey) {
	delete(p.pendingSends, pub)
}

func (p *Proxy) writeIncoming(info *PeerInfo, parts [][]byte) {
	route := info.Incoming
	if route == nil || route.Conn == nil {
		return
	}
	if err := writeSecureFrame(route.Conn.Stream, &route.keys, p.identity.Pub, info.Pub, parts); err != nil {
		p.logf(logWarn, "send: write to incoming route failed: %v", err)
		p.peers.CloseIncoming(info.Pub)
		return
	}
	p.peers.Touch(info.Pub)
	if p.metrics != nil {
		p.metrics.IncFramesSent()
	}
}

func (p *Proxy) writeOutgoing(pub PubKey, idx int, parts [][]byte) {
	slot, ok := p.peers.Slot(idx)
	if !ok || slot.conn == nil {
		return
	}
	if err := writeSecureFrame(slot.conn.Stream, &slot.keys, p.identity.Pub, pub, parts); err != nil {
		p.logf(logWarn, "send: write to outgoing slot failed: %v", err)
		p.closeOutgoing(pub)
		return
	}
	p.peers.Touch(pub)
	if p.metrics != nil {
		p.metrics.IncFramesSent()
	}
}
