package engine

import (
	"time"
)

// loop is the Proxy Loop (§4.1). Each iteration drains, in the one
// fixed order the specification guarantees: the Control Channel,
// worker completions, pending handshake outcomes, inbound application
// frames, then (on its own timer rather than a poll deadline, since
// Go has no single primitive spanning channels and a wall-clock
// deadline) the idle-expiry sweep. The loop blocks only in the
// select at the bottom when every drain pass found nothing to do.
func (p *Proxy) loop() {
	defer close(p.done)
	sweep := time.NewTicker(idleSweepInterval)
	defer sweep.Stop()

	quitting := false
	for {
		if quitting && p.canShutdown() {
			p.shutdown()
			return
		}

		didWork := false
		didWork = p.drainControl(&quitting) || didWork
		didWork = p.drainWorkerDone() || didWork
		didWork = p.drainHandshakes() || didWork
		didWork = p.drainFrames() || didWork

		select {
		case <-sweep.C:
			p.expireIdle()
		default:
		}

		if didWork {
			continue
		}

		select {
		case env := <-p.ctrl.Recv():
			p.handleEnvelope(env, &quitting)
		case d := <-p.pool.done:
			p.pool.OnComplete(p.registry, d)
		case hs := <-p.handshakes:
			p.handleHandshake(hs)
		case f := <-p.frames:
			p.handleFrame(f)
		case <-sweep.C:
			p.expireIdle()
		}
	}
}

func (p *Proxy) canShutdown() bool {
	return len(p.pendingSends) == 0 && len(p.dialing) == 0
}

func (p *Proxy) shutdown() {
	p.ctrl.Shutdown()
	for _, l := range p.listeners {
		_ = l.Close()
	}
	for _, info := range p.peers.peers {
		if info.Incoming != nil && info.Incoming.Conn != nil {
			_ = info.Incoming.Conn.Close(p.cfg.CloseLinger)
		}
		if slot, ok := p.peers.Slot(info.Outgoing); ok && slot.conn != nil {
			_ = slot.conn.Close(p.cfg.CloseLinger)
		}
	}
	p.pool.Quit()
}

func (p *Proxy) drainControl(quitting *bool) bool {
	did := false
	for {
		select {
		case env := <-p.ctrl.Recv():
			p.handleEnvelope(env, quitting)
			did = true
		default:
			return did
		}
	}
}

func (p *Proxy) drainWorkerDone() bool {
	did := false
	for {
		select {
		case d := <-p.pool.done:
			p.pool.OnComplete(p.registry, d)
			did = true
		default:
			return did
		}
	}
}

func (p *Proxy) drainHandshakes() bool {
	did := false
	for {
		select {
		case hs := <-p.handshakes:
			p.handleHandshake(hs)
			did = true
		default:
			return did
		}
	}
}

func (p *Proxy) drainFrames() bool {
	did := false
	for {
		select {
		case f := <-p.frames:
			p.handleFrame(f)
			did = true
		default:
			return did
		}
	}
}

func (p *Proxy) expireIdle() {
	now := time.Now()
	for _, pub := range p.peers.ExpireIdle(now) {
		p.closeOutgoing(pub)
		if p.metrics != nil {
			p.metrics.IncIdleExpiration()
		}
	}
}

func (p *Proxy) closeOutgoing(pub PubKey) {
	if slot, ok := p.peers.Slot(mustOutgoingIndex(p, pub)); ok && slot.conn != nil {
		_ = slot.conn.Close(p.cfg.CloseLinger)
	}
	p.peers.CloseOutgoing(pub)
}

func mustOutgoingIndex(p *Proxy, pub PubKey) int {
	if info, ok := p.peers.Get(pub); ok {
		return info.Outgoing
	}
	return -1
}
