package engine

import (
	"testing"
	"time"
)

func TestExpireIdleClosesAndRemovesStalePeer(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x20
	info := p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Millisecond)
	info.LastActivity = time.Now().Add(-time.Hour)

	p.expireIdle()

	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("peer past its idle expiry must be removed")
	}
	if got := p.metrics.Snapshot().IdleExpirations; got != 1 {
		t.Fatalf("IdleExpirations = %d, want 1", got)
	}
}

func TestExpireIdleLeavesFreshPeerAlone(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x21
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Hour)

	p.expireIdle()

	if _, ok := p.peers.Get(pub); !ok {
		t.Fatalf("peer within its idle window must survive the sweep")
	}
}

func TestCanShutdownWaitsOnPendingDialsAndSends(t *testing.T) {
	p := newTestProxy(t)
	if !p.canShutdown() {
		t.Fatalf("a freshly constructed proxy should be immediately shutdownable")
	}

	var pub PubKey
	pub[0] = 0x22
	p.dialing[pub] = true
	if p.canShutdown() {
		t.Fatalf("an in-flight dial must block shutdown")
	}
	delete(p.dialing, pub)

	p.pendingSends[pub] = []queuedSend{{}}
	if p.canShutdown() {
		t.Fatalf("a queued send must block shutdown")
	}
}

func TestShutdownClosesListenersAndQuitsPool(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x23
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Minute)

	// Spawn one worker so Quit has something to close.
	if err := p.AddCategory("a", Access{}, 1, 4); err != nil {
		t.Fatalf("add category: %v", err)
	}
	ran := make(chan struct{}, 1)
	if err := p.AddCommand("a", "x", func(*Message) { ran <- struct{}{} }); err != nil {
		t.Fatalf("add command: %v", err)
	}
	cat, _ := p.registry.category("a")
	p.pool.Submit(p.registry, cat, pendingJob{cmd: "x", cb: func(m *Message) { ran <- struct{}{} }})
	<-ran
	drainOneComplete(t, p)

	p.shutdown() // must not panic on nil Incoming.Conn/slot.conn
}
