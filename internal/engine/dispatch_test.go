package engine

import (
	"errors"
	"testing"
	"time"
)

var errReadFailed = errors.New("engine test: simulated read failure")

// drainOneComplete waits for exactly one worker-done notification and
// feeds it back through OnComplete, mirroring what the proxy loop
// does for every completed job.
func drainOneComplete(t *testing.T, p *Proxy) {
	t.Helper()
	select {
	case d := <-p.pool.done:
		p.pool.OnComplete(p.registry, d)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for worker completion")
	}
}

func TestHandleFrameDispatchesToRegisteredCallback(t *testing.T) {
	p := newTestProxy(t)
	ran := make(chan PubKey, 1)
	if err := p.AddCategory("chat", Access{MinAuth: Basic}, 1, 8); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if err := p.AddCommand("chat", "say", func(m *Message) { ran <- m.Pubkey }); err != nil {
		t.Fatalf("add command: %v", err)
	}

	var pub PubKey
	pub[0] = 0x01
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})

	p.handleFrame(inboundFrame{pub: pub, parts: [][]byte{[]byte("chat.say"), []byte("hi")}})
	drainOneComplete(t, p)

	select {
	case got := <-ran:
		if got != pub {
			t.Fatalf("callback ran for wrong pubkey: %x", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback never ran")
	}
}

func TestHandleFrameDeniedAccessNeverDispatches(t *testing.T) {
	p := newTestProxy(t)
	ran := make(chan struct{}, 1)
	if err := p.AddCategory("admin", Access{MinAuth: Admin}, 1, 8); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if err := p.AddCommand("admin", "shutdown", func(m *Message) { ran <- struct{}{} }); err != nil {
		t.Fatalf("add command: %v", err)
	}

	var pub PubKey
	pub[0] = 0x02
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})

	p.handleFrame(inboundFrame{pub: pub, parts: [][]byte{[]byte("admin.shutdown")}})

	select {
	case <-ran:
		t.Fatalf("callback must not run for a peer below MinAuth")
	case <-time.After(50 * time.Millisecond):
	}
	if got := p.metrics.Snapshot().AccessDenials; got != 1 {
		t.Fatalf("AccessDenials = %d, want 1", got)
	}
}

func TestHandleFrameUnknownCommandIncrementsMetric(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x03
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})

	p.handleFrame(inboundFrame{pub: pub, parts: [][]byte{[]byte("nosuch.command")}})

	if got := p.metrics.Snapshot().UnknownCommands; got != 1 {
		t.Fatalf("UnknownCommands = %d, want 1", got)
	}
}

func TestHandleFrameFromUnknownPeerDroppedSilently(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x04
	// No Peer Table entry at all — must not panic, must not dispatch.
	p.handleFrame(inboundFrame{pub: pub, parts: [][]byte{[]byte("chat.say")}})
}

func TestHandleFrameEmptyPartsIgnored(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x05
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})
	p.handleFrame(inboundFrame{pub: pub, parts: nil})
	if _, ok := p.peers.Get(pub); !ok {
		t.Fatalf("peer should still be present after an empty frame")
	}
}

func TestHandleFrameTransportErrorClosesBothRoutes(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x06
	p.peers.SetIncoming(pub, Basic, false, &IncomingRoute{RouteID: 1})
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Minute)

	p.handleFrame(inboundFrame{pub: pub, err: errReadFailed})

	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("peer with no remaining routes should be erased from the table")
	}
}

func TestHandleIncomingHandshakeDeniedClosesConnNoPeer(t *testing.T) {
	p := newTestProxy(t)
	p.cfg.AllowConnection = func(ip string, pub PubKey) (AuthLevel, bool, bool) {
		return Denied, false, false
	}
	p.auth = NewAuthenticator(p.cfg.AllowConnection, p.metrics)

	var pub PubKey
	pub[0] = 0x07
	p.handleIncomingHandshake(handshakeResult{pub: pub, isIncoming: true})

	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("denied peer must never enter the Peer Table")
	}
	if got := p.metrics.Snapshot().AuthDenials; got != 1 {
		t.Fatalf("AuthDenials = %d, want 1", got)
	}
}

func TestHandleHandshakeOutboundFailureDropsQueuedSends(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x09
	p.dialing[pub] = true
	p.pendingSends[pub] = []queuedSend{{parts: [][]byte{[]byte("chat.say")}}}

	p.handleHandshake(handshakeResult{pub: pub, isIncoming: false, err: errReadFailed})

	if p.dialing[pub] {
		t.Fatalf("dialing flag must be cleared on handshake failure")
	}
	if _, ok := p.pendingSends[pub]; ok {
		t.Fatalf("pending sends for a failed handshake must be dropped")
	}
}
