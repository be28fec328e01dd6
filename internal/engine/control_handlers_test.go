package engine

import (
	"testing"
	"time"

	"snq/internal/control"
)

func TestSendInternalIncomingOnlyWithNoRouteOptionalDroppedSilently(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x10
	p.sendInternal(pub, [][]byte{[]byte("chat.say")}, SendOptions{IncomingOnly: true, Optional: true})
	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("sendInternal must not create a peer entry for a reply with no route")
	}
}

func TestSendInternalExistingOutgoingExtendsIdleExpiry(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x11
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Second)

	p.sendInternal(pub, [][]byte{[]byte("chat.say")}, SendOptions{KeepAlive: time.Hour})

	info, ok := p.peers.Get(pub)
	if !ok {
		t.Fatalf("peer vanished")
	}
	if info.IdleExpiry != time.Hour {
		t.Fatalf("IdleExpiry = %v, want %v (extended to the longer keep-alive)", info.IdleExpiry, time.Hour)
	}
}

func TestSendInternalOptionalWithNoRouteAndNoHintNeverDials(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x12
	p.sendInternal(pub, [][]byte{[]byte("chat.say")}, SendOptions{Optional: true})
	if p.dialing[pub] {
		t.Fatalf("an optional send with no hint and no PeerLookup must not trigger a dial")
	}
}

func TestSendInternalWithHintBeginsDialAndQueuesFrame(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x13
	p.sendInternal(pub, [][]byte{[]byte("chat.say")}, SendOptions{Hint: "127.0.0.1:1"})

	if !p.dialing[pub] {
		t.Fatalf("a send with a hint and no existing route must begin a dial")
	}
	if len(p.pendingSends[pub]) != 1 {
		t.Fatalf("frame should be queued pending the dial, got %d queued", len(p.pendingSends[pub]))
	}
}

func TestSendInternalSecondCallWhileDialingDoesNotRedial(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x14
	p.dialing[pub] = true // simulate an in-flight dial from a prior call

	p.sendInternal(pub, [][]byte{[]byte("chat.say")}, SendOptions{Hint: "127.0.0.1:1"})

	if len(p.pendingSends[pub]) != 1 {
		t.Fatalf("frame should still be queued even though the dial itself is not repeated")
	}
}

func TestConnectInternalOnExistingRouteOnlyExtendsExpiry(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x15
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Minute)

	p.connectInternal(pub, "", 2*time.Hour)

	if p.dialing[pub] {
		t.Fatalf("connectInternal must not dial when an outgoing route already exists")
	}
	info, _ := p.peers.Get(pub)
	if info.IdleExpiry != 2*time.Hour {
		t.Fatalf("IdleExpiry = %v, want 2h", info.IdleExpiry)
	}
}

func TestConnectInternalWithNoRouteBeginsDial(t *testing.T) {
	p := newTestProxy(t)
	p.cfg.PeerLookup = func(pub PubKey) (string, bool) { return "127.0.0.1:1", true }
	var pub PubKey
	pub[0] = 0x16

	p.connectInternal(pub, "", 0)

	if !p.dialing[pub] {
		t.Fatalf("connectInternal must dial when no outgoing route exists")
	}
}

func TestHandleEnvelopeQuitSetsFlag(t *testing.T) {
	p := newTestProxy(t)
	quitting := false
	p.handleEnvelope(control.Envelope{Command: control.Quit}, &quitting)
	if !quitting {
		t.Fatalf("QUIT envelope must set the quitting flag")
	}
}

func TestHandleEnvelopeDisconnectClosesOutgoingRoute(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	pub[0] = 0x17
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, time.Minute)

	d := control.DisconnectDict{Pubkey: pub[:]}
	dictBytes := mustEncodeDisconnect(t, d)

	quitting := false
	p.handleEnvelope(control.Envelope{Command: control.Disconnect, Dict: dictBytes}, &quitting)

	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("peer with only an outgoing route must be erased after DISCONNECT")
	}
}

func TestHandleEnvelopeBadDictDoesNotPanic(t *testing.T) {
	p := newTestProxy(t)
	quitting := false
	p.handleEnvelope(control.Envelope{Command: control.Send, Dict: []byte("not bencode")}, &quitting)
	p.handleEnvelope(control.Envelope{Command: control.Connect, Dict: []byte("not bencode")}, &quitting)
	p.handleEnvelope(control.Envelope{Command: control.Disconnect, Dict: []byte("not bencode")}, &quitting)
	p.handleEnvelope(control.Envelope{Command: "BOGUS"}, &quitting)
}

func mustEncodeDisconnect(t *testing.T, d control.DisconnectDict) []byte {
	t.Helper()
	ch := control.NewChannel(1)
	handle := ch.ForThread()
	if err := handle.PostDisconnect(d); err != nil {
		t.Fatalf("encode disconnect dict: %v", err)
	}
	env := <-ch.Recv()
	return env.Dict
}
