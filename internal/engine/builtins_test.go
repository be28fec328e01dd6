package engine

import "testing"

func TestHandleBuiltinIgnoresNonBye(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	if p.handleBuiltin("cat.cmd", pub) {
		t.Fatalf("non-BYE command must not be treated as a built-in")
	}
}

func TestHandleBuiltinByeClosesIncomingRoute(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	route := &IncomingRoute{RouteID: 1}
	p.peers.SetIncoming(pub, Basic, false, route)

	if !p.handleBuiltin(builtinBye, pub) {
		t.Fatalf("BYE must be consumed as a built-in")
	}
	if _, ok := p.peers.Get(pub); ok {
		t.Fatalf("peer with only an incoming route must be erased after BYE")
	}
}

func TestHandleBuiltinByeKeepsPeerWithOutgoing(t *testing.T) {
	p := newTestProxy(t)
	var pub PubKey
	route := &IncomingRoute{RouteID: 1}
	p.peers.SetIncoming(pub, Basic, false, route)
	p.peers.SetOutgoing(pub, Basic, false, nil, sessionHalf{}, 0)

	p.handleBuiltin(builtinBye, pub)
	info, ok := p.peers.Get(pub)
	if !ok {
		t.Fatalf("peer with a surviving outgoing route must stay in the table")
	}
	if info.Incoming != nil {
		t.Fatalf("incoming route must be cleared after BYE")
	}
}
