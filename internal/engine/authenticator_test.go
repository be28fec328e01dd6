package engine

import (
	"testing"

	"snq/internal/metrics"
)

func TestAuthenticatorNilCallbackFailsClosed(t *testing.T) {
	m := metrics.New()
	a := NewAuthenticator(nil, m)
	var pub PubKey
	d := a.Check("127.0.0.1", pub)
	if d.Allow {
		t.Fatalf("nil allow_connection must deny every peer")
	}
	if m.Snapshot().AuthDenials != 1 {
		t.Fatalf("expected one recorded denial")
	}
}

func TestAuthenticatorHonorsCallback(t *testing.T) {
	m := metrics.New()
	allow := func(ip string, pub PubKey) (AuthLevel, bool, bool) {
		if ip == "trusted" {
			return Admin, true, true
		}
		return Denied, false, false
	}
	a := NewAuthenticator(allow, m)
	var pub PubKey

	d := a.Check("trusted", pub)
	if !d.Allow || d.Level != Admin || !d.SN {
		t.Fatalf("unexpected decision for trusted ip: %+v", d)
	}

	d2 := a.Check("stranger", pub)
	if d2.Allow {
		t.Fatalf("callback returning ok=false must deny")
	}
	if m.Snapshot().AuthDenials != 1 {
		t.Fatalf("expected exactly one denial recorded")
	}
}

func TestAuthenticatorDeniedLevelIsTreatedAsDeny(t *testing.T) {
	m := metrics.New()
	allow := func(ip string, pub PubKey) (AuthLevel, bool, bool) { return Denied, false, true }
	a := NewAuthenticator(allow, m)
	var pub PubKey
	if d := a.Check("x", pub); d.Allow {
		t.Fatalf("AuthLevel=Denied with ok=true must still deny")
	}
}
