package snq

import (
	"testing"
	"time"
)

func TestNewGeneratesEphemeralIdentity(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.GetPubkey() == [32]byte{} {
		t.Fatalf("expected a generated public key, got all zeros")
	}
	if len(p.GetPrivkey()) != 32 {
		t.Fatalf("expected a 32-byte private key, got %d bytes", len(p.GetPrivkey()))
	}
}

func TestAddCategoryValidation(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AddCategory("too.many.dots", Access{}, 0, 200); err == nil {
		t.Fatalf("category name containing '.' must be rejected")
	}
	if err := p.AddCategory("chat", Access{}, 0, 200); err != nil {
		t.Fatalf("valid category rejected: %v", err)
	}
	if err := p.AddCategory("chat", Access{}, 0, 200); err == nil {
		t.Fatalf("duplicate category must be rejected")
	}
}

func TestStartLocksRegistryAgainstLateRegistration(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	received := make(chan struct{}, 1)
	if err := p.AddCategory("chat", Access{}, 0, 200); err != nil {
		t.Fatalf("add category: %v", err)
	}
	if err := p.AddCommand("chat", "say", func(m *Message) { received <- struct{}{} }); err != nil {
		t.Fatalf("add command: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	if err := p.AddCategory("late", Access{}, 0, 200); err == nil {
		t.Fatalf("AddCategory after Start must fail")
	}
}

func TestStartTwicePanics(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	defer func() {
		if recover() == nil {
			t.Fatalf("second Start must panic")
		}
	}()
	_ = p.Start()
}

func TestSendWithoutPeerLookupOrHintDropsOptionalSilently(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	var pub PubKey
	pub[0] = 0xAB
	if err := p.Send(pub, "chat.say", nil, SendOptions{Optional: true}); err != nil {
		t.Fatalf("optional send with nowhere to go should not error: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // give the proxy loop a chance to process and drop it
}
