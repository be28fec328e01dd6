package control

import "testing"

func TestPostSendRoundTrip(t *testing.T) {
	ch := NewChannel(4)
	h := ch.ForThread()

	pub := make([]byte, 32)
	pub[0] = 0xaa
	d := SendDict{Pubkey: pub, Parts: [][]byte{[]byte("cat.meow"), []byte("hi")}, Optional: true}
	if err := h.PostSend(Send, d); err != nil {
		t.Fatalf("post: %v", err)
	}

	env := <-ch.Recv()
	if env.Command != Send {
		t.Fatalf("command = %s, want SEND", env.Command)
	}
	got, err := env.DecodeSend()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got.Parts[0]) != "cat.meow" || string(got.Parts[1]) != "hi" {
		t.Fatalf("parts mismatch: %+v", got.Parts)
	}
	if !got.Optional {
		t.Fatalf("expected optional=true to survive the round trip")
	}
}

func TestPostQuitHasNoDict(t *testing.T) {
	ch := NewChannel(1)
	h := ch.ForThread()
	if err := h.PostQuit(); err != nil {
		t.Fatalf("post quit: %v", err)
	}
	env := <-ch.Recv()
	if env.Command != Quit {
		t.Fatalf("command = %s, want QUIT", env.Command)
	}
	if env.Dict != nil {
		t.Fatalf("QUIT must carry no dict, got %q", env.Dict)
	}
}

func TestPostAfterShutdownIsRejected(t *testing.T) {
	ch := NewChannel(1)
	h := ch.ForThread()
	ch.Shutdown()
	if err := h.PostQuit(); err != ErrShuttingDown {
		t.Fatalf("got %v, want ErrShuttingDown", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	ch := NewChannel(1)
	ch.Shutdown()
	ch.Shutdown()
}
