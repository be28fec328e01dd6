package control

import (
	"errors"
	"sync"
)

// ErrShuttingDown is returned by Post once the channel has begun
// shutting down; callers are expected to silently discard it (per
// the specification's "shutdown in progress" error kind) rather than
// surface it to end users.
var ErrShuttingDown = errors.New("control: proxy is shutting down")

// Channel is the point-to-multipoint pipe: any number of goroutines
// may hold a Handle and Post to it concurrently; exactly one consumer
// (the proxy loop) ranges over Envelopes via Recv.
type Channel struct {
	ch chan Envelope

	mu       sync.Mutex
	handles  []*Handle
	shutdown bool
}

// NewChannel allocates a Channel with the given buffer depth.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Envelope, buffer)}
}

// Handle is a private handle onto the Channel, analogous to the
// per-thread control socket the original lazily creates. In this Go
// port the underlying pipe is already safe for concurrent senders, so
// every Handle simply wraps the same channel; the type exists to keep
// the call shape (ForThread().Post(...)) stable and documented.
type Handle struct {
	c *Channel
}

// ForThread returns a Handle for the calling goroutine. Unlike the
// original's per-thread socket (which exists to avoid lock contention
// on a literal socket handle), Go channels already support concurrent
// senders, so this simply hands back a Handle over the shared
// channel — the lazy-creation behavior is kept for interface fidelity,
// not for a performance reason that applies here.
func (c *Channel) ForThread() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &Handle{c: c}
	c.handles = append(c.handles, h)
	return h
}

// Post sends env to the proxy. It returns ErrShuttingDown once
// Shutdown has been called instead of sending on a closed channel.
// The shutdown check and the send share the channel's mutex so a
// concurrent Shutdown can never close the channel out from under an
// in-flight send.
func (h *Handle) Post(env Envelope) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.shutdown {
		return ErrShuttingDown
	}
	h.c.ch <- env
	return nil
}

// PostSend bencode-encodes d and posts a SEND (or REPLY, via d's
// IncomingOnly field already having been forced by the caller).
func (h *Handle) PostSend(verb Name, d SendDict) error {
	dict, err := encode(d)
	if err != nil {
		return err
	}
	return h.Post(Envelope{Command: verb, Dict: dict})
}

func (h *Handle) PostConnect(d ConnectDict) error {
	dict, err := encode(d)
	if err != nil {
		return err
	}
	return h.Post(Envelope{Command: Connect, Dict: dict})
}

func (h *Handle) PostDisconnect(d DisconnectDict) error {
	dict, err := encode(d)
	if err != nil {
		return err
	}
	return h.Post(Envelope{Command: Disconnect, Dict: dict})
}

func (h *Handle) PostQuit() error {
	return h.Post(Envelope{Command: Quit})
}

// Recv is the proxy-side receive channel.
func (c *Channel) Recv() <-chan Envelope {
	return c.ch
}

// Shutdown flips the shutdown flag under the mutex, then closes the
// channel; envelopes still buffered in it are not drained here. After this call every live Handle's Post
// returns ErrShuttingDown instead of sending.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.handles = nil
	c.mu.Unlock()
	close(c.ch)
}
