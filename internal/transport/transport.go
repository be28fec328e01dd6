package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

const alpn = "snq/1"

// Conn is one established peer connection: a single long-lived
// bidirectional stream carries the multiplexed frame sequence in both
// directions, matching the "one socket per peer" model the proxy's
// Outgoing Slot Array and Listener expect from the transport.
type Conn struct {
	*quic.Conn
	Stream *quic.Stream
}

// Listener accepts inbound peer connections. It stands in for the
// router-style Listener socket (§4's component D): each accepted
// connection becomes one Conn with its own route identity supplied by
// the caller after the curve handshake completes.
type Listener struct {
	ql *quic.Listener
}

// Listen binds addr (host:port) for inbound QUIC connections.
func Listen(addr string) (*Listener, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("transport: tls config: %w", err)
	}
	ql, err := quic.ListenAddr(addr, tlsConf, quicServerConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Accept blocks for the next inbound connection and opens its one
// data stream (the dialer is expected to open it immediately after
// the QUIC handshake completes).
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	qconn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := qconn.AcceptStream(ctx)
	if err != nil {
		_ = qconn.CloseWithError(0, "stream accept failed")
		return nil, err
	}
	return &Conn{Conn: qconn, Stream: stream}, nil
}

// Addr reports the bound local address.
func (l *Listener) Addr() string {
	return l.ql.Addr().String()
}

func (l *Listener) Close() error {
	return l.ql.Close()
}

// Dial establishes an outbound connection to addr and opens the one
// data stream the rest of the frame protocol uses. This is the
// primitive the Outgoing Connection Cache (§4.3) calls when creating
// a new slot.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // nolint: gosec -- curve handshake above this layer authenticates the peer
		NextProtos:         []string{alpn},
	}
	qconn, err := quic.DialAddr(ctx, addr, tlsConf, quicClientConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	stream, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		_ = qconn.CloseWithError(0, "stream open failed")
		return nil, err
	}
	return &Conn{Conn: qconn, Stream: stream}, nil
}

// Close tears the connection down with the given linger before the
// underlying QUIC connection is actually released, matching
// CLOSE_LINGER semantics.
func (c *Conn) Close(linger time.Duration) error {
	if linger > 0 {
		time.AfterFunc(linger, func() { _ = c.Conn.CloseWithError(0, "linger expired") })
		return nil
	}
	return c.Conn.CloseWithError(0, "closed")
}

func quicServerConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: 5 * time.Minute, KeepAlivePeriod: 30 * time.Second}
}

func quicClientConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: 5 * time.Minute, KeepAlivePeriod: 30 * time.Second}
}

func selfSignedTLSConfig() (*tls.Config, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"snq"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
	}, nil
}
